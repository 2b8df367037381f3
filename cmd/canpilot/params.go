package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/canpilot/internal/ford"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var paramsOpts struct {
	automatic bool
	bsm       bool
	addresses []string
}

func init() {
	rootCmd.AddCommand(paramsCmd)

	f := paramsCmd.Flags()
	f.BoolVar(&paramsOpts.automatic, "automatic", true, "Assume the shift-by-wire ECU is present")
	f.BoolVar(&paramsOpts.bsm, "bsm", false, "Assume the blind-spot monitors are present")
	f.StringSliceVar(&paramsOpts.addresses, "address", nil, "Extra powertrain addresses to treat as seen (hex, e.g. 0x3A6)")
}

var paramsCmd = &cobra.Command{
	Use:   "params [MODEL]",
	Short: "List supported models, or print the parameters of one as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			listModels(cmd.OutOrStdout())
			return nil
		}
		fp, err := paramsFingerprint()
		if err != nil {
			return err
		}
		return printParams(cmd.OutOrStdout(), vehicle.Model(args[0]), fp)
	},
}

func listModels(w io.Writer) {
	for _, m := range ford.Models() {
		fmt.Fprintf(w, "%-24s %s\n", m, ford.DisplayName(m))
	}
}

// paramsFingerprint builds the fingerprint implied by the flags.
func paramsFingerprint() (vehicle.Fingerprint, error) {
	fp := vehicle.Fingerprint{Main: make(map[uint32]int)}
	if paramsOpts.automatic {
		fp.ECUs = append(fp.ECUs, vehicle.ECUShiftByWire)
	}
	if paramsOpts.bsm {
		fp.Main[0x3A6] = 8
		fp.Main[0x3A7] = 8
	}
	for _, a := range paramsOpts.addresses {
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(a), "0x"), 16, 32)
		if err != nil {
			return fp, fmt.Errorf("bad --address %q: %w", a, err)
		}
		fp.Main[uint32(addr)] = 8
	}
	return fp, nil
}

func printParams(w io.Writer, model vehicle.Model, fp vehicle.Fingerprint) error {
	p, err := ford.GetParams(model, fp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
