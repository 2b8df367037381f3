package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/canpilot/internal/httputil"
	"github.com/banshee-data/canpilot/internal/vehicle"
)

var intentOpts struct {
	server  string
	engage  bool
	release bool
	steer   float64
	cancel  bool
}

func init() {
	rootCmd.AddCommand(intentCmd)

	f := intentCmd.Flags()
	f.StringVar(&intentOpts.server, "server", "http://localhost:8080", "Base URL of a running 'canpilot run'")
	f.BoolVar(&intentOpts.engage, "engage", false, "Engage steering control")
	f.BoolVar(&intentOpts.release, "release", false, "Disengage steering control")
	f.Float64Var(&intentOpts.steer, "steer", 0, "Steering request in [-1, 1]")
	f.BoolVar(&intentOpts.cancel, "cancel", false, "Send one cruise cancel request")
	intentCmd.MarkFlagsMutuallyExclusive("engage", "release")
}

var intentCmd = &cobra.Command{
	Use:   "intent",
	Short: "Show or change the control intent of a running controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := intentRequest{Cancel: intentOpts.cancel}
		switch {
		case intentOpts.engage:
			req.Enabled = ptr(true)
		case intentOpts.release:
			req.Enabled = ptr(false)
		}
		if cmd.Flags().Changed("steer") {
			req.Steer = ptr(intentOpts.steer)
		}
		cc, err := sendIntent(httputil.NewStandardClient(nil), intentOpts.server, req)
		if err != nil {
			return err
		}
		return printIntent(cmd.OutOrStdout(), cc)
	},
}

// intentRequest mirrors the body accepted by POST /api/intent.
type intentRequest struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Steer   *float64 `json:"steer,omitempty"`
	Cancel  bool     `json:"cancel,omitempty"`
}

func (r intentRequest) empty() bool {
	return r.Enabled == nil && r.Steer == nil && !r.Cancel
}

func ptr[T any](v T) *T { return &v }

// sendIntent reads the intent when req is empty and updates it otherwise.
func sendIntent(c httputil.HTTPClient, server string, req intentRequest) (vehicle.CarControl, error) {
	var cc vehicle.CarControl
	url := strings.TrimRight(server, "/") + "/api/intent"
	var err error
	if req.empty() {
		err = httputil.DoJSON(c, http.MethodGet, url, nil, &cc)
	} else {
		err = httputil.DoJSON(c, http.MethodPost, url, req, &cc)
	}
	if err != nil {
		return cc, fmt.Errorf("intent: %w", err)
	}
	return cc, nil
}

func printIntent(w io.Writer, cc vehicle.CarControl) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cc)
}
