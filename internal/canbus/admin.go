package canbus

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/canpilot/internal/can"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send.html.tmpl"))

// attachAdminRoutes registers a send form, a send API and an SSE tail of
// received frames on the tsweb debug page.
func attachAdminRoutes(mux *http.ServeMux, b Bus, stats func() any) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("can-send", "send a CAN frame", func(w http.ResponseWriter, r *http.Request) {
		var statsText string
		if stats != nil {
			if data, err := json.MarshalIndent(stats(), "", "  "); err == nil {
				statsText = string(data)
			}
		}
		buf := bytes.NewBuffer(nil)
		if err := sendTemplate.Execute(buf, struct {
			Bus   uint8
			Stats string
		}{Stats: statsText}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("can-send-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		line := strings.TrimSpace(r.FormValue("frame"))
		if line == "" {
			http.Error(w, "Missing frame", http.StatusBadRequest)
			return
		}
		bus, err := strconv.ParseUint(r.FormValue("bus"), 10, 8)
		if err != nil {
			http.Error(w, "Invalid bus", http.StatusBadRequest)
			return
		}
		f, err := can.ParseSLCAN(line, uint8(bus))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := b.Send(f); err != nil {
			http.Error(w, "Failed to send frame: "+err.Error(), http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Sent %s", f))
	})

	debug.HandleSilentFunc("can-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := b.Subscribe()
		defer b.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}

		for {
			select {
			case f, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", f); err != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("can-tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
