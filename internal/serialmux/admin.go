package serialmux

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html>
<head><title>sniffer command</title></head>
<body>
<h1>Send sniffer request</h1>
<p>Hex-encoded SLIP frame, e.g. <code>ab0601010000070100bc</code>.</p>
<form method="POST" action="send-command-api">
<input type="text" name="frame" size="80" placeholder="hex frame">
<button type="submit">Send</button>
</form>
</body>
</html>
`))

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a raw request frame to the sniffer", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write a hex-encoded frame to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		frameHex := strings.TrimSpace(r.FormValue("frame"))
		if frameHex == "" {
			http.Error(w, "Missing frame", http.StatusBadRequest)
			return
		}
		frame, err := hex.DecodeString(strings.ReplaceAll(frameHex, " ", ""))
		if err != nil {
			http.Error(w, "Invalid hex", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(frame); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote %d byte frame to serial port", len(frame)))
	})

	// API endpoint to issue Server-Sent Events (SSE) for decoded packets.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case p, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				payload, err := json.Marshal(p)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
