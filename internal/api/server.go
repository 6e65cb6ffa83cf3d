// Package api serves the public HTTP surface: recorded packets, per-device
// rollups, stream health counters, and a live SSE feed of decoded
// advertisements.
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ble.report/internal/db"
	"github.com/banshee-data/ble.report/internal/httputil"
	"github.com/banshee-data/ble.report/internal/serialmux"
	"github.com/banshee-data/ble.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m  serialmux.SerialMuxInterface
	db *db.DB
}

func NewServer(m serialmux.SerialMuxInterface, db *db.DB) *Server {
	return &Server{
		m:  m,
		db: db,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/packets", s.listPackets)
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/live", s.streamLive)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/charts/rssi", s.rssiChart)
	return mux
}

// sendCommandHandler forwards a hex-encoded, already framed request to the
// sniffer.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	frameHex := strings.TrimSpace(r.FormValue("frame"))
	if frameHex == "" {
		httputil.BadRequest(w, "missing frame")
		return
	}
	frame, err := hex.DecodeString(strings.ReplaceAll(frameHex, " ", ""))
	if err != nil {
		httputil.BadRequest(w, "invalid hex")
		return
	}

	if err := s.m.SendCommand(frame); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"bytes": len(frame)})
}

func (s *Server) listPackets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	var (
		packets []db.Advertisement
		err     error
	)
	if mac := r.URL.Query().Get("mac"); mac != "" {
		packets, err = s.db.PacketsForMac(strings.ToUpper(mac), limit)
	} else {
		packets, err = s.db.RecentPackets(limit)
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve packets: %v", err))
		return
	}

	if packets == nil {
		packets = []db.Advertisement{}
	}
	httputil.WriteJSONOK(w, packets)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	devices, err := s.db.Devices()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve devices: %v", err))
		return
	}

	if devices == nil {
		devices = []db.Device{}
	}
	httputil.WriteJSONOK(w, devices)
}

// statsResponse combines stream health counters with stored totals.
type statsResponse struct {
	Version         string `json:"version"`
	GitSHA          string `json:"git_sha"`
	Protocol        string `json:"protocol"`
	Bytes           uint64 `json:"bytes"`
	Frames          uint64 `json:"frames"`
	Packets         uint64 `json:"packets"`
	OtherEvents     uint64 `json:"other_events"`
	MalformedFrames uint64 `json:"malformed_frames"`
	TruncatedFields uint64 `json:"truncated_fields"`
	RecordedPackets int64  `json:"recorded_packets"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	count, err := s.db.PacketCount()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count packets: %v", err))
		return
	}

	snap := s.m.Stats()
	httputil.WriteJSONOK(w, statsResponse{
		Version:         version.Version,
		GitSHA:          version.GitSHA,
		Protocol:        version.SnifferProtocol,
		Bytes:           snap.Bytes,
		Frames:          snap.Frames,
		Packets:         snap.Packets,
		OtherEvents:     snap.OtherEvents,
		MalformedFrames: snap.MalformedFrames,
		TruncatedFields: snap.TruncatedFields,
		RecordedPackets: count,
	})
}

// streamLive serves decoded packets as Server-Sent Events until the client
// disconnects.
func (s *Server) streamLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.m.Subscribe()
	defer s.m.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(p)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
