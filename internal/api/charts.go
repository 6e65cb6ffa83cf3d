package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/ble.report/internal/httputil"
)

const chartPointLimit = 2000

// rssiChart renders an RSSI-over-time line chart (HTML) for one advertiser.
// This is a debugging-only endpoint to eyeball signal strength without a
// frontend. Query params:
//   - mac (required)
//   - limit (optional; default 2000 points)
func (s *Server) rssiChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	mac := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("mac")))
	if mac == "" {
		httputil.BadRequest(w, "missing 'mac' parameter")
		return
	}

	packets, err := s.db.PacketsForMac(mac, chartPointLimit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve packets: %v", err))
		return
	}
	if len(packets) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no packets recorded for %s", mac))
		return
	}

	x := make([]string, 0, len(packets))
	y := make([]opts.LineData, 0, len(packets))
	for _, p := range packets {
		x = append(x, p.Timestamp.Format(time.TimeOnly))
		y = append(y, opts.LineData{Value: p.RSSI})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "RSSI " + mac, Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "RSSI over time", Subtitle: fmt.Sprintf("mac=%s points=%d", mac, len(packets))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RSSI (dBm)"}),
	)
	line.SetXAxis(x).AddSeries("rssi", y, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
