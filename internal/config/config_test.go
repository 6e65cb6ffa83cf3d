package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ble.report/internal/sniffer"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSnifferConfig(t *testing.T) {
	path := writeConfig(t, "sniffer.json", `{
		"serial_port": "/dev/ttyACM0",
		"baud_rate": 115200,
		"listen": ":9090",
		"db_path": "/var/lib/sniffer.db",
		"capture_path": "session.pcap",
		"find_scan_rsp": false,
		"hop_sequence": [39, 38, 37]
	}`)

	cfg, err := LoadSnifferConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.GetSerialPort())
	assert.Equal(t, 115200, cfg.GetBaudRate())
	assert.Equal(t, ":9090", cfg.GetListen())
	assert.Equal(t, "/var/lib/sniffer.db", cfg.GetDBPath())
	assert.Equal(t, "session.pcap", cfg.GetCapturePath())
	assert.False(t, cfg.GetFindScanRsp())
	assert.Equal(t, []byte{39, 38, 37}, cfg.GetHopSequence())
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"listen": ":9000"}`)

	cfg, err := LoadSnifferConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.GetListen())
	assert.Equal(t, sniffer.DefaultBaudRate, cfg.GetBaudRate())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())
	assert.Equal(t, "sniffer.db", cfg.GetDBPath())
	assert.True(t, cfg.GetFindScanRsp())
	assert.False(t, cfg.GetFindAux())
	assert.False(t, cfg.GetScanCoded())
	assert.Equal(t, []byte{37, 38, 39}, cfg.GetHopSequence())
	assert.Empty(t, cfg.GetCapturePath())
}

func TestLoadSnifferConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"wrong extension", "config.yaml", `{}`},
		{"invalid json", "bad.json", `{not json`},
		{"negative baud", "baud.json", `{"baud_rate": -1}`},
		{"bad parity", "parity.json", `{"parity": "M"}`},
		{"bad capture extension", "cap.json", `{"capture_path": "session.txt"}`},
		{"bad hop channel", "hop.json", `{"hop_sequence": [36]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := LoadSnifferConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadSnifferConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPortOptionsConversion(t *testing.T) {
	path := writeConfig(t, "serial.json", `{"baud_rate": 9600, "stop_bits": 2, "parity": "even"}`)
	cfg, err := LoadSnifferConfig(path)
	require.NoError(t, err)

	opts, err := cfg.PortOptions().Normalize()
	require.NoError(t, err)
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, 2, opts.StopBits)
	assert.Equal(t, "E", opts.Parity)
	assert.Equal(t, 8, opts.DataBits)
}
