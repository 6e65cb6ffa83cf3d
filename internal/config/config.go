package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/ble.report/internal/serialmux"
	"github.com/banshee-data/ble.report/internal/sniffer"
)

// SnifferConfig represents the root configuration file. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for everything omitted.
type SnifferConfig struct {
	// Serial connection
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`

	// HTTP and storage
	Listen      *string `json:"listen,omitempty"`
	DBPath      *string `json:"db_path,omitempty"`
	CapturePath *string `json:"capture_path,omitempty"` // pcap export; empty disables

	// Scan behaviour
	FindScanRsp *bool `json:"find_scan_rsp,omitempty"`
	FindAux     *bool `json:"find_aux,omitempty"`
	ScanCoded   *bool `json:"scan_coded,omitempty"`
	HopSequence []int `json:"hop_sequence,omitempty"`
}

// EmptySnifferConfig returns a SnifferConfig with all fields unset.
func EmptySnifferConfig() *SnifferConfig {
	return &SnifferConfig{}
}

// LoadSnifferConfig loads a SnifferConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadSnifferConfig(path string) (*SnifferConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySnifferConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SnifferConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	// The port options carry their own range checks.
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}

	if c.CapturePath != nil && *c.CapturePath != "" {
		if ext := filepath.Ext(*c.CapturePath); ext != ".pcap" {
			return fmt.Errorf("capture_path must have .pcap extension, got %q", ext)
		}
	}

	// The firmware only hops the three primary advertising channels.
	for _, ch := range c.HopSequence {
		if ch < 37 || ch > 39 {
			return fmt.Errorf("hop_sequence channel %d: must be 37, 38, or 39", ch)
		}
	}

	return nil
}

// PortOptions converts the serial fields into serialmux options.
func (c *SnifferConfig) PortOptions() serialmux.PortOptions {
	opts := serialmux.PortOptions{}
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetSerialPort returns the serial_port value or the default.
func (c *SnifferConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the firmware default.
func (c *SnifferConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return sniffer.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetListen returns the listen value or the default.
func (c *SnifferConfig) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

// GetDBPath returns the db_path value or the default.
func (c *SnifferConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "sniffer.db"
	}
	return *c.DBPath
}

// GetCapturePath returns the capture_path value; empty means no pcap export.
func (c *SnifferConfig) GetCapturePath() string {
	if c.CapturePath == nil {
		return ""
	}
	return *c.CapturePath
}

// GetFindScanRsp returns the find_scan_rsp value or the default.
func (c *SnifferConfig) GetFindScanRsp() bool {
	if c.FindScanRsp == nil {
		return true
	}
	return *c.FindScanRsp
}

// GetFindAux returns the find_aux value or the default.
func (c *SnifferConfig) GetFindAux() bool {
	if c.FindAux == nil {
		return false
	}
	return *c.FindAux
}

// GetScanCoded returns the scan_coded value or the default.
func (c *SnifferConfig) GetScanCoded() bool {
	if c.ScanCoded == nil {
		return false
	}
	return *c.ScanCoded
}

// GetHopSequence returns the hop_sequence value or the default 37,38,39.
func (c *SnifferConfig) GetHopSequence() []byte {
	if len(c.HopSequence) == 0 {
		return []byte{37, 38, 39}
	}
	out := make([]byte, len(c.HopSequence))
	for i, ch := range c.HopSequence {
		out[i] = byte(ch)
	}
	return out
}
