package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slotrace/rms/internal/cu"
	"github.com/slotrace/rms/internal/race"
)

// DefaultConfigPath is where the service looks for its configuration when
// no path is given.
const DefaultConfigPath = "config/rms.json"

// maxFileSize bounds configuration and message catalog files.
const maxFileSize = 1 * 1024 * 1024

// Sink names accepted in ServiceConfig.Sinks.
const (
	SinkLog    = "log"
	SinkStdout = "stdout"
)

// ServiceConfig is the process configuration. Every field is optional; the
// Get* methods supply defaults for fields omitted from the JSON file.
type ServiceConfig struct {
	// Control unit connection. An empty port runs the demo control unit.
	Port     *string         `json:"port,omitempty"`
	Serial   *cu.PortOptions `json:"serial,omitempty"`
	DemoCars *int            `json:"demo_cars,omitempty"`

	// Session engine
	Tick         *string `json:"tick,omitempty"` // duration string like "100ms"
	PitLaneMask  *int    `json:"pit_lane_mask,omitempty"`
	FuelModeMask *int    `json:"fuel_mode_mask,omitempty"`
	EventBuffer  *int    `json:"event_buffer,omitempty"`

	// Tuning
	TuningDelay *string `json:"tuning_delay,omitempty"`

	// Storage and HTTP
	DBPath *string `json:"db_path,omitempty"`
	Listen *string `json:"listen,omitempty"`

	// Announcements
	Sinks    []string `json:"sinks,omitempty"`
	Messages *string  `json:"messages,omitempty"` // path to a JSON message catalog
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyServiceConfig returns a config with every field unset.
func EmptyServiceConfig() *ServiceConfig {
	return &ServiceConfig{}
}

// DefaultServiceConfig returns a config with every field set to its default.
func DefaultServiceConfig() *ServiceConfig {
	masks := race.DefaultModeMasks()
	serial, _ := cu.PortOptions{}.Normalize()
	return &ServiceConfig{
		Port:         ptrString(""),
		Serial:       &serial,
		DemoCars:     ptrInt(4),
		Tick:         ptrString("100ms"),
		PitLaneMask:  ptrInt(masks.PitLane),
		FuelModeMask: ptrInt(masks.FuelMode),
		EventBuffer:  ptrInt(64),
		TuningDelay:  ptrString("400ms"),
		DBPath:       ptrString("rms.db"),
		Listen:       ptrString(":8080"),
		Sinks:        []string{SinkLog},
		Messages:     ptrString(""),
	}
}

// LoadServiceConfig loads a ServiceConfig from a JSON file. The file must
// have a .json extension and be smaller than 1MB.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := readBounded(path)
	if err != nil {
		return nil, err
	}

	cfg := EmptyServiceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readBounded(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// LoadCatalog reads a flat JSON object of message keys to templates.
func LoadCatalog(path string) (race.Catalog, error) {
	data, err := readBounded(path)
	if err != nil {
		return nil, err
	}
	var c race.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	return c, nil
}

// Validate checks that the configuration values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if c.DemoCars != nil && (*c.DemoCars < 1 || *c.DemoCars > race.MaxLanes) {
		return fmt.Errorf("demo_cars must be between 1 and %d, got %d", race.MaxLanes, *c.DemoCars)
	}
	if err := validDuration("tick", c.Tick); err != nil {
		return err
	}
	if err := validDuration("tuning_delay", c.TuningDelay); err != nil {
		return err
	}
	if c.PitLaneMask != nil && (*c.PitLaneMask < 0 || *c.PitLaneMask > 0xff) {
		return fmt.Errorf("pit_lane_mask must fit in a byte, got %#x", *c.PitLaneMask)
	}
	if c.FuelModeMask != nil && (*c.FuelModeMask < 0 || *c.FuelModeMask > 0xff) {
		return fmt.Errorf("fuel_mode_mask must fit in a byte, got %#x", *c.FuelModeMask)
	}
	if c.EventBuffer != nil && *c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must be non-negative, got %d", *c.EventBuffer)
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkLog, SinkStdout:
		default:
			return fmt.Errorf("unknown sink %q", s)
		}
	}
	return nil
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetPort returns the serial device path; empty selects the demo unit.
func (c *ServiceConfig) GetPort() string {
	if c.Port == nil {
		return ""
	}
	return *c.Port
}

// GetSerial returns the normalized serial options.
func (c *ServiceConfig) GetSerial() cu.PortOptions {
	var opts cu.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	n, err := opts.Normalize()
	if err != nil {
		n, _ = cu.PortOptions{}.Normalize()
	}
	return n
}

func (c *ServiceConfig) GetDemoCars() int {
	if c.DemoCars == nil {
		return 4
	}
	return *c.DemoCars
}

// GetTick returns the session timer interval.
func (c *ServiceConfig) GetTick() time.Duration {
	return durationOr(c.Tick, 100*time.Millisecond)
}

// GetModeMasks returns the bits of the control unit mode value that signal
// the pit lane and fuel mode.
func (c *ServiceConfig) GetModeMasks() race.ModeMasks {
	m := race.DefaultModeMasks()
	if c.PitLaneMask != nil {
		m.PitLane = *c.PitLaneMask
	}
	if c.FuelModeMask != nil {
		m.FuelMode = *c.FuelModeMask
	}
	return m
}

func (c *ServiceConfig) GetEventBuffer() int {
	if c.EventBuffer == nil {
		return 64
	}
	return *c.EventBuffer
}

func (c *ServiceConfig) GetTuningDelay() time.Duration {
	return durationOr(c.TuningDelay, 400*time.Millisecond)
}

func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "rms.db"
	}
	return *c.DBPath
}

func (c *ServiceConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetSinks returns the announcement sinks to enable.
func (c *ServiceConfig) GetSinks() []string {
	if c.Sinks == nil {
		return []string{SinkLog}
	}
	return c.Sinks
}

func (c *ServiceConfig) GetMessages() string {
	if c.Messages == nil {
		return ""
	}
	return *c.Messages
}
