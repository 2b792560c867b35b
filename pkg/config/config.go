package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindAudio      = "audio"
	KindSerial     = "serial"
	KindGPIO       = "gpio"
	KindSimulation = "simulation"
)

// Dead-time correction models.
const (
	ModelNone          = "none"
	ModelNonParalyzing = "non-paralyzing"
	ModelParalyzing    = "paralyzing"
)

// Auto selects the device automatically (default input device, discovered serial port).
const Auto = "auto"

// Config represents the application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Channels    []ChannelConfig   `yaml:"channels"`
}

// LogConfig contains logger configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// AcquisitionConfig contains parameters shared by every acquisition channel.
type AcquisitionConfig struct {
	StopTimeout    time.Duration `yaml:"stop_timeout"`    // How long Stop waits for the acquisition goroutine
	PollEpsilon    time.Duration `yaml:"poll_epsilon"`    // Minimum wait between serial polls
	ReportInterval time.Duration `yaml:"report_interval"` // How often the CLI reports snapshots
}

// ChannelConfig describes one pulse channel.
type ChannelConfig struct {
	Name              string  `yaml:"name"`
	Kind              string  `yaml:"kind"`
	DeadTimeUS        float64 `yaml:"dead_time_us"`       // Detector dead time in microseconds
	Correction        string  `yaml:"correction"`         // none, non-paralyzing, paralyzing
	CalibrationFactor float64 `yaml:"calibration_factor"` // Multiplies every CPS value

	Audio      AudioConfig      `yaml:"audio"`
	Serial     SerialConfig     `yaml:"serial"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// AudioConfig contains audio line input configuration.
type AudioConfig struct {
	Device           string  `yaml:"device"`            // Device name or "auto" for the default input
	SampleRate       float64 `yaml:"sample_rate"`       // Samples per second
	BlockSize        int     `yaml:"block_size"`        // Samples per read; above ~128 pulses merge
	PulseHeightMax   float64 `yaml:"pulse_height_max"`  // Full-scale amplitude
	ThresholdPercent float64 `yaml:"threshold_percent"` // Detection threshold, % of PulseHeightMax
	Polarity         string  `yaml:"polarity"`          // positive or negative
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port          string        `yaml:"port"`           // Port name or "auto" for discovery
	BaudRate      int           `yaml:"baud_rate"`      // Lower rates undercount at high count rates
	OverflowBytes int           `yaml:"overflow_bytes"` // Bytes per poll treated as a saturated input buffer
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	DiscoverWait  time.Duration `yaml:"discover_wait"` // How long each port is listened to during discovery
}

// GPIOConfig contains GPIO edge interrupt configuration.
type GPIOConfig struct {
	Pin  string `yaml:"pin"`  // Pin name as known to periph, e.g. GPIO17
	Edge string `yaml:"edge"` // falling or rising
}

// SimulationConfig contains simulated device configuration.
type SimulationConfig struct {
	MeanRate float64 `yaml:"mean_rate"` // True event rate (events per second)
	Model    string  `yaml:"model"`     // Detector model used to lose pulses
	Seed     uint64  `yaml:"seed"`      // 0 seeds from time
}

// Default returns a default configuration with a single simulated channel.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Acquisition: AcquisitionConfig{
			StopTimeout:    5 * time.Second,
			PollEpsilon:    10 * time.Millisecond,
			ReportInterval: time.Second,
		},
		Channels: []ChannelConfig{
			DefaultChannel("sim", KindSimulation),
		},
	}
}

// DefaultChannel returns a channel configuration of the given kind with defaults applied.
func DefaultChannel(name, kind string) ChannelConfig {
	ch := ChannelConfig{Name: name, Kind: kind}
	ch.ensureDefaults()
	return ch
}

// Load loads configuration from a YAML file on the OS filesystem.
func Load(filename string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), filename)
}

// LoadFs loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func LoadFs(fs afero.Fs, filename string) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file on the OS filesystem.
func (c *Config) Save(filename string) error {
	return c.SaveFs(afero.NewOsFs(), filename)
}

// SaveFs saves the configuration to a YAML file.
func (c *Config) SaveFs(fs afero.Fs, filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(fs, filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks enumerations and ranges of every channel.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Name == "" {
			return fmt.Errorf("channel %d: name is required", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel %q: duplicate name", ch.Name)
		}
		seen[ch.Name] = true
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
	}
	return nil
}

// Validate checks a single channel configuration.
func (ch *ChannelConfig) Validate() error {
	switch ch.Kind {
	case KindAudio, KindSerial, KindGPIO, KindSimulation:
	default:
		return fmt.Errorf("unknown kind %q", ch.Kind)
	}
	if !validModel(ch.Correction) {
		return fmt.Errorf("unknown correction model %q", ch.Correction)
	}
	if ch.DeadTimeUS < 0 {
		return fmt.Errorf("negative dead time %v us", ch.DeadTimeUS)
	}
	if ch.CalibrationFactor <= 0 {
		return fmt.Errorf("calibration factor must be positive, got %v", ch.CalibrationFactor)
	}

	switch ch.Kind {
	case KindAudio:
		if ch.Audio.BlockSize <= 0 {
			return fmt.Errorf("audio block size must be positive, got %d", ch.Audio.BlockSize)
		}
		if ch.Audio.ThresholdPercent <= 0 || ch.Audio.ThresholdPercent > 100 {
			return fmt.Errorf("audio threshold must be in (0, 100], got %v", ch.Audio.ThresholdPercent)
		}
		if ch.Audio.Polarity != "positive" && ch.Audio.Polarity != "negative" {
			return fmt.Errorf("unknown polarity %q", ch.Audio.Polarity)
		}
	case KindGPIO:
		if ch.GPIO.Pin == "" {
			return fmt.Errorf("gpio pin is required")
		}
		if ch.GPIO.Edge != "falling" && ch.GPIO.Edge != "rising" {
			return fmt.Errorf("unknown edge %q", ch.GPIO.Edge)
		}
	case KindSimulation:
		if ch.Simulation.MeanRate < 0 {
			return fmt.Errorf("negative simulated rate %v", ch.Simulation.MeanRate)
		}
		if ch.Simulation.Model == ModelNone || !validModel(ch.Simulation.Model) {
			return fmt.Errorf("unknown simulation model %q", ch.Simulation.Model)
		}
	}
	return nil
}

// DeadTime returns the configured dead time as a duration.
func (ch *ChannelConfig) DeadTime() time.Duration {
	return time.Duration(ch.DeadTimeUS * float64(time.Microsecond))
}

func validModel(m string) bool {
	switch m {
	case ModelNone, ModelNonParalyzing, ModelParalyzing:
		return true
	}
	return false
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Acquisition.StopTimeout == 0 {
		c.Acquisition.StopTimeout = def.Acquisition.StopTimeout
	}
	if c.Acquisition.PollEpsilon == 0 {
		c.Acquisition.PollEpsilon = def.Acquisition.PollEpsilon
	}
	if c.Acquisition.ReportInterval == 0 {
		c.Acquisition.ReportInterval = def.Acquisition.ReportInterval
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	for i := range c.Channels {
		c.Channels[i].ensureDefaults()
	}
}

func (ch *ChannelConfig) ensureDefaults() {
	if ch.Correction == "" {
		ch.Correction = ModelNone
	}
	if ch.CalibrationFactor == 0 {
		ch.CalibrationFactor = 1.0
	}

	if ch.Audio.Device == "" {
		ch.Audio.Device = Auto
	}
	if ch.Audio.SampleRate == 0 {
		ch.Audio.SampleRate = 44100
	}
	if ch.Audio.BlockSize == 0 {
		ch.Audio.BlockSize = 64
	}
	if ch.Audio.PulseHeightMax == 0 {
		ch.Audio.PulseHeightMax = 32768
	}
	if ch.Audio.ThresholdPercent == 0 {
		ch.Audio.ThresholdPercent = 50
	}
	if ch.Audio.Polarity == "" {
		ch.Audio.Polarity = "negative"
	}

	if ch.Serial.Port == "" {
		ch.Serial.Port = Auto
	}
	if ch.Serial.BaudRate == 0 {
		ch.Serial.BaudRate = 921600
	}
	if ch.Serial.OverflowBytes == 0 {
		ch.Serial.OverflowBytes = 4000
	}
	if ch.Serial.ReadTimeout == 0 {
		ch.Serial.ReadTimeout = 100 * time.Millisecond
	}
	if ch.Serial.DiscoverWait == 0 {
		ch.Serial.DiscoverWait = 3 * time.Second
	}

	if ch.GPIO.Edge == "" {
		ch.GPIO.Edge = "falling"
	}

	if ch.Simulation.MeanRate == 0 {
		ch.Simulation.MeanRate = 100
	}
	if ch.Simulation.Model == "" {
		ch.Simulation.Model = ModelParalyzing
	}
}
