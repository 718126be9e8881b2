package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"keeloq/pkg/port"
	"keeloq/pkg/pwm"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// DefaultConfigFile is used if no config file is given. It may be missing.
const DefaultConfigFile = "/opt/womat/config/keeloq.yaml"

// Config holds the application configuration. Attention!
// Each of the struct fields must be in the format
// first letter uppercase -> followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Gpio           int             `yaml:"gpio"`
	Chip           string          `yaml:"chip"`
	Driver         string          `yaml:"driver"`
	Terminator     string          `yaml:"terminator"`
	BounceTimeInt  int             `yaml:"bouncetime"`
	BounceTime     time.Duration   `yaml:"-"`
	PolarityString string          `yaml:"polarity"`
	Polarity       port.Polarity   `yaml:"-"`
	SampleRate     uint64          `yaml:"samplerate"`
	Channel        int             `yaml:"channel"`
	Capture        string          `yaml:"capture"`
	RawFile        string          `yaml:"rawfile"`
	Timing         TimingConfig    `yaml:"timing"`
	Flag           FlagConfig      `yaml:"-"`
	Debug          DebugConfig     `yaml:"debug"`
	Webserver      WebserverConfig `yaml:"webserver"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters).
// Flags which are set overwrite the configuration file.
type FlagConfig struct {
	ConfigFile string
	Debug      string
	Capture    string
	Polarity   string
	SampleRate uint64
	RawFile    string
}

// TimingConfig defines the pwm thresholds in µs.
type TimingConfig struct {
	HeaderMinInt     int        `yaml:"headermin"`
	HeaderMaxInt     int        `yaml:"headermax"`
	FinishDutyMaxInt int        `yaml:"finishdutymax"`
	ZeroDutyMinInt   int        `yaml:"zerodutymin"`
	Timing           pwm.Timing `yaml:"-"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	Topic      string `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	t := pwm.DefaultTiming()

	return &Config{
		Driver:         "gpiod",
		Chip:           "gpiochip0",
		Terminator:     "none",
		PolarityString: "active-high",
		Flag:           FlagConfig{ConfigFile: DefaultConfigFile},
		Timing: TimingConfig{
			HeaderMinInt:     int(t.HeaderMin / time.Microsecond),
			HeaderMaxInt:     int(t.HeaderMax / time.Microsecond),
			FinishDutyMaxInt: int(t.FinishDutyMax / time.Microsecond),
			ZeroDutyMinInt:   int(t.ZeroDutyMin / time.Microsecond),
		},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
				"metrics": true,
			},
		},
		MQTT: MQTTConfig{
			Topic: "keeloq/frame",
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	c.applyFlags()

	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	var err error
	if c.Polarity, err = port.ParsePolarity(c.PolarityString); err != nil {
		return fmt.Errorf("polarity %q: %w", c.PolarityString, err)
	}

	c.BounceTime = time.Duration(c.BounceTimeInt) * time.Microsecond
	c.Timing.Timing = pwm.Timing{
		HeaderMin:     time.Duration(c.Timing.HeaderMinInt) * time.Microsecond,
		HeaderMax:     time.Duration(c.Timing.HeaderMaxInt) * time.Microsecond,
		FinishDutyMax: time.Duration(c.Timing.FinishDutyMaxInt) * time.Microsecond,
		ZeroDutyMin:   time.Duration(c.Timing.ZeroDutyMinInt) * time.Microsecond,
	}

	return nil
}

// readConfigFile decodes the configuration file.
// A missing default configuration file is not an error, the defaults are used.
func (c *Config) readConfigFile() error {
	if c.Flag.ConfigFile == "" {
		return nil
	}

	file, err := os.Open(c.Flag.ConfigFile)
	if errors.Is(err, os.ErrNotExist) && c.Flag.ConfigFile == DefaultConfigFile {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil && err != io.EOF {
		return err
	}

	return nil
}

func (c *Config) applyFlags() {
	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if c.Flag.Capture != "" {
		c.Capture = c.Flag.Capture
	}
	if c.Flag.Polarity != "" {
		c.PolarityString = c.Flag.Polarity
	}
	if c.Flag.SampleRate != 0 {
		c.SampleRate = c.Flag.SampleRate
	}
	if c.Flag.RawFile != "" {
		c.RawFile = c.Flag.RawFile
	}
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	default:
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr", "":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
