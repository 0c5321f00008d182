package driverk

import (
	"io/ioutil"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// DriverType selects the protocol client implementation
type DriverType string

const (
	// WebDriver talks W3C WebDriver over http to chromedriver/geckodriver/grid
	WebDriver DriverType = "webdriver"
	// Chrome talks the devtools protocol to a locally started chrome
	Chrome DriverType = "chrome"
)

// revive:exported
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollTimeout  = 5 * time.Second
	DefaultCloseTimeout = 5 * time.Second
)

// Config for driverk, durations are time.ParseDuration strings so they read
// naturally in toml ("250ms", "10s").
type Config struct {
	Driver       DriverType `toml:"driver"`
	RemoteURL    string     `toml:"remote_url"`
	BrowserName  string     `toml:"browser_name"`
	Headless     bool       `toml:"headless"`
	ChromePath   string     `toml:"chrome_path"`
	PollInterval string     `toml:"poll_interval"`
	PollTimeout  string     `toml:"poll_timeout"`
	CloseTimeout string     `toml:"close_timeout"`
	RateLimit    float64    `toml:"rate_limit"` // protocol operations per second, 0 is unlimited
	JournalPath  string     `toml:"journal_path"`
	MetricsAddr  string     `toml:"metrics_addr"`
}

// DefaultConfig talks to a local chromedriver
func DefaultConfig() *Config {
	return &Config{
		Driver:       WebDriver,
		RemoteURL:    "http://localhost:9515",
		BrowserName:  "chrome",
		Headless:     true,
		PollInterval: DefaultPollInterval.String(),
		PollTimeout:  DefaultPollTimeout.String(),
		CloseTimeout: DefaultCloseTimeout.String(),
	}
}

// LoadConfig decodes the toml file at path over the defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := toml.NewDecoder(strings.NewReader(string(data))).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Interval between poll attempts
func (c *Config) Interval() time.Duration {
	return parseOr(c.PollInterval, DefaultPollInterval)
}

// Timeout for queries and waits
func (c *Config) Timeout() time.Duration {
	return parseOr(c.PollTimeout, DefaultPollTimeout)
}

// SessionCloseTimeout bounds how long closing a session may block
func (c *Config) SessionCloseTimeout() time.Duration {
	return parseOr(c.CloseTimeout, DefaultCloseTimeout)
}

// Validate the config, durations must parse and the poll settings must be usable
func (c *Config) Validate() error {
	switch c.Driver {
	case WebDriver:
		if c.RemoteURL == "" {
			return errors.New("remote_url is required for the webdriver driver")
		}
	case Chrome:
	default:
		return errors.Errorf("unknown driver %q", c.Driver)
	}

	for name, value := range map[string]string{
		"poll_interval": c.PollInterval,
		"poll_timeout":  c.PollTimeout,
		"close_timeout": c.CloseTimeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return errors.Wrap(err, name)
		}
	}

	if c.Interval() <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.Timeout() < c.Interval() {
		return errors.New("poll_timeout must not be less than poll_interval")
	}
	if c.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	return nil
}

func parseOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
