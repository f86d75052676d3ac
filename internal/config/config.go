package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/naming"
)

// Backend names accepted in Config.Backend
const (
	BackendDNSSD     = "dnssd"
	BackendHashiMDNS = "hashimdns"
	BackendZeroconf  = "zeroconf"
	BackendMemory    = "memory"
)

var Backends = []string{BackendDNSSD, BackendHashiMDNS, BackendZeroconf, BackendMemory}

const (
	DefaultRegtype         = "_lanpeer._tcp"
	DefaultPort            = 4747
	DefaultRefreshInterval = time.Second
	DefaultQueryInterval   = 2 * time.Second
	DefaultStaleAfter      = 10 * time.Second
)

// Config holds everything the lanpeer command needs to build a peer.
type Config struct {
	Backend string `json:"backend"`

	// Instance identity
	Name    string `json:"name"` // empty means generated at startup
	Regtype string `json:"regtype"`
	Domain  string `json:"domain"`
	Port    int    `json:"port"`

	// Peer behaviour
	Mode         string `json:"mode"` // both, browse or register
	SelfDiscover bool   `json:"self_discover"`

	// Timing
	PollInterval    time.Duration `json:"poll_interval"`    // runner wait slice
	RefreshInterval time.Duration `json:"refresh_interval"` // how often the monitor lists peers
	QueryInterval   time.Duration `json:"query_interval"`   // hashimdns re-query period
	StaleAfter      time.Duration `json:"stale_after"`      // hashimdns removal threshold

	MetricsAddr string `json:"metrics_addr"`
	LogLevel    string `json:"log_level"`
	LogFile     string `json:"log_file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:         BackendDNSSD,
		Regtype:         DefaultRegtype,
		Domain:          naming.DefaultDomain,
		Port:            DefaultPort,
		Mode:            bonjour.ModeBoth.String(),
		PollInterval:    bonjour.DefaultPollInterval,
		RefreshInterval: DefaultRefreshInterval,
		QueryInterval:   DefaultQueryInterval,
		StaleAfter:      DefaultStaleAfter,
		LogLevel:        "info",
		LogFile:         "lanpeer.log",
	}
}

// Load reads a JSON file over the defaults. Fields missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseMode maps the textual mode onto bonjour.Mode.
func ParseMode(s string) (bonjour.Mode, error) {
	for _, m := range []bonjour.Mode{bonjour.ModeBoth, bonjour.ModeBrowseOnly, bonjour.ModeRegisterOnly} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func (c *Config) PeerMode() (bonjour.Mode, error) {
	return ParseMode(c.Mode)
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level: %w", err)
	}
	return level, nil
}

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	var err error

	if !slices.Contains(Backends, c.Backend) {
		err = multierr.Append(err, fmt.Errorf("backend must be one of %v, got %q", Backends, c.Backend))
	}

	if c.Name != "" {
		if e := naming.CheckName(c.Name); e != nil {
			err = multierr.Append(err, fmt.Errorf("name: %w", e))
		}
	}
	if e := naming.CheckRegtype(c.Regtype); e != nil {
		err = multierr.Append(err, fmt.Errorf("regtype: %w", e))
	}
	if e := naming.CheckDomain(naming.ValidateDomain(c.Domain)); e != nil {
		err = multierr.Append(err, fmt.Errorf("domain: %w", e))
	}

	mode, e := c.PeerMode()
	if e != nil {
		err = multierr.Append(err, e)
	}
	if c.Port < 0 || c.Port > 65535 {
		err = multierr.Append(err, errors.New("port must be between 0 and 65535"))
	} else if c.Port == 0 && e == nil && mode != bonjour.ModeBrowseOnly {
		err = multierr.Append(err, errors.New("port must be positive when registering"))
	}

	if c.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("poll_interval must be positive"))
	}
	if c.RefreshInterval <= 0 {
		err = multierr.Append(err, errors.New("refresh_interval must be positive"))
	}
	if c.QueryInterval <= 0 {
		err = multierr.Append(err, errors.New("query_interval must be positive"))
	}
	if c.StaleAfter < c.QueryInterval {
		err = multierr.Append(err, errors.New("stale_after cannot be less than query_interval"))
	}

	if _, e := c.SlogLevel(); e != nil {
		err = multierr.Append(err, e)
	}

	return err
}
