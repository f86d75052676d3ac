package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/rescp17/lanpeer/pkg/bonjour"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)
	require.NoError(t, config.Validate(), "Default config should be valid")

	assert.Equal(t, BackendDNSSD, config.Backend)
	assert.Equal(t, DefaultRegtype, config.Regtype)
	assert.Equal(t, "local.", config.Domain)
	assert.Equal(t, bonjour.DefaultPollInterval, config.PollInterval)

	mode, err := config.PeerMode()
	require.NoError(t, err)
	assert.Equal(t, bonjour.ModeBoth, mode)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:     "unknown backend",
			modify:   func(c *Config) { c.Backend = "avahi" },
			errorMsg: `backend must be one of`,
		},
		{
			name:     "invalid regtype",
			modify:   func(c *Config) { c.Regtype = "chat" },
			errorMsg: "regtype:",
		},
		{
			name:     "name too long",
			modify:   func(c *Config) { c.Name = string(make([]byte, 64)) },
			errorMsg: "name:",
		},
		{
			name:   "empty domain means local",
			modify: func(c *Config) { c.Domain = "" },
		},
		{
			name:     "unknown mode",
			modify:   func(c *Config) { c.Mode = "sideways" },
			errorMsg: `unknown mode "sideways"`,
		},
		{
			name:     "port out of range",
			modify:   func(c *Config) { c.Port = 70000 },
			errorMsg: "port must be between 0 and 65535",
		},
		{
			name:     "port zero when registering",
			modify:   func(c *Config) { c.Port = 0 },
			errorMsg: "port must be positive when registering",
		},
		{
			name: "port zero when browsing only",
			modify: func(c *Config) {
				c.Port = 0
				c.Mode = "browse"
			},
		},
		{
			name:     "zero poll interval",
			modify:   func(c *Config) { c.PollInterval = 0 },
			errorMsg: "poll_interval must be positive",
		},
		{
			name:     "stale shorter than query",
			modify:   func(c *Config) { c.StaleAfter = time.Second },
			errorMsg: "stale_after cannot be less than query_interval",
		},
		{
			name:     "bad log level",
			modify:   func(c *Config) { c.LogLevel = "loud" },
			errorMsg: "invalid log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errorMsg)
		})
	}
}

func TestConfig_ValidateReportsEveryViolation(t *testing.T) {
	config := DefaultConfig()
	config.Backend = ""
	config.Regtype = ""
	config.RefreshInterval = -1

	errs := multierr.Errors(config.Validate())
	assert.Len(t, errs, 3)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanpeer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend":"memory","name":"alice","port":5000,"self_discover":true}`), 0o644))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, config.Backend)
	assert.Equal(t, "alice", config.Name)
	assert.Equal(t, 5000, config.Port)
	assert.True(t, config.SelfDiscover)
	assert.Equal(t, DefaultRegtype, config.Regtype, "unset fields keep defaults")
	assert.NoError(t, config.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read config")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":`), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestParseMode(t *testing.T) {
	for _, m := range []bonjour.Mode{bonjour.ModeBoth, bonjour.ModeBrowseOnly, bonjour.ModeRegisterOnly} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("")
	assert.Error(t, err)
}
