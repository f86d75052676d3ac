package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanpeer/internal/config"
	"github.com/rescp17/lanpeer/pkg/provider/dnssd"
	"github.com/rescp17/lanpeer/pkg/provider/hashimdns"
	"github.com/rescp17/lanpeer/pkg/provider/memory"
	"github.com/rescp17/lanpeer/pkg/provider/zeroconf"
)

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		want    any
	}{
		{config.BackendDNSSD, &dnssd.Provider{}},
		{config.BackendHashiMDNS, &hashimdns.Provider{}},
		{config.BackendZeroconf, &zeroconf.Provider{}},
		{config.BackendMemory, &memory.Provider{}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Backend = tt.backend
			p, err := New(cfg, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestNew_Unknown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = "avahi"
	_, err := New(cfg, nil)
	assert.ErrorContains(t, err, `unknown backend "avahi"`)
}

func TestNew_CoversEveryConfiguredBackend(t *testing.T) {
	for _, name := range config.Backends {
		cfg := config.DefaultConfig()
		cfg.Backend = name
		_, err := New(cfg, nil)
		assert.NoError(t, err, name)
	}
}
