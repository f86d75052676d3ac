// Package backend builds the bonjour.Provider named in the configuration.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/rescp17/lanpeer/internal/config"
	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/provider/dnssd"
	"github.com/rescp17/lanpeer/pkg/provider/hashimdns"
	"github.com/rescp17/lanpeer/pkg/provider/memory"
	"github.com/rescp17/lanpeer/pkg/provider/zeroconf"
)

// New returns the provider for cfg.Backend. The memory backend gets a
// private network, which is only useful for trying the CLI out.
func New(cfg *config.Config, logger *slog.Logger) (bonjour.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case config.BackendDNSSD:
		return dnssd.New(dnssd.WithLogger(logger)), nil
	case config.BackendHashiMDNS:
		return hashimdns.New(
			hashimdns.WithLogger(logger),
			hashimdns.WithQueryInterval(cfg.QueryInterval),
			hashimdns.WithStaleAfter(cfg.StaleAfter),
		), nil
	case config.BackendZeroconf:
		return zeroconf.New(zeroconf.WithLogger(logger)), nil
	case config.BackendMemory:
		return memory.NewNetwork().Provider("localhost"), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
