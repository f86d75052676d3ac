package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/lanpeer/internal/backend"
	"github.com/rescp17/lanpeer/internal/config"
	"github.com/rescp17/lanpeer/internal/metrics"
	"github.com/rescp17/lanpeer/pkg/bonjour"
)

// cliFlags holds flag values before they are merged over the config file.
type cliFlags struct {
	configPath string
	values     config.Config
}

// flagTargets maps each flag name to the config field it overrides.
var flagTargets = map[string]func(dst, src *config.Config){
	"backend":          func(d, s *config.Config) { d.Backend = s.Backend },
	"name":             func(d, s *config.Config) { d.Name = s.Name },
	"regtype":          func(d, s *config.Config) { d.Regtype = s.Regtype },
	"domain":           func(d, s *config.Config) { d.Domain = s.Domain },
	"port":             func(d, s *config.Config) { d.Port = s.Port },
	"mode":             func(d, s *config.Config) { d.Mode = s.Mode },
	"self":             func(d, s *config.Config) { d.SelfDiscover = s.SelfDiscover },
	"poll-interval":    func(d, s *config.Config) { d.PollInterval = s.PollInterval },
	"refresh-interval": func(d, s *config.Config) { d.RefreshInterval = s.RefreshInterval },
	"query-interval":   func(d, s *config.Config) { d.QueryInterval = s.QueryInterval },
	"stale-after":      func(d, s *config.Config) { d.StaleAfter = s.StaleAfter },
	"metrics-addr":     func(d, s *config.Config) { d.MetricsAddr = s.MetricsAddr },
	"log-level":        func(d, s *config.Config) { d.LogLevel = s.LogLevel },
	"log-file":         func(d, s *config.Config) { d.LogFile = s.LogFile },
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{values: *config.DefaultConfig()}

	cmd := &cobra.Command{
		Use:           "lanpeer",
		Short:         "Advertise and discover peers on the local network with DNS-SD",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	v := &flags.values
	pf.StringVar(&flags.configPath, "config", "", "JSON config file; flags override its values")
	pf.StringVar(&v.Backend, "backend", v.Backend, "DNS-SD backend: "+strings.Join(config.Backends, ", "))
	pf.StringVar(&v.Name, "name", v.Name, "Instance name (default lanpeer-<random>)")
	pf.StringVar(&v.Regtype, "regtype", v.Regtype, "Registration type, e.g. _chat._tcp")
	pf.StringVar(&v.Domain, "domain", v.Domain, "Domain to register and browse in")
	pf.IntVar(&v.Port, "port", v.Port, "Port to advertise")
	pf.StringVar(&v.Mode, "mode", v.Mode, "Peer mode: both, browse or register")
	pf.BoolVar(&v.SelfDiscover, "self", v.SelfDiscover, "List this peer among its own peers")
	pf.DurationVar(&v.PollInterval, "poll-interval", v.PollInterval, "How long a runner waits on the backend per iteration")
	pf.DurationVar(&v.RefreshInterval, "refresh-interval", v.RefreshInterval, "How often peers are listed")
	pf.DurationVar(&v.QueryInterval, "query-interval", v.QueryInterval, "hashimdns re-query interval")
	pf.DurationVar(&v.StaleAfter, "stale-after", v.StaleAfter, "hashimdns: drop instances silent for this long")
	pf.StringVar(&v.MetricsAddr, "metrics-addr", v.MetricsAddr, "Serve Prometheus metrics on this address")
	pf.StringVar(&v.LogLevel, "log-level", v.LogLevel, "Log level: debug, info, warn or error")
	pf.StringVar(&v.LogFile, "log-file", v.LogFile, "Log file used while the monitor owns the terminal")

	cmd.AddCommand(
		newBrowseCmd(flags),
		newRegisterCmd(flags),
		newResolveCmd(flags),
		newPeerCmd(flags),
	)
	return cmd
}

// loadConfig layers the config file, if any, and then every flag the user
// set explicitly over the defaults.
func (f *cliFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for name, apply := range flagTargets {
		if cmd.Flags().Changed(name) {
			apply(cfg, &f.values)
		}
	}
	if cfg.Name == "" {
		cfg.Name = defaultName()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultName() string {
	return "lanpeer-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// env is what every subcommand runs with.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	provider bonjour.Provider
	opts     []bonjour.Option
	out      io.Writer
	group    *errgroup.Group
	ctx      context.Context
	stop     context.CancelFunc
	closeLog func()
}

// setup builds the logger, backend and metrics for a subcommand. When
// toFile is set, logs go to the configured file so they do not corrupt
// the terminal UI.
func (f *cliFlags) setup(cmd *cobra.Command, toFile bool) (*env, error) {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := newLogger(cfg, toFile, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	provider, err := backend.New(cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	group, ctx := errgroup.WithContext(ctx)

	opts := []bonjour.Option{
		bonjour.WithLogger(logger),
		bonjour.WithPollInterval(cfg.PollInterval),
	}
	if cfg.MetricsAddr != "" {
		opts = append(opts, bonjour.WithTracer(metrics.NewTracer(prometheus.DefaultRegisterer)))
		group.Go(func() error {
			return metrics.Serve(ctx, cfg.MetricsAddr, prometheus.DefaultGatherer)
		})
	}

	logger.Debug("Configuration loaded", "backend", cfg.Backend, "name", cfg.Name, "regtype", cfg.Regtype, "mode", cfg.Mode)
	return &env{
		cfg:      cfg,
		log:      logger,
		provider: provider,
		opts:     opts,
		out:      cmd.OutOrStdout(),
		group:    group,
		ctx:      ctx,
		stop:     stop,
		closeLog: closeLog,
	}, nil
}

func newLogger(cfg *config.Config, toFile bool, stderr io.Writer) (*slog.Logger, func(), error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if !toFile {
		return slog.New(slog.NewTextHandler(stderr, handlerOpts)), func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	closeLog := func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(stderr, "failed to close log file: %v\n", err)
		}
	}
	return slog.New(slog.NewTextHandler(f, handlerOpts)), closeLog, nil
}

// wait blocks until the foreground work and the metrics server are done.
func (e *env) wait() error {
	defer e.closeLog()
	defer e.stop()
	return e.group.Wait()
}
