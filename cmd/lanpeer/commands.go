package main

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/lanpeer/internal/util"
	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/ui"
)

var columnWidths = []int{8, 28, 24}

// errStopped is reported when the backend terminates an entity.
var errStopped = errors.New("stopped by backend")

// output serializes writes from hook goroutines.
type output struct {
	mu sync.Mutex
	e  *env
}

func (o *output) line(cells ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.e.out, util.Columns(columnWidths, cells...))
}

func newBrowseCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "List instances of the registration type as they come and go",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.setup(cmd, false)
			if err != nil {
				return err
			}
			out := &output{e: e}
			failed := make(chan error, 1)

			b := bonjour.NewBrowser(e.provider, e.cfg.Regtype, e.cfg.Domain, bonjour.BrowseHooks{
				Added: func(_ *bonjour.Browser, id bonjour.Identity, _ bool) {
					out.line("+", id.Name(), id.Regtype())
				},
				Removed: func(_ *bonjour.Browser, id bonjour.Identity, _ bool) {
					out.line("-", id.Name(), id.Regtype())
				},
				Stopped: func(_ *bonjour.Browser, err error) {
					report(failed, err)
				},
			}, e.opts...)

			e.group.Go(func() error {
				if !b.Start() {
					return fmt.Errorf("failed to browse %s", e.cfg.Regtype)
				}
				defer b.Stop()
				return until(e, failed)
			})
			return e.wait()
		},
	}
}

func newRegisterCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Advertise an instance until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.setup(cmd, false)
			if err != nil {
				return err
			}
			out := &output{e: e}
			failed := make(chan error, 1)

			reg := bonjour.NewRegistration(e.provider, e.cfg.Name, e.cfg.Regtype, e.cfg.Domain, uint16(e.cfg.Port), bonjour.RegisterHooks{
				Added: func(_ *bonjour.Registration, id bonjour.Identity, _ bool) {
					out.line("+", id.Name(), id.Regtype(), strconv.Itoa(e.cfg.Port))
				},
				Stopped: func(_ *bonjour.Registration, err error) {
					report(failed, err)
				},
			}, e.opts...)

			e.group.Go(func() error {
				if !reg.Start() {
					return fmt.Errorf("failed to register %s", reg.Identity())
				}
				defer reg.Stop()
				return until(e, failed)
			})
			return e.wait()
		},
	}
}

func newResolveCmd(flags *cliFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve one instance to its host and port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.setup(cmd, false)
			if err != nil {
				return err
			}
			out := &output{e: e}
			done := make(chan error, 1)

			e.group.Go(func() error {
				s := bonjour.NewResolverFor(e.provider, args[0], e.cfg.Regtype, e.cfg.Domain, bonjour.ResolveHooks{
					Resolved: func(_ *bonjour.Resolver, fullname, host string, port uint16, _ bool) {
						out.line("=", fullname, host, strconv.Itoa(int(port)))
						report(done, nil)
					},
					Stopped: func(_ *bonjour.Resolver, err error) {
						report(done, err)
					},
				}, e.opts...)
				defer s.Stop()

				select {
				case err := <-done:
					if err != nil {
						return fmt.Errorf("%w: %w", errStopped, err)
					}
					// Resolved: tear down the rest of the group too.
					return errDone
				case <-time.After(timeout):
					return fmt.Errorf("no answer for %s within %s", s.Identity(), timeout)
				case <-e.ctx.Done():
					return nil
				}
			})
			if err := e.wait(); err != nil && !errors.Is(err, errDone) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")
	return cmd
}

func newPeerCmd(flags *cliFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Advertise this instance and track the others",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.setup(cmd, watch)
			if err != nil {
				return err
			}
			mode, err := e.cfg.PeerMode()
			if err != nil {
				return err
			}

			peer := bonjour.NewPeer(e.provider, e.cfg.Name, e.cfg.Regtype, e.cfg.Domain, uint16(e.cfg.Port),
				bonjour.PeerOptions{Mode: mode, SelfDiscover: e.cfg.SelfDiscover}, e.opts...)

			e.group.Go(func() error {
				defer peer.Close()
				if !peer.Start() {
					return fmt.Errorf("failed to start peer %s", peer.Identity())
				}
				if watch {
					if err := ui.Run(e.ctx, peer, e.cfg.RefreshInterval); err != nil {
						return err
					}
					return errDone
				}
				return printPeers(e, peer)
			})
			if err := e.wait(); err != nil && !errors.Is(err, errDone) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Show an interactive peer monitor")
	return cmd
}

// errDone ends the errgroup after the foreground work finished on its own.
var errDone = errors.New("done")

// report delivers the first outcome and drops any later one.
func report(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// until blocks until the command is interrupted or the backend fails.
func until(e *env, failed <-chan error) error {
	select {
	case <-e.ctx.Done():
		return nil
	case err := <-failed:
		return fmt.Errorf("%w: %w", errStopped, err)
	}
}

// printPeers lists the peer set every refresh interval whenever it changes.
func printPeers(e *env, peer *bonjour.Peer) error {
	out := &output{e: e}
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	last := ""
	for {
		peers := peer.ListPeers()
		var snapshot string
		for _, p := range peers {
			snapshot += fmt.Sprintf("%s|%s|%d|%t;", p.Name(), p.Host(), p.Port(), p.Resolved())
		}
		if snapshot != last {
			last = snapshot
			out.line("#", fmt.Sprintf("%d peer(s)", len(peers)))
			for _, p := range peers {
				host, port := "-", "-"
				if p.Resolved() {
					host, port = p.Host(), strconv.Itoa(int(p.Port()))
				}
				out.line("", p.Name(), host, port)
			}
		}

		select {
		case <-e.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
