package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/sensorlink/internal/connection"
	"github.com/muurk/sensorlink/internal/logging"
)

// RunInteractive shows the monitor screen until the user quits or ctx is
// cancelled.
func RunInteractive(ctx context.Context, device Device, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(ctx, device, opts), tea.WithAltScreen(), tea.WithContext(ctx))

	if opts.WatchParams {
		go func() {
			err := device.WatchParams(ctx, func() { p.Send(paramsChangedMsg{}) })
			if err != nil {
				logging.Warn("Params watcher stopped", zap.Error(err))
			}
		}()
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor UI failed: %w", err)
	}
	return nil
}

// Hooks receive the outcomes of a headless run.
type Hooks struct {
	OnPing   func(PingOutcome)
	OnParams func(ParamsOutcome)
}

// Run pings on every interval and resolves parameters at start and, with
// WatchParams, whenever the params file changes. It blocks until ctx is
// done. Failed pings are reported, never returned: the loop keeps going
// until the network recovers.
func Run(ctx context.Context, device Device, opts Options, hooks Hooks) error {
	g, ctx := errgroup.WithContext(ctx)

	resolve := func() {
		out := resolveOnce(ctx, device, opts.Base)
		for _, err := range out.Report.Errors() {
			if !errors.Is(err, connection.ErrNoParamsFile) {
				logging.Warn("Parameter source unavailable", zap.Error(err))
			}
		}
		if hooks.OnParams != nil {
			hooks.OnParams(out)
		}
	}

	g.Go(func() error {
		resolve()
		if !opts.WatchParams {
			return nil
		}
		changed := make(chan struct{}, 1)
		g.Go(func() error {
			return device.WatchParams(ctx, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		})
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				resolve()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(opts.interval())
		defer ticker.Stop()
		for {
			out := pingOnce(ctx, device)
			if ctx.Err() != nil {
				return nil
			}
			logPing(out, device.Stats())
			if hooks.OnPing != nil {
				hooks.OnPing(out)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

func logPing(out PingOutcome, stats connection.StatsSnapshot) {
	if out.Err == nil {
		logging.Info("Ping accepted",
			zap.Stringer("result", out.Result),
			zap.Uint64("ping_attempts", stats.PingAttempts))
		return
	}
	logging.Warn("Ping failed",
		zap.Error(out.Err),
		zap.Uint64("consec_net_errs", stats.ConsecutiveNetworkErrors))
}
