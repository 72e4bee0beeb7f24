package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/sensorlink/internal/connection"
	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/monitor"
	"github.com/muurk/sensorlink/internal/ui"
)

var (
	monitorBase     string
	monitorHeadless bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorBase, "base", "", "YAML file with the base parameters")
	monitorCmd.Flags().BoolVar(&monitorHeadless, "headless", false, "Print one line per ping instead of the interactive screen")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Keep pinging the server and watch parameters",
	Long: `Ping the server on a fixed interval until interrupted.

On a terminal an interactive screen shows the device identity, the last
ping, the telemetry counters and the resolved parameters. Otherwise, or
with --headless, one line is printed per ping.

With --metrics-addr the telemetry counters are exported for Prometheus at
/metrics. With --watch-params the parameters are resolved again whenever
the local params file changes.`,
	Example: `  # Interactive, one ping every 30 seconds
  sensorlink monitor --interval 30s

  # As a service with metrics
  sensorlink monitor --headless --metrics-addr :9100 --watch-params`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	base, err := readBaseParams(monitorBase)
	if err != nil {
		return err
	}

	conn, settings, err := openConnection(cmd)
	if err != nil {
		return err
	}

	ms := settings.Monitor
	if ms.WatchParams && settings.Connection.ParamsPath == "" {
		return report(cmd, "Monitor not started", connection.NewConfigurationError("watch_params requires params_path"))
	}

	opts := monitor.Options{
		Interval:    ms.Interval,
		Base:        base,
		WatchParams: ms.WatchParams,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if ms.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, ms.MetricsAddr, conn)
		})
	}

	g.Go(func() error {
		// Quitting the screen stops the metrics server too.
		defer cancel()
		if !monitorHeadless && ui.IsTerminal(os.Stdout) {
			return monitor.RunInteractive(ctx, conn, opts)
		}
		return monitor.Run(ctx, conn, opts, printHooks(cmd.OutOrStdout()))
	})

	return g.Wait()
}

// printHooks writes one line per outcome.
func printHooks(w io.Writer) monitor.Hooks {
	return monitor.Hooks{
		OnPing: func(o monitor.PingOutcome) {
			at := o.At.Format(time.RFC3339)
			if o.Err != nil {
				fmt.Fprintf(w, "%s %s ping failed: %v\n", at, ui.FailureMarker, o.Err)
				return
			}
			fmt.Fprintf(w, "%s %s ping %s (request %s)\n", at, ui.SuccessMarker, o.Result, o.Result.RequestID)
		},
		OnParams: func(o monitor.ParamsOutcome) {
			fmt.Fprintf(w, "%s params resolved: %d keys, %d local, %d remote overrides\n",
				o.At.Format(time.RFC3339), len(o.Params), len(o.Report.Local.Applied), len(o.Report.Remote.Applied))
			for _, d := range reportDetails(o.Report) {
				fmt.Fprintf(w, "  %s %s: %s\n", ui.WarningMarker, d.Key, d.Value)
			}
		},
	}
}

// serveMetrics exports the telemetry counters until ctx is done.
func serveMetrics(ctx context.Context, addr string, src connection.StatsSource) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		connection.NewStatsCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
