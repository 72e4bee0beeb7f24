// Sensorlink-stub is a bench telemetry server for sensorlink devices.
//
// It implements the registration, push, ping and parameter endpoints with
// an in-memory device registry, streams every handled request over a
// WebSocket feed and can announce itself over mDNS.
//
// Usage:
//
//	sensorlink-stub [flags]
//
// See 'sensorlink-stub --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/stubserver"
	"github.com/muurk/sensorlink/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// Server flags
var (
	addr        string
	certPath    string
	keyPath     string
	paramsPath  string
	tokens      []string
	capturePath string
	advertise   bool
	instance    string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "sensorlink-stub",
	Short: "Bench telemetry server for sensorlink devices",
	Long: `A standalone server implementing the sensorlink wire protocol for bench
testing devices without the production backend.

Registered devices are kept in memory. With --token only the listed
provisioning tokens are accepted, each one once; without it any token
registers. Parameters served to devices come from the --params YAML file,
re-read when it changes.

Connect to /feed with a WebSocket client to watch requests as they arrive.`,
	Example: `  # Plain HTTP on port 8080, any token accepted
  sensorlink-stub

  # Two single-use tokens, parameters from a file, mDNS announcement
  sensorlink-stub --token bench-1 --token bench-2 --params params.yaml --advertise

  # TLS with a capture of every request
  sensorlink-stub --addr :8443 --cert cert.pem --key key.pem --capture requests.jsonl`,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	rootCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file (serves plain HTTP when empty)")
	rootCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	rootCmd.Flags().StringVar(&paramsPath, "params", "", "YAML file of parameters served to every device")
	rootCmd.Flags().StringArrayVar(&tokens, "token", nil, "Accepted provisioning token (repeatable; any token when unset)")
	rootCmd.Flags().StringVar(&capturePath, "capture", "", "Append every handled request to this JSON lines file")
	rootCmd.Flags().BoolVar(&advertise, "advertise", false, "Announce the server over mDNS")
	rootCmd.Flags().StringVar(&instance, "instance", "sensorlink-stub", "mDNS instance name")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	srv, err := stubserver.New(stubserver.Config{
		Addr:        addr,
		CertPath:    certPath,
		KeyPath:     keyPath,
		ParamsPath:  paramsPath,
		Tokens:      tokens,
		CapturePath: capturePath,
		Advertise:   advertise,
		Instance:    instance,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(cmd.Context())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sensorlink-stub %s\n", version.Full())
	},
}
