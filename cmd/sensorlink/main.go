// Sensorlink connects a field device to its telemetry server.
//
// It provisions the device identity, sends pushes and pings, resolves
// runtime parameters from the local override file and the server, and
// keeps the device checking in with the monitor command.
//
// Usage:
//
//	sensorlink [command] [flags]
//
// Settings come from sensorlink.yaml, SENSORLINK_* environment variables
// and flags. See 'sensorlink --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/sensorlink/internal/config"
	"github.com/muurk/sensorlink/internal/connection"
	"github.com/muurk/sensorlink/internal/logging"
	"github.com/muurk/sensorlink/internal/ui"
	"github.com/muurk/sensorlink/internal/version"
)

// errReported marks an error that has already been rendered for the user.
var errReported = errors.New("error already reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sensorlink",
	Short: "Sensor device network and identity agent",
	Long: `Sensorlink connects a field device to its telemetry server.

On first use the device registers itself with a one-time provisioning
token and stores the issued credential. Afterwards it pushes sensor data,
pings the server, and layers parameter overrides from a local file and
the server onto its defaults.

Every configuration key can be set in sensorlink.yaml, through a
SENSORLINK_<KEY> environment variable or with the matching flag.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: search sensorlink.yaml)")
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sensorlink %s\n", version.Full())
	},
}

// loadSettings resolves the settings for cmd and initialises logging.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(settings.LogLevel); err != nil {
		return nil, err
	}
	return settings, nil
}

// openConnection loads the settings and constructs the connection,
// provisioning the device when it has no credential yet.
func openConnection(cmd *cobra.Command) (*connection.Connection, *config.Settings, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	conn, err := connection.New(cmd.Context(), settings.Connection)
	if err != nil {
		return nil, settings, report(cmd, "Connection setup failed", err)
	}
	return conn, settings, nil
}

// report renders err as a failure box with troubleshooting tips.
func report(cmd *cobra.Command, title string, err error) error {
	ui.NewPrinter(cmd.OutOrStdout()).PrintError(title, err, ui.HintLines(connection.Hint(err)))
	return fmt.Errorf("%w: %v", errReported, err)
}
