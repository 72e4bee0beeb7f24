package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/sensorlink/internal/config"
	"github.com/muurk/sensorlink/internal/connection"
	"github.com/muurk/sensorlink/internal/discovery"
	"github.com/muurk/sensorlink/internal/ui"
)

// Command flags
var (
	provisionForce bool
	provisionYes   bool
	pushFile       string
	paramsBase     string
	paramsOutput   string
	scanTimeout    time.Duration
	scanFirst      bool
)

func init() {
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Register the device and store its credential",
	Long: `Register the device with the server using the one-time provisioning token.

Nothing is sent when a valid credential is already stored. Use --force to
register again and replace it; the old credential is kept if the new
registration fails.`,
	Example: `  # First-time registration
  sensorlink provision --provisioning-token-path /boot/provtok.json

  # Replace the stored credential without prompting
  sensorlink provision --force --yes`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().BoolVar(&provisionForce, "force", false, "Register again and replace an existing credential")
	provisionCmd.Flags().BoolVarP(&provisionYes, "yes", "y", false, "Do not ask for confirmation with --force")
}

func runProvision(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cfg := settings.Connection

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Provision", "sensorlink provision",
		ui.D("Server", cfg.URLBase),
		ui.D("Serial", cfg.DeviceSerial),
		ui.D("Credentials", cfg.CredentialsPath),
	)

	_, loadErr := connection.NewCredentialStore(cfg.CredentialsPath).Load()
	hadCredential := loadErr == nil

	conn, err := connection.New(cmd.Context(), cfg)
	if err != nil {
		return report(cmd, "Provisioning failed", err)
	}

	if !hadCredential {
		p.PrintSuccess("Device provisioned", ui.D("Node", conn.Credential().NodeName))
		return nil
	}
	if !provisionForce {
		p.PrintSuccess("Device already provisioned",
			ui.D("Node", conn.Credential().NodeName),
			ui.D("Replace with", "sensorlink provision --force"))
		return nil
	}

	if !provisionYes {
		warnings := []string{
			"A new registration is sent with the provisioning token",
			"The server may refuse a token that was already used",
			"Node " + conn.Credential().NodeName + " stops being used by this device",
		}
		if !p.Confirm(cmd.InOrStdin(), "Replace the device credential", warnings, "REPLACE") {
			return nil
		}
	}

	previous := conn.Credential().NodeName
	if err := conn.Reprovision(cmd.Context()); err != nil {
		return report(cmd, "Re-provisioning failed", err)
	}
	p.PrintSuccess("Credential replaced",
		ui.D("Previous node", previous),
		ui.D("Node", conn.Credential().NodeName))
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a liveness ping",
	Long: `Send one liveness ping with the device identity and telemetry counters.

The device is provisioned first if it has no credential yet.`,
	RunE: runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, _, err := openConnection(cmd)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Telemetry ping", "sensorlink ping",
		ui.D("Node", conn.Credential().NodeName),
		ui.D("Endpoint", conn.Config().PingURL))

	res, err := conn.Ping(cmd.Context())
	if err != nil {
		return report(cmd, "Ping failed", err)
	}
	p.PrintSuccess("Ping accepted",
		ui.D("Status", res),
		ui.D("Request ID", res.RequestID))
	return nil
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push a JSON sensor reading",
	Long: `Push one sensor reading to the server.

The reading is any JSON value, read from --file or standard input, and is
embedded verbatim as sensor_data in the push payload.`,
	Example: `  # Push a reading from a file
  sensorlink push --file reading.json

  # Push from a pipeline
  echo '{"temp": 21.5}' | sensorlink push`,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushFile, "file", "f", "-", "JSON file to push (- for standard input)")
}

func runPush(cmd *cobra.Command, args []string) error {
	data, err := readReading(cmd.InOrStdin(), pushFile)
	if err != nil {
		return err
	}

	conn, _, err := openConnection(cmd)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Telemetry push", "sensorlink push",
		ui.D("Node", conn.Credential().NodeName),
		ui.D("Endpoint", conn.Config().PostURL))

	res, err := conn.Push(cmd.Context(), data)
	if err != nil {
		return report(cmd, "Push failed", err)
	}
	p.PrintSuccess("Push accepted",
		ui.D("Status", res),
		ui.D("Request ID", res.RequestID))
	return nil
}

// readReading decodes one JSON value, keeping numbers as written.
func readReading(stdin io.Reader, path string) (any, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open reading: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("reading is not valid JSON: %w", err)
	}
	return data, nil
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Resolve runtime parameters",
	Long: `Resolve the runtime parameters: the base values, overridden by the local
params file, overridden by the server. Protected keys such as token and
the endpoint URLs are never overridden.

The resolved mapping is written to standard output; the report goes to
standard error.`,
	Example: `  # Layer overrides onto the defaults shipped with the application
  sensorlink params --base /usr/share/app/defaults.yaml

  # JSON for scripting
  sensorlink params --output json`,
	RunE: runParams,
}

func init() {
	paramsCmd.Flags().StringVar(&paramsBase, "base", "", "YAML file with the base parameters")
	paramsCmd.Flags().StringVarP(&paramsOutput, "output", "o", "yaml", "Output format (yaml, json)")
}

func runParams(cmd *cobra.Command, args []string) error {
	base, err := readBaseParams(paramsBase)
	if err != nil {
		return err
	}

	conn, _, err := openConnection(cmd)
	if err != nil {
		return err
	}

	params, rep := conn.ResolveParams(cmd.Context(), base)

	p := ui.NewPrinter(cmd.ErrOrStderr())
	if details := reportDetails(rep); len(details) > 0 {
		p.PrintWarning("Some parameter overrides were not applied", details...)
	}

	var out []byte
	switch paramsOutput {
	case "json":
		out, err = json.MarshalIndent(params, "", "  ")
		out = append(out, '\n')
	case "yaml":
		out, err = yaml.Marshal(map[string]any(params))
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", paramsOutput)
	}
	if err != nil {
		return fmt.Errorf("failed to render parameters: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func readBaseParams(path string) (connection.Params, error) {
	base := connection.Params{}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read base parameters: %w", err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse base parameters: %w", err)
	}
	return base, nil
}

// reportDetails lists source failures and skipped keys. A missing local
// file is normal and not listed.
func reportDetails(rep connection.ParamReport) []ui.Detail {
	var details []ui.Detail
	for _, src := range []connection.SourceResult{rep.Local, rep.Remote} {
		if src.Err != nil && !errors.Is(src.Err, connection.ErrNoParamsFile) {
			details = append(details, ui.D(src.Source, src.Err))
		}
		if len(src.Skipped) > 0 {
			details = append(details, ui.D(src.Source+" skipped", strings.Join(src.Skipped, ", ")))
		}
	}
	return details
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find telemetry servers on the local network",
	Long: `Browse mDNS for ` + discovery.ServiceType + ` services and print their base URLs.

Use a discovered URL as url_base, e.g. with a bench stub server started by
'sensorlink-stub --advertise'.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for answers")
	discoverCmd.Flags().BoolVar(&scanFirst, "first", false, "Stop at the first server found and print only its URL")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if _, err := loadSettings(cmd); err != nil {
		return err
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout

	if scanFirst {
		srv, err := scanner.First(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), srv.BaseURL())
		return nil
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Printf("Browsing for %s servers (timeout: %s)...\n\n", discovery.ServiceType, scanTimeout)

	servers, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(servers) == 0 {
		p.PrintResult(ui.NewFailureResult("No servers found", nil, []string{
			"Check that the server advertises " + discovery.ServiceType,
			"mDNS does not cross routers; scan from the same network segment",
			"Try a longer --timeout",
		}))
		return nil
	}

	details := make([]ui.Detail, 0, len(servers))
	for _, srv := range servers {
		details = append(details, ui.D(srv.Instance, srv.BaseURL()))
	}
	p.PrintSuccess(fmt.Sprintf("Found %d server(s)", len(servers)), details...)
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented configuration skeleton",
	Long: `Write a configuration file listing every key with its default value.

Without a path the file is written to the user configuration directory.
An existing file is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		if err := config.WriteExample(path); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Configuration written", ui.D("Path", path))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective connection settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(settings.Connection)
		if err != nil {
			return err
		}
		file := settings.File
		if file == "" {
			file = "(none)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# file: %s\n%s", file, out)
		return nil
	},
}
