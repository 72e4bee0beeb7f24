// Package config loads sensorlink settings.
//
// Settings come from four layers, lowest precedence first:
//
//  1. built-in defaults (see Keys)
//  2. a YAML file, sensorlink.yaml
//  3. SENSORLINK_* environment variables
//  4. command-line flags that were set explicitly
//
// # Configuration File Location
//
// Without --config the file is searched in order:
//   - Linux: $XDG_CONFIG_HOME/sensorlink or $HOME/.config/sensorlink
//   - macOS: $HOME/.config/sensorlink
//   - Windows: %LOCALAPPDATA%\sensorlink
//   - the working directory
//   - /etc/sensorlink
//
// A missing file is fine; the device can be configured entirely through the
// environment. WriteExample creates a commented skeleton to start from.
//
// # Usage Example
//
//	cmd.Flags().AddFlagSet(fs)
//	config.AddFlags(fs)
//
//	settings, err := config.Load(configPath, fs)
//	if err != nil {
//	    return err
//	}
//	conn, err := connection.New(ctx, settings.Connection)
package config
