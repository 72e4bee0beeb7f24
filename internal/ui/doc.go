// Package ui renders styled terminal output for the sensorlink CLI.
//
// Components are plain strings built with Lipgloss: a Header banner naming
// the command and its parameters, and Result boxes for success, warning
// and failure outcomes. Failure boxes carry troubleshooting tips; HintLines
// turns the multi-line hints produced by the connection package into tips.
//
//	p := ui.NewPrinter(cmd.OutOrStdout())
//	p.PrintHeader("Telemetry ping", "sensorlink ping", ui.D("Node", node))
//	p.PrintSuccess("Ping accepted", ui.D("Status", res), ui.D("Request ID", res.RequestID))
//
// # Logging Integration
//
// Logging is silent unless SENSORLINK_LOG_LEVEL or --log-level is set, so
// these boxes are the only output by default.
package ui
