// instrumentkit drives Android devices from a test host: it runs
// instrumentation with host-side collectors, verifies the device collector
// library, scripts the Maps and Auto launcher helpers and ships run reports
// to the results server.
//
// Usage:
//
//	instrumentkit devices
//	instrumentkit verify [--apk-dir=<dir>] [--report=<file>]
//	instrumentkit run --package=<pkg> [-e key=value]... [--pull-pattern=<re>]...
//	instrumentkit maps search <query>
//	instrumentkit launcher facet <dial|maps|home|media|settings> [app]
//	instrumentkit export <report.json>...
//	instrumentkit agent --config=<file>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/host/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	serial     string
	adbPath    string
	logLevel   string
	logFormat  string
}

// cfg is the effective configuration, loaded before every command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "instrumentkit",
	Short:             "Host-side Android instrumentation helpers and collectors",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "Path to the YAML config file")
	f.StringVarP(&rootFlags.serial, "serial", "s", "", "Device serial (default: the only attached device)")
	f.StringVar(&rootFlags.adbPath, "adb", "", "Path to the adb binary")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text|json")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mapsCmd)
	rootCmd.AddCommand(launcherCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.Version = version
}

// setup loads the config file, applies flag overrides and configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	loaded := config.Default()
	if rootFlags.configPath != "" {
		var err error
		if loaded, err = config.Load(rootFlags.configPath); err != nil {
			return err
		}
	}
	h := &loaded.Host
	if rootFlags.serial != "" {
		h.Serial = rootFlags.serial
	}
	if rootFlags.adbPath != "" {
		h.ADBPath = rootFlags.adbPath
	}
	if rootFlags.logLevel != "" {
		h.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		h.LogFormat = rootFlags.logFormat
	}
	if err := initLogging(h); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func initLogging(h *config.HostConfig) error {
	level, err := logging.ParseLevel(h.LogLevel)
	if err != nil {
		return err
	}
	logging.Init(level, h.LogFormat, os.Stderr)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
