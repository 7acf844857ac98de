// Stationcfg configures field sensor stations over their BLE
// configuration service.
//
// It reads and writes the station's configuration sections (system,
// thermistor tables, conductivity, pH, sensor and LoRaWAN session
// settings) through a bridge that relays attribute operations to the
// radio, or through an in-process simulated fleet.
//
// Usage:
//
//	stationcfg [command] [flags]
//
// See 'stationcfg --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/stationlink/stationcfg/internal/config"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLink()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	bridgeURL     string
	deviceQuery   string
	simulateCount int
	logLevel      string
	traceFile     string
	strictNumbers bool
	showSecrets   bool
	noVerify      bool
	scanTimeout   time.Duration
)

// Loaded in PersistentPreRunE
var (
	registry *config.Registry
	prefs    *config.Preferences
)

var rootCmd = &cobra.Command{
	Use:   "stationcfg",
	Short: "Sensor Station Configuration Utility",
	Long: `A utility for configuring field sensor stations over BLE.

Stations expose one characteristic per configuration section. stationcfg
reads, validates and writes those sections through a bridge (found via
mDNS unless --bridge is given) or an in-process simulated fleet.

Preferences are read from the registry file and can be overridden by flags.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&bridgeURL, "bridge", "", "Bridge URL, e.g. ws://gateway.local:8650/ws (skips mDNS discovery)")
	pf.StringVarP(&deviceQuery, "device", "d", "", "Station ID, nickname or advertised name")
	pf.IntVar(&simulateCount, "simulate", 0, "Use N in-process simulated stations instead of a bridge")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	pf.StringVar(&traceFile, "trace", "", "Record attribute traffic to this file")
	pf.BoolVar(&strictNumbers, "strict", false, "Reject unparseable numbers instead of writing 0")
	pf.BoolVar(&showSecrets, "show-secrets", false, "Print LoRaWAN session keys unmasked")
	pf.BoolVar(&noVerify, "no-verify", false, "Skip read-back verification after writes")
	pf.DurationVar(&scanTimeout, "timeout", 0, "Scan and bridge discovery timeout (default from preferences, 5s)")

	rootCmd.AddCommand(versionCmd)
}

// loadSettings merges registry preferences with the flags that were set
// on the command line and initializes logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	if registry == nil {
		reg, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		registry = reg
	}
	if registry.Preferences == nil {
		registry.Preferences = config.NewRegistry().Preferences
	}

	p := *registry.Preferences
	flags := cmd.Flags()
	if flags.Changed("bridge") {
		p.BridgeURL = bridgeURL
	}
	if flags.Changed("log-level") {
		p.LogLevel = logLevel
	}
	if flags.Changed("trace") {
		p.TraceFile = traceFile
	}
	if flags.Changed("strict") {
		p.StrictNumbers = strictNumbers
	}
	if flags.Changed("show-secrets") {
		p.ShowSecrets = showSecrets
	}
	if flags.Changed("no-verify") {
		p.VerifyWrites = !noVerify
	}
	if flags.Changed("timeout") {
		p.ScanTimeout = int(scanTimeout.Round(time.Second) / time.Second)
	}
	prefs = &p

	if err := logging.Initialize(prefs.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// saveRegistry persists registry changes. Failures are reported but never
// fail the command that caused them.
func saveRegistry() {
	if registry == nil {
		return
	}
	if err := registry.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save registry: %v\n", err)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stationcfg %s (%s)\n", version.Full(), version.Platform())
	},
}
