package main

import (
	"fmt"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/api"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/server"
	"github.com/stationlink/stationcfg/internal/ui"
	"github.com/stationlink/stationcfg/internal/version"
)

// Serve command flags
var (
	serveHost      string
	servePort      int
	serveCert      string
	serveKey       string
	serveInstance  string
	serveAdvertise bool
	serveAPI       bool
	simStations    int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)

	for _, c := range []*cobra.Command{serveCmd, simulateCmd} {
		f := c.Flags()
		f.StringVar(&serveHost, "host", "", "Listen address (empty = all interfaces)")
		f.IntVar(&servePort, "port", 8650, "Listen port")
		f.StringVar(&serveCert, "cert", "", "TLS certificate file (serve wss:// when set with --key)")
		f.StringVar(&serveKey, "key", "", "TLS private key file")
		f.StringVar(&serveInstance, "instance", "", "mDNS instance name (default: hostname)")
		f.BoolVar(&serveAPI, "api", false, "Also serve the HTTP section API for --device under /api/v1")
	}
	serveCmd.Flags().BoolVar(&serveAdvertise, "advertise", true, "Advertise the bridge via mDNS")
	simulateCmd.Flags().IntVar(&simStations, "stations", 3, "Number of simulated stations")
}

// serveCmd exposes the current link as a bridge
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a bridge relaying to the current link",
	Long: `Start a bridge that relays attribute operations from remote stationcfg
clients to the current link: an upstream bridge (--bridge), or simulated
stations (--simulate).

With --api, the HTTP section API for the station named by --device is
served under /api/v1 next to the bridge endpoint.`,
	Example: `  # Relay to an upstream bridge and serve the API for one station
  stationcfg serve --bridge ws://gateway.local:8650/ws --device north-field --api

  # Bridge in front of five simulated stations on a custom port
  stationcfg serve --simulate 5 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// simulateCmd runs a bridge in front of simulated stations
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a bridge in front of simulated stations",
	Long: `Start a bridge backed by in-process simulated stations and advertise it
via mDNS. Other stationcfg processes on the network find it automatically,
which makes it useful for trying commands and provisioning sheets without
hardware.`,
	Example: `  # Terminal 1
  stationcfg simulate --stations 3

  # Terminal 2
  stationcfg scan`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simStations <= 0 {
			return fmt.Errorf("--stations must be at least 1")
		}
		simulateCount = simStations
		serveAdvertise = true
		return runServe(cmd, args)
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	if (serveCert == "") != (serveKey == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	ctx := cmd.Context()
	l, err := openLink(ctx)
	if err != nil {
		return err
	}

	cfg := &server.Config{
		Host:      serveHost,
		Port:      servePort,
		CertPath:  serveCert,
		KeyPath:   serveKey,
		Advertise: serveAdvertise,
		Instance:  serveInstance,
		Version:   version.Version,
	}

	params := []ui.Param{
		{Key: "Listen", Value: fmt.Sprintf("%s:%d", serveHost, servePort)},
		{Key: "Backend", Value: l.describe},
		{Key: "mDNS", Value: fmt.Sprintf("%v", serveAdvertise)},
	}

	if serveAPI {
		session, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()
		saveRegistry()

		h := api.NewHandler(session,
			api.WithSecrets(prefs.ShowSecrets),
			api.WithTimeout(prefs.ScanTimeoutDuration()*2),
		)
		cfg.Routes = append(cfg.Routes, func(r chi.Router) { h.Register(r) })
		params = append(params, ui.Param{Key: "API", Value: "/api/v1 → " + session.Device().String()})
	}

	srv, err := server.New(cfg, l.transport)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	printer(cmd).PrintHeader("Bridge", "stationcfg "+cmd.Name(), params...)
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop.")

	logging.Info("Starting bridge", zap.String("backend", l.describe), zap.Int("port", servePort))
	return srv.Start()
}
