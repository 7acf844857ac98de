package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/trace"
)

var (
	traceNamespace string
	traceOp        string
	traceSession   string
	traceFailed    bool
	traceSince     time.Duration
	tracePayloads  bool
)

func init() {
	rootCmd.AddCommand(traceCmd)

	f := traceCmd.Flags()
	f.StringVar(&traceNamespace, "namespace", "", "Only events for this section")
	f.StringVar(&traceOp, "op", "", "Only this operation (scan, enumerate, attributes, read, write)")
	f.StringVar(&traceSession, "session", "", "Only events from this recording session ID")
	f.BoolVar(&traceFailed, "failed", false, "Only failed operations")
	f.DurationVar(&traceSince, "since", 0, "Only events newer than this (e.g. 30m)")
	f.BoolVar(&tracePayloads, "payloads", false, "Print attribute payloads")
}

// traceCmd dumps a recorded trace file
var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Dump a recorded attribute trace",
	Long: `Print the attribute operations recorded with --trace.

Every scan, enumeration, read and write made through the link is recorded
with its timing and outcome. Payloads are redacted at record time unless
--show-secrets was in effect. --device filters by station.`,
	Example: `  # Record a session, then look at the failed operations
  stationcfg show all --device north-field --trace session.cbor
  stationcfg trace session.cbor --failed

  # Writes to the LoRaWAN section in the last hour, with payloads
  stationcfg trace session.cbor --op write --namespace lorawan --since 1h --payloads`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func traceFilter() (trace.Filter, error) {
	filter := trace.Filter{
		SessionID:  traceSession,
		FailedOnly: traceFailed,
	}
	if deviceQuery != "" {
		filter.DeviceID, _ = registry.ResolveDevice(deviceQuery)
	}
	if traceNamespace != "" {
		ns, err := schema.Parse(traceNamespace)
		if err != nil {
			return filter, err
		}
		filter.Namespace = ns.String()
	}
	if traceOp != "" {
		op, err := trace.ParseOp(traceOp)
		if err != nil {
			return filter, err
		}
		filter.Op = &op
	}
	if traceSince > 0 {
		start := time.Now().Add(-traceSince)
		filter.TimeStart = &start
	}
	return filter, nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	filter, err := traceFilter()
	if err != nil {
		return err
	}

	r, err := trace.NewFilteredReader(args[0], filter)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer func() { _ = r.Close() }()

	out := cmd.OutOrStdout()
	count, failed := 0, 0
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("trace is corrupt after %d events: %w", count, err)
		}
		count++
		if event.Failed() {
			failed++
		}
		fmt.Fprintln(out, event)
		if tracePayloads && len(event.Payload) > 0 {
			fmt.Fprintf(out, "    payload: %s\n", event.Payload)
		}
	}

	fmt.Fprintf(out, "\n%d events, %d failed\n", count, failed)
	return nil
}
