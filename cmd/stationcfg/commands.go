package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
	"github.com/stationlink/stationcfg/internal/ui"
)

// Command flags
var (
	outputFormat string
	replaceAll   bool
	assumeYes    bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(editCmd)

	devicesCmd.AddCommand(nicknameCmd)
}

func printer(cmd *cobra.Command) *ui.Printer {
	return ui.NewPrinter(cmd.OutOrStdout())
}

// scanCmd lists stations in range of the link
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for stations in range",
	Long: `Scan for stations advertising the configuration service.

Every station found is recorded in the registry so later commands can
refer to it by ID, nickname or advertised name.`,
	Example: `  # Scan through the bridge found via mDNS
  stationcfg scan

  # Longer scan through a specific bridge
  stationcfg scan --bridge ws://gateway.local:8650/ws --timeout 15s`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	l, err := openLink(ctx)
	if err != nil {
		return err
	}

	ui.PrintPleaseWait(cmd.OutOrStdout(), "Scanning for stations", prefs.ScanTimeoutDuration().String())

	// Capture which stations were known before the scan records them
	known := make(map[string]bool)
	for _, id := range registry.DeviceIDs() {
		known[id] = true
	}

	devices, err := l.scan(ctx)
	if err != nil {
		printer(cmd).PrintError("Scan failed", err)
		return err
	}
	defer saveRegistry()

	rows := make([]ui.DeviceRow, len(devices))
	for i, d := range devices {
		rows[i] = ui.DeviceRow{Device: d, Known: known[d.ID]}
		if meta := registry.GetDevice(d.ID); meta != nil {
			rows[i].Nickname = meta.Nickname
		}
	}

	p := printer(cmd)
	p.PrintDevices(rows)
	p.Newline()
	if len(devices) == 0 {
		p.Println("Troubleshooting:")
		p.Println("  - Ensure the station is powered and its configuration window is open")
		p.Println("  - Move the bridge closer to the station")
		p.Println("  - Try increasing --timeout")
		return nil
	}
	p.Println("Use 'stationcfg show --device <id>' to read a station's configuration")
	return nil
}

// devicesCmd lists the stations in the registry
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List known stations",
	Long:  `List the stations recorded in the registry, with nicknames and when they were last seen.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := registry.DeviceIDs()
		rows := make([]ui.DeviceRow, 0, len(ids))
		for _, id := range ids {
			meta := registry.GetDevice(id)
			rows = append(rows, ui.DeviceRow{
				Device:   transport.Device{ID: id, Name: meta.Name, LastSeen: meta.LastSeen},
				Nickname: meta.Nickname,
				Known:    true,
			})
		}
		printer(cmd).PrintDevices(rows)
		return nil
	},
}

var nicknameCmd = &cobra.Command{
	Use:   "nickname <station> <nickname>",
	Short: "Give a station a nickname",
	Example: `  stationcfg devices nickname C0:FF:EE:00:00:01 north-field
  stationcfg devices nickname north-field ""   # clear`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := registry.ResolveDevice(args[0])
		if !ok {
			return fmt.Errorf("station %q is not in the registry. Run 'stationcfg scan' first", args[0])
		}
		registry.SetDeviceNickname(id, args[1])
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save registry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is now %q\n", id, args[1])
		return nil
	},
}

// showCmd reads sections from a station
var showCmd = &cobra.Command{
	Use:   "show [namespace...|all]",
	Short: "Show station configuration",
	Long: `Read one or more configuration sections from a station.

With no namespace, or "all", every section is read. Sections the station
does not expose are reported and skipped.

Namespaces: ` + strings.Join(schema.Tokens(), ", "),
	Example: `  # Show everything
  stationcfg show --device north-field

  # Show the LoRaWAN session with keys visible
  stationcfg show lorawan --device north-field --show-secrets

  # JSON output for scripting
  stationcfg show all --device north-field --format json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
}

func parseNamespaces(args []string) ([]schema.Namespace, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "all") {
		return schema.All(), nil
	}
	out := make([]schema.Namespace, 0, len(args))
	for _, a := range args {
		ns, err := schema.Parse(a)
		if err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	namespaces, err := parseNamespaces(args)
	if err != nil {
		return err
	}
	switch outputFormat {
	case "detailed", "compact", "json":
	default:
		return fmt.Errorf("unknown format %q (use detailed, compact or json)", outputFormat)
	}

	ctx := cmd.Context()
	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()
	defer saveRegistry()

	sections, failures := readSections(ctx, session, namespaces)
	if len(sections) == 0 && len(failures) > 0 {
		err := failures[0]
		printer(cmd).PrintError("Read failed", err)
		return err
	}

	p := printer(cmd)
	mask := !prefs.ShowSecrets
	switch outputFormat {
	case "json":
		doc := make(map[string]map[string]any, len(sections))
		for _, sec := range sections {
			doc[sec.Namespace.String()] = sectionValues(sec, mask)
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		p.Println(string(data))
	case "compact":
		for _, sec := range sections {
			p.Println(fmt.Sprintf("%-9s %s", sec.Namespace, deviceconfig.Summary(maskedSection(sec, mask))))
		}
	default:
		p.PrintHeader("Station Configuration", "stationcfg show",
			ui.Param{Key: "Station", Value: session.Device().String()},
			ui.Param{Key: "Sections", Value: fmt.Sprintf("%d of %d", len(sections), len(namespaces))},
		)
		for _, sec := range sections {
			p.PrintSection(sec, mask)
		}
	}

	for _, err := range failures {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", deviceconfig.GetShortErrorMessage(err))
	}
	return nil
}

// readSections reads namespaces concurrently and returns them in the
// requested order. Per-section failures are collected instead of
// cancelling the others.
func readSections(ctx context.Context, s *deviceconfig.Session, namespaces []schema.Namespace) ([]*schema.Section, []error) {
	results := make([]*schema.Section, len(namespaces))
	errs := make([]error, len(namespaces))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, ns := range namespaces {
		g.Go(func() error {
			results[i], errs[i] = s.Read(ctx, ns)
			return nil
		})
	}
	_ = g.Wait()

	var sections []*schema.Section
	var failures []error
	for i := range namespaces {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		sections = append(sections, results[i])
	}
	return sections, failures
}

// maskedSection returns sec with secret fields masked when mask is set.
func maskedSection(sec *schema.Section, mask bool) *schema.Section {
	if !mask {
		return sec
	}
	out := sec.Clone()
	for _, f := range schema.SchemaFor(sec.Namespace).Fields {
		if f.Secret && out.Has(f.Key) {
			out.Set(f.Key, deviceconfig.MaskKey(out.Text(f.Key)))
		}
	}
	return out
}

func sectionValues(sec *schema.Section, mask bool) map[string]any {
	sec = maskedSection(sec, mask)
	values := make(map[string]any, sec.Len())
	for _, k := range sec.Keys() {
		values[k], _ = sec.Get(k)
	}
	return values
}

// setCmd writes fields of one section
var setCmd = &cobra.Command{
	Use:   "set <namespace> <key=value>...",
	Short: "Write section fields",
	Long: `Write one or more fields of a configuration section.

By default the given fields are merged over the station's current values.
With --replace the section is written from the given fields alone and every
writable field not named is sent empty.

Values are canonicalized before validation: LoRaWAN keys may be written
with or without "0x", spaces and commas, and in either case. Writes that
could disconnect the station ask for confirmation unless --yes is given.
After the write the section is read back and compared; a mismatch
restores the previous values.`,
	Example: `  # Change the sleep interval
  stationcfg set system sleep_time=300 --device north-field

  # Provision a LoRaWAN session
  stationcfg set lorawan devAddr=00bfe104 appSKey=2B7E1516... --device north-field

  # Write a full pH calibration, clearing unnamed fields
  stationcfg set ph --replace ph_v1=0.41 ph_t1=4 ph_v2=1.5 ph_t2=7`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&replaceAll, "replace", false, "Write only the given fields; unnamed writable fields are sent empty")
	setCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask before potentially destructive writes")
}

// parseAssignments turns key=value arguments into field text.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q (expected key=value)", a)
		}
		out[k] = v
	}
	return out, nil
}

// mergeOver returns the writable fields of current overlaid with changes.
func mergeOver(current *schema.Section, changes map[string]string) map[string]string {
	merged := make(map[string]string, len(changes))
	for _, f := range schema.SchemaFor(current.Namespace).Writable() {
		if current.Has(f.Key) {
			merged[f.Key] = current.Text(f.Key)
		}
	}
	for k, v := range changes {
		merged[k] = v
	}
	return merged
}

func runSet(cmd *cobra.Command, args []string) error {
	ns, err := schema.Parse(args[0])
	if err != nil {
		return err
	}
	changes, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	verify := prefs.VerifyWrites
	runner := ui.NewWriteRunner(ui.WriteRunnerConfig{
		Title:   "Write Section",
		Command: "stationcfg set " + strings.Join(args, " "),
		Verify:  verify,
		Output:  cmd.OutOrStdout(),
	})

	// Mark the read-back step as running once the write is acknowledged
	var onSent func()
	hook := func(deviceID string, hns schema.Namespace, ph deviceconfig.Phase) {
		runner.OnPhase(deviceID, hns, ph)
		if ph == deviceconfig.PhaseSent && onSent != nil {
			onSent()
		}
	}

	session, err := openSession(ctx, deviceconfig.WithPhaseHook(hook))
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()
	defer saveRegistry()

	current, err := session.Read(ctx, ns)
	if err != nil && !replaceAll {
		printer(cmd).PrintError("Could not read current values", err)
		return err
	}
	if current == nil {
		current = schema.NewSection(ns)
	}

	raw := changes
	if !replaceAll {
		raw = mergeOver(current, changes)
	}

	if report := deviceconfig.DestructiveWarnings(ns, current, raw); report != "" && !assumeYes {
		if !ui.ConfirmDestructiveWrite(os.Stdin, cmd.OutOrStdout(), ns.String(), report) {
			return nil
		}
	}

	var after *schema.Section
	err = runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Param, error) {
		details := []ui.Param{
			{Key: "Station", Value: session.Device().String()},
			{Key: "Section", Value: fmt.Sprintf("%s (%s)", ns, schema.LocatorFor(ns))},
			{Key: "Fields", Value: fmt.Sprintf("%d", len(changes))},
		}
		if !verify {
			return details, session.Write(ctx, ns, raw)
		}

		step := runner.VerifyStep()
		onSent = func() { onStep(step, ui.StepRunning, "") }

		res := deviceconfig.NewRollbackManager(session).SafeWrite(ctx, ns, raw, nil, "stationcfg set")
		if res.UpdateResult != nil && res.UpdateResult.Attempts > 0 {
			status := ui.StepComplete
			if !res.Success {
				status = ui.StepFailed
			}
			onStep(step, status, fmt.Sprintf("%d attempt(s)", res.UpdateResult.Attempts))
		}
		if !res.Success {
			if res.RollbackAttempted {
				details = append(details, ui.Param{Key: "Rollback", Value: fmt.Sprintf("%v", res.RollbackSucceeded)})
			}
			return details, res.Error
		}
		after = res.UpdateResult.Actual
		return details, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("write failed: %w", err)
	}

	if after != nil {
		printer(cmd).PrintSectionChange(current, after, !prefs.ShowSecrets)
	}
	return nil
}

// editCmd edits a section interactively
var editCmd = &cobra.Command{
	Use:   "edit <namespace>",
	Short: "Edit a section interactively",
	Long: `Open a full-screen editor on the writable fields of one section.

Changed fields are written with ctrl+s and merged over the station's
current values. Validation errors are shown next to the offending field.`,
	Example: `  stationcfg edit system --device north-field`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	ns, err := schema.Parse(args[0])
	if err != nil {
		return err
	}
	if !ui.IsTerminal() {
		return errors.New("edit needs an interactive terminal; use 'stationcfg set' instead")
	}

	ctx := cmd.Context()
	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()
	defer saveRegistry()

	before, err := session.Read(ctx, ns)
	if err != nil {
		printer(cmd).PrintError("Read failed", err)
		return err
	}

	save := func(changes map[string]string) error {
		if !prefs.VerifyWrites {
			return session.Update(ctx, ns, changes)
		}
		res := deviceconfig.NewRollbackManager(session).SafeWrite(ctx, ns, mergeOver(before, changes), nil, "stationcfg edit")
		return res.Error
	}

	result, err := ui.RunEditor(before, save, prefs.ShowSecrets)
	if err != nil {
		return err
	}

	p := printer(cmd)
	if !result.Saved {
		if result.Err != nil {
			p.PrintError("Section not written", result.Err)
			return result.Err
		}
		p.Println("No changes written.")
		return nil
	}

	after, err := session.Read(ctx, ns)
	if err != nil {
		p.PrintWarning(ns.Title()+" written", ui.Param{Key: "Fields", Value: fmt.Sprintf("%d", len(result.Changes))})
		return nil
	}
	p.PrintSectionChange(before, after, !prefs.ShowSecrets)
	return nil
}
