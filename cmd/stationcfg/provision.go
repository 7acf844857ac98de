package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/provision"
	"github.com/stationlink/stationcfg/internal/ui"
)

var (
	provisionDryRun      bool
	provisionConcurrency int
)

func init() {
	rootCmd.AddCommand(provisionCmd)

	provisionCmd.Flags().BoolVar(&provisionDryRun, "dry-run", false, "Validate the sheet and match stations without writing")
	provisionCmd.Flags().IntVar(&provisionConcurrency, "concurrency", provision.DefaultConcurrency, "Stations written at once")
	provisionCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

// provisionCmd writes LoRaWAN sessions from a sheet
var provisionCmd = &cobra.Command{
	Use:   "provision <sheet.csv|sheet.tsv>",
	Short: "Provision LoRaWAN sessions from a sheet",
	Long: `Write LoRaWAN ABP session parameters to every station listed in a sheet.

The sheet is CSV (or TSV, by extension) with the columns:

  device, dev_addr, fnwk_sint_key, snwk_sint_key, nwk_senc_key, app_skey

"device" is a station ID, registry nickname or advertised name. Lines
starting with # are ignored. Every row is validated before anything is
written; stations in range are matched to rows and written concurrently.
Each write is read back and rolled back on mismatch unless --no-verify
is given.`,
	Example: `  # Check a sheet against the stations in range
  stationcfg provision fleet.csv --dry-run

  # Provision without prompting
  stationcfg provision fleet.csv --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	p := printer(cmd)

	sheet, err := provision.LoadSheet(args[0])
	if err != nil {
		p.PrintError("Sheet rejected", err)
		return err
	}

	ctx := cmd.Context()
	l, err := openLink(ctx)
	if err != nil {
		return err
	}

	ui.PrintPleaseWait(cmd.OutOrStdout(), "Scanning for stations", prefs.ScanTimeoutDuration().String())
	devices, err := l.scan(ctx)
	if err != nil {
		return err
	}
	defer saveRegistry()

	targets, unmatched := sheet.Match(devices, registry)

	p.PrintHeader("LoRaWAN Provisioning", "stationcfg provision "+args[0],
		ui.Param{Key: "Sheet", Value: fmt.Sprintf("%d rows", len(sheet.Entries))},
		ui.Param{Key: "In range", Value: fmt.Sprintf("%d stations", len(devices))},
		ui.Param{Key: "Matched", Value: fmt.Sprintf("%d stations", len(targets))},
		ui.Param{Key: "Verify", Value: fmt.Sprintf("%v", prefs.VerifyWrites)},
	)
	for _, t := range targets {
		p.Println(fmt.Sprintf("  line %-4d %-28s devAddr %s", t.Entry.Line, t.Device, deviceconfig.FormatDevAddr(t.Entry.DevAddr)))
	}
	for _, d := range unmatched {
		p.Println(fmt.Sprintf("  %-9s %-28s %s", "skip", d, "(not in sheet)"))
	}
	p.Newline()

	if len(targets) == 0 {
		p.PrintWarning("Nothing to provision", ui.Param{Key: "Hint", Value: "no station in range matches a sheet row"})
		return nil
	}
	if provisionDryRun {
		p.PrintSuccess("Sheet is valid", ui.Param{Key: "Would write", Value: fmt.Sprintf("%d stations", len(targets))})
		return nil
	}

	if !assumeYes {
		ok := ui.ConfirmDangerousOperation(os.Stdin, cmd.OutOrStdout(), "LORAWAN PROVISIONING",
			[]string{
				fmt.Sprintf("%d stations will receive new LoRaWAN session parameters", len(targets)),
				"Each station leaves its current network session until the network server is updated",
			},
			"Session keys are written in the clear over the configuration link. Make sure the sheet "+
				"matches the devices registered on your network server.",
		)
		if !ok {
			return nil
		}
	}

	opts := []provision.Option{
		provision.WithConcurrency(provisionConcurrency),
		provision.WithRegistry(registry),
	}
	if !prefs.VerifyWrites {
		opts = append(opts, provision.WithVerification(nil))
	}
	results := provision.NewProvisioner(l.manager, opts...).ApplyAll(ctx, targets)

	failed := 0
	for _, r := range results {
		p.Println("  " + r.String())
		if !r.OK() {
			failed++
		}
	}
	p.Newline()

	if failed > 0 {
		err := fmt.Errorf("%d of %d stations failed", failed, len(results))
		p.PrintWarning("Provisioning incomplete",
			ui.Param{Key: "Provisioned", Value: fmt.Sprintf("%d", len(results)-failed)},
			ui.Param{Key: "Failed", Value: fmt.Sprintf("%d", failed)},
		)
		return err
	}
	p.PrintSuccess("Provisioning complete", ui.Param{Key: "Provisioned", Value: fmt.Sprintf("%d stations", len(results))})
	return nil
}
