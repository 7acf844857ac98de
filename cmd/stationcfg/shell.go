package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stationlink/stationcfg/internal/config"
	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellCmd runs commands against one link interactively
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell",
	Long: `Run stationcfg commands interactively over a single link.

The link and any open bridge connection are kept between commands, so
simulated stations keep their state. "use <station>" selects the station
for later commands. Global flags given inside the shell stay in effect
for the commands that follow.`,
	Example: `  stationcfg shell --simulate 3
  stationcfg> scan
  stationcfg> use station-1
  stationcfg[station-1]> set system sleep_time=120`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func shellCompleter() *readline.PrefixCompleter {
	namespaces := make([]readline.PrefixCompleterInterface, 0, len(schema.All())+1)
	for _, ns := range schema.All() {
		namespaces = append(namespaces, readline.PcItem(ns.String()))
	}
	withAll := append([]readline.PrefixCompleterInterface{readline.PcItem("all")}, namespaces...)

	return readline.NewPrefixCompleter(
		readline.PcItem("scan"),
		readline.PcItem("devices", readline.PcItem("nickname")),
		readline.PcItem("use"),
		readline.PcItem("show", withAll...),
		readline.PcItem("set", namespaces...),
		readline.PcItem("edit", namespaces...),
		readline.PcItem("provision"),
		readline.PcItem("trace"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func shellPrompt() string {
	if deviceQuery == "" {
		return "stationcfg> "
	}
	return fmt.Sprintf("stationcfg[%s]> ", deviceQuery)
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg := &readline.Config{
		Prompt:          shellPrompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(),
	}
	if dir, err := config.GetConfigDir(); err == nil {
		cfg.HistoryFile = filepath.Join(dir, "history")
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := rl.Stdout()
	fmt.Fprintln(out, `Type "help" for commands, "exit" to leave.`)

	ctx := cmd.Context()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil
		case "shell":
			fmt.Fprintln(out, "Already in the shell.")
			continue
		case "use":
			if len(fields) != 2 {
				fmt.Fprintln(out, "Usage: use <station>")
				continue
			}
			deviceQuery = fields[1]
			rl.SetPrompt(shellPrompt())
			continue
		}

		if err := runShellCommand(cmd.Root(), fields, out); err != nil {
			fmt.Fprintf(rl.Stderr(), "Error: %s\n", deviceconfig.GetShortErrorMessage(err))
		}
		rl.SetPrompt(shellPrompt())
	}
}

// runShellCommand executes one line through the command tree and resets
// the command's local flags afterwards.
func runShellCommand(root *cobra.Command, args []string, out io.Writer) error {
	root.SetArgs(args)
	root.SetOut(out)
	defer root.SetOut(nil)

	executed, err := root.ExecuteC()
	if executed != nil && executed != root {
		executed.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			}
		})
	}
	return err
}
