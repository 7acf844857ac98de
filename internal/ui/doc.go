// Package ui provides terminal UI components for the stationcfg CLI.
//
// Most components follow a "render once and print" pattern: they style
// output with Lipgloss and return strings, so commands stay scriptable and
// tests can inspect what was rendered.
//
//   - Header: command banner showing the operation and its parameters
//   - Progress: step list following the write pipeline phases
//   - Result: success, failure and warning boxes; failures carry
//     troubleshooting tips derived from the station error
//   - SectionView: a section as a labelled table, secrets masked, changes
//     highlighted
//
// WriteRunner ties them together for section writes. It is installed as
// the session's phase hook so the step list tracks the real pipeline:
//
//	runner := ui.NewWriteRunner(ui.WriteRunnerConfig{
//	    Title:   "Write Section",
//	    Command: "stationcfg set lorawan",
//	    Verify:  true,
//	})
//	mgr := deviceconfig.NewManager(link, deviceconfig.WithPhaseHook(runner.OnPhase))
//
// The only interactive component is the Bubble Tea section editor behind
// `stationcfg edit`.
//
// Logging is controlled via the STATIONCFG_LOG_LEVEL environment variable.
// When unset, zap logging is silent so the curated UI output is displayed
// cleanly.
package ui
