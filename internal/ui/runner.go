package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
)

// StepCallback is the function signature for step progress updates.
// Operations call this to report progress of steps the pipeline does not
// report itself, such as verification.
type StepCallback func(stepNumber int, status StepStatus, message string)

// WriteRunnerConfig holds configuration for a section write
type WriteRunnerConfig struct {
	Title   string    // Command title (e.g., "Write Section")
	Command string    // Full command (e.g., "stationcfg set lorawan")
	Params  []Param   // Parameters to display in header
	Verify  bool      // Whether a verification step follows the write
	Output  io.Writer // Output writer (default: os.Stdout)
}

// WriteRunner orchestrates the UI for a section write. It manages the
// header → progress → result flow and follows the write pipeline through
// OnPhase.
type WriteRunner struct {
	config    WriteRunnerConfig
	header    *Header
	progress  *Progress
	output    io.Writer
	startTime time.Time
	width     int

	mu      sync.Mutex
	running int
	writing bool
}

// NewWriteRunner creates a new runner for a section write
func NewWriteRunner(config WriteRunnerConfig) *WriteRunner {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	width := GetTerminalWidth()
	return &WriteRunner{
		config:   config,
		header:   NewHeader(config.Title, config.Command, config.Params...).SetWidth(width),
		progress: NewWriteProgress("", config.Verify).SetWidth(width),
		output:   config.Output,
		width:    width,
	}
}

// VerifyStep returns the step number of the verification step, or 0 when
// the runner was configured without one.
func (r *WriteRunner) VerifyStep() int {
	if !r.config.Verify {
		return 0
	}
	return r.progress.Total
}

// OnPhase is a deviceconfig.PhaseHook that advances the step list. Read
// pipelines, such as the read-back during verification, are ignored.
func (r *WriteRunner) OnPhase(_ string, _ schema.Namespace, ph deviceconfig.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ph == deviceconfig.PhaseCanonicalizing {
		r.writing = true
	}
	if !r.writing {
		return
	}

	switch ph {
	case deviceconfig.PhaseSent:
		r.finishRunning(StepComplete, "")
		r.writing = false
	case deviceconfig.PhaseFailed:
		r.finishRunning(StepFailed, "")
		r.writing = false
	default:
		step := StepForPhase(ph)
		if step == 0 {
			return
		}
		r.finishRunning(StepComplete, "")
		r.setStep(step, StepRunning, "")
		r.running = step
	}
}

func (r *WriteRunner) finishRunning(status StepStatus, message string) {
	if r.running == 0 {
		return
	}
	r.setStep(r.running, status, message)
	r.running = 0
}

// setStep updates a step and prints its line. Completed lines end with a
// newline; a running line is overwritten when it completes.
func (r *WriteRunner) setStep(step int, status StepStatus, message string) {
	r.progress.UpdateStep(step, status, message)
	line := r.progress.renderStepLine(r.progress.Steps[step-1])
	if status == StepRunning {
		_, _ = fmt.Fprint(r.output, line+"\r")
		return
	}
	_, _ = fmt.Fprintln(r.output, line)
}

// WriteOperation performs the write. It returns details for the success
// box.
type WriteOperation func(ctx context.Context, onStep StepCallback) ([]Param, error)

// Run executes the operation with UI updates.
func (r *WriteRunner) Run(ctx context.Context, operation WriteOperation) error {
	r.startTime = time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	onStep := func(step int, status StepStatus, message string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if step < 1 || step > r.progress.Total {
			return
		}
		r.setStep(step, status, message)
		if status == StepRunning {
			r.running = step
		} else if r.running == step {
			r.running = 0
		}
	}

	details, err := operation(ctx, onStep)
	duration := time.Since(r.startTime).Round(time.Millisecond)

	r.mu.Lock()
	if err != nil {
		r.finishRunning(StepFailed, "")
	}
	r.mu.Unlock()

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		_, _ = fmt.Fprintln(r.output, NewFailureResult(r.config.Title+" failed", err).SetWidth(r.width).Render())
		return err
	}

	details = append(details, Param{Key: "Duration", Value: duration.String()})
	_, _ = fmt.Fprintln(r.output, NewSuccessResult(r.config.Title+" complete", details...).SetWidth(r.width).Render())
	return nil
}

// PrintPleaseWait prints a styled "please wait" message for long-running
// operations such as scans. The hint sets expectations, e.g. "5s".
func PrintPleaseWait(out io.Writer, message, durationHint string) {
	style := lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true).
		PaddingLeft(2)

	hintStyle := lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true)

	line := style.Render("⏳ " + message)
	if durationHint != "" {
		line += " " + hintStyle.Render("("+durationHint+")")
	}
	line += style.Render("...")

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, line)
	_, _ = fmt.Fprintln(out)
}
