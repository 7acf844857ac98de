package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/stationlink/stationcfg/internal/schema"
)

// Printer provides methods for printing UI components to a writer.
// This is the primary way commands should output styled content.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Param) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Param) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details ...Param) {
	p.Println(NewWarningResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error) {
	p.Println(NewFailureResult(title, err).SetWidth(p.width).Render())
}

// PrintSection prints a section table
func (p *Printer) PrintSection(sec *schema.Section, maskSecrets bool) {
	v := NewSectionView(sec).SetWidth(p.width)
	v.MaskSecrets = maskSecrets
	p.Println(v.Render())
}

// PrintSectionChange prints after with the values that differ from
// before highlighted
func (p *Printer) PrintSectionChange(before, after *schema.Section, maskSecrets bool) {
	v := NewSectionView(after).SetWidth(p.width)
	v.Previous = before
	v.MaskSecrets = maskSecrets
	p.Println(v.Render())
}

// PrintDevices prints a device table
func (p *Printer) PrintDevices(rows []DeviceRow) {
	p.Println(RenderDeviceTable(rows, p.width))
}
