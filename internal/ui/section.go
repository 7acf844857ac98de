package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// SectionView renders one section as a labelled table.
type SectionView struct {
	Section     *schema.Section
	Previous    *schema.Section // When set, changed values are highlighted
	MaskSecrets bool
	Width       int
}

// NewSectionView creates a view of sec with secrets masked
func NewSectionView(sec *schema.Section) *SectionView {
	return &SectionView{
		Section:     sec,
		MaskSecrets: true,
		Width:       GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (v *SectionView) SetWidth(width int) *SectionView {
	v.Width = width
	return v
}

// Render returns the styled section box
func (v *SectionView) Render() string {
	width := v.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	ns := v.Section.Namespace
	sch := schema.SchemaFor(ns)

	labelWidth := 0
	for _, f := range sch.Fields {
		if w := lipgloss.Width(f.Label); w > labelWidth {
			labelWidth = w
		}
	}

	lines := []string{
		SectionTitleStyle.Render(fmt.Sprintf("%s  %s", ns.Title(), FieldReadOnlyStyle.Render(schema.LocatorFor(ns).String()))),
	}
	for _, f := range sch.Fields {
		label := FieldLabelStyle.Render(f.Label + ":" + strings.Repeat(" ", labelWidth-lipgloss.Width(f.Label)))
		lines = append(lines, label+"  "+v.renderValue(f))
	}

	return SectionBoxStyle(width).Render(strings.Join(lines, "\n"))
}

func (v *SectionView) renderValue(f schema.Field) string {
	if !v.Section.Has(f.Key) {
		return FieldReadOnlyStyle.Render("(not reported)")
	}

	text := v.Section.Text(f.Key)
	switch {
	case f.Secret && v.MaskSecrets:
		text = deviceconfig.MaskKey(text)
	case f.Type == schema.Hex8:
		text = "0x" + text
	}

	switch {
	case f.ReadOnly:
		return FieldReadOnlyStyle.Render(text + " (read-only)")
	case v.Previous != nil && v.Previous.Text(f.Key) != v.Section.Text(f.Key):
		return FieldChangedStyle.Render(text) + " " + StepNoteStyle.Render("(was "+v.previousText(f)+")")
	default:
		return FieldValueStyle.Render(text)
	}
}

func (v *SectionView) previousText(f schema.Field) string {
	if !v.Previous.Has(f.Key) {
		return "unset"
	}
	text := v.Previous.Text(f.Key)
	if f.Secret && v.MaskSecrets {
		return deviceconfig.MaskKey(text)
	}
	return text
}

// String implements fmt.Stringer
func (v *SectionView) String() string {
	return v.Render()
}

// DeviceRow is one line of a device list
type DeviceRow struct {
	Device   transport.Device
	Nickname string
	Known    bool // Present in the registry
}

// RenderDeviceTable renders scanned or known devices as an aligned table
func RenderDeviceTable(rows []DeviceRow, width int) string {
	if len(rows) == 0 {
		return StepPendingStyle.Render("  No stations found.")
	}

	idWidth, nameWidth := len("DEVICE"), len("NAME")
	for _, r := range rows {
		idWidth = max(idWidth, len(r.Device.ID))
		nameWidth = max(nameWidth, len(displayName(r)))
	}

	header := fmt.Sprintf("  %-*s  %-*s  %5s  %s", idWidth, "DEVICE", nameWidth, "NAME", "RSSI", "LAST SEEN")
	lines := []string{HeaderParamKeyStyle.UnsetPaddingLeft().Bold(true).Render(header)}
	for _, r := range rows {
		rssi := ""
		if r.Device.RSSI != 0 {
			rssi = fmt.Sprintf("%d", r.Device.RSSI)
		}
		seen := ""
		if !r.Device.LastSeen.IsZero() {
			seen = r.Device.LastSeen.Local().Format("2006-01-02 15:04")
		}
		name := fmt.Sprintf("%-*s", nameWidth, displayName(r))
		if r.Nickname != "" {
			name = FieldChangedStyle.UnsetBold().Render(name)
		}
		line := fmt.Sprintf("  %-*s  %s  %5s  %s", idWidth, r.Device.ID, name, rssi, seen)
		if !r.Known {
			line += "  " + StepNoteStyle.Render("(new)")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func displayName(r DeviceRow) string {
	if r.Nickname != "" {
		return r.Nickname
	}
	return r.Device.Name
}
