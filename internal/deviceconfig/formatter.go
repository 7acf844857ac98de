package deviceconfig

import (
	"fmt"
	"strings"

	"github.com/stationlink/stationcfg/internal/schema"
)

// MaskKey hides all but the last four hex digits of a key
func MaskKey(key string) string {
	s := StripKey(key)
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("•", len(s))
	}
	return strings.Repeat("•", len(s)-4) + s[len(s)-4:]
}

// displayValue renders a field for humans, masking secrets when asked
func displayValue(f schema.Field, sec *schema.Section, maskSecrets bool) string {
	if !sec.Has(f.Key) {
		return "(not reported)"
	}
	text := sec.Text(f.Key)
	switch {
	case f.Secret && maskSecrets:
		return MaskKey(text)
	case f.Type == schema.Hex8:
		return "0x" + text
	}
	return text
}

// Summary returns a one-line summary of a section
func Summary(sec *schema.Section) string {
	parts := make([]string, 0, sec.Len())
	for _, f := range schema.SchemaFor(sec.Namespace).Fields {
		if !sec.Has(f.Key) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", f.Key, displayValue(f, sec, true)))
	}
	return fmt.Sprintf("%s: %s", sec.Namespace, strings.Join(parts, " "))
}

// FormatSection returns a labelled multi-line listing of a section
func FormatSection(sec *schema.Section, maskSecrets bool) string {
	var b strings.Builder
	sch := schema.SchemaFor(sec.Namespace)

	b.WriteString(fmt.Sprintf("=== %s ===\n", sec.Namespace.Title()))

	width := 0
	for _, f := range sch.Fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}
	for _, f := range sch.Fields {
		suffix := ""
		if f.ReadOnly {
			suffix = " (read-only)"
		}
		b.WriteString(fmt.Sprintf("%-*s  %s%s\n", width+1, f.Label+":", displayValue(f, sec, maskSecrets), suffix))
	}
	return b.String()
}

// FormatDetailed returns every section in sections under a banner
func FormatDetailed(deviceName string, sections []*schema.Section, maskSecrets bool) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("╔════════════════════════════════════════════════════════════════╗\n")
	b.WriteString(fmt.Sprintf("║ %-62s ║\n", "STATION CONFIGURATION: "+deviceName))
	b.WriteString("╚════════════════════════════════════════════════════════════════╝\n")

	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(FormatSection(sec, maskSecrets))
	}
	return b.String()
}

// FormatChanges shows what a prepared write will send
func FormatChanges(p *Prepared) string {
	var b strings.Builder
	sch := schema.SchemaFor(p.Namespace)

	b.WriteString(fmt.Sprintf("=== %s Changes ===\n", p.Namespace.Title()))
	for _, f := range sch.Writable() {
		value := p.Canonical[f.Key]
		if f.Secret {
			value = MaskKey(value)
		}
		b.WriteString(fmt.Sprintf("  %s: %s\n", f.Key, value))
	}
	return b.String()
}

// FormatDiff returns the fields that differ between two values of the
// same section
func FormatDiff(old, new *schema.Section) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("=== %s Differences ===\n", new.Namespace.Title()))

	hasChanges := false
	for _, f := range schema.SchemaFor(new.Namespace).Fields {
		was, okOld := old.Get(f.Key)
		now, okNew := new.Get(f.Key)
		if okOld == okNew && (!okNew || valuesEqual(f.Type, was, now)) {
			continue
		}
		hasChanges = true
		from, to := displayValue(f, old, true), displayValue(f, new, true)
		if f.Secret {
			b.WriteString(fmt.Sprintf("  %s: changed\n", f.Key))
			continue
		}
		b.WriteString(fmt.Sprintf("  %s: %s → %s\n", f.Key, from, to))
	}

	if !hasChanges {
		b.WriteString("\n(no differences detected)\n")
	}
	return b.String()
}
