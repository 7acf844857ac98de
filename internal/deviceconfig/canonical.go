package deviceconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	hexPrefix     = regexp.MustCompile(`^0[xX]`)
	keySeparators = regexp.MustCompile(`[\s,]`)
	hexDigits     = regexp.MustCompile(`^[0-9A-Fa-f]*$`)
	leadingInt    = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// FormatDevAddr canonicalizes a device address for writing:
// "0x" followed by uppercase hex, whatever prefix the input had.
//
//	FormatDevAddr("00bfe104")   // "0x00BFE104"
//	FormatDevAddr("0X00BFE104") // "0x00BFE104"
func FormatDevAddr(s string) string {
	s = hexPrefix.ReplaceAllString(strings.TrimSpace(s), "")
	return "0x" + strings.ToUpper(s)
}

// FormatKey canonicalizes a 128-bit key for writing: uppercase hex pairs
// joined by commas. Whitespace and existing commas are ignored. An odd
// trailing digit is kept as its own group so the length is preserved.
//
//	FormatKey("2b7e1516 28aed2a6") // "2B,7E,15,16,28,AE,D2,A6"
func FormatKey(s string) string {
	s = strings.ToUpper(StripKey(s))
	if s == "" {
		return ""
	}
	groups := make([]string, 0, (len(s)+1)/2)
	for i := 0; i < len(s); i += 2 {
		end := i + 2
		if end > len(s) {
			end = len(s)
		}
		groups = append(groups, s[i:end])
	}
	return strings.Join(groups, ",")
}

// StripKey removes whitespace and commas from a key.
func StripKey(s string) string {
	return keySeparators.ReplaceAllString(s, "")
}

// DevAddrFromDevice canonicalizes a device address reported by the
// station for display. Strings lose their 0x prefix and are uppercased;
// short hex strings are left-padded to 8 digits. Integral numbers in the
// 32-bit range are rendered as 8 uppercase hex digits. Anything else is
// reported as absent.
func DevAddrFromDevice(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.ToUpper(hexPrefix.ReplaceAllString(strings.TrimSpace(x), ""))
		if len(s) < 8 && s != "" && hexDigits.MatchString(s) {
			s = strings.Repeat("0", 8-len(s)) + s
		}
		return s, true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return "", false
		}
		return devAddrFromFloat(f)
	case float64:
		return devAddrFromFloat(x)
	case int64:
		return devAddrFromFloat(float64(x))
	default:
		return "", false
	}
}

func devAddrFromFloat(f float64) (string, bool) {
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return "", false
	}
	return fmt.Sprintf("%08X", uint32(f)), true
}

// KeyFromDevice canonicalizes a key reported by the station for display:
// separators removed, uppercase. Non-string values are absent.
func KeyFromDevice(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.ToUpper(StripKey(s)), true
}

// ParseIntLenient parses the leading integer of s, ignoring anything
// after it ("12abc" is 12, "7.9" is 7). ok is false when no digits lead
// the text or the value overflows.
func ParseIntLenient(s string) (int64, bool) {
	m := leadingInt.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseFloatLenient parses the leading decimal number of s ("1.5V" is
// 1.5). ok is false when no number leads the text or it is not finite.
func ParseFloatLenient(s string) (float64, bool) {
	m := leadingFloat.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseBoolText parses true/false, 1/0, on/off and yes/no in any case.
func ParseBoolText(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes", "y", "t":
		return true, true
	case "false", "0", "off", "no", "n", "f":
		return false, true
	default:
		return false, false
	}
}
