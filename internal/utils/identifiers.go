package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PadMonth zero-pads numeric months to two digits ("3" -> "03").
// Non-numeric values are returned trimmed and untouched.
func PadMonth(month string) string {
	month = strings.TrimSpace(month)
	n, err := strconv.Atoi(month)
	if err != nil || n < 0 || n > 99 {
		return month
	}
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// NormalizeText lower-cases s, strips accents and collapses whitespace so
// visible labels can be compared by containment.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ReplaceAll(folded, "’", "'")
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SanitizeFilename keeps a filename safe for a Content-Disposition header.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" || name == "." || name == ".." {
		return ""
	}
	return name
}
