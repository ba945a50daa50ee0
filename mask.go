package logincapture

import "strings"

const (
	maskRune       = '*'
	maskVisible    = 3
	secretMask     = "********"
	minPartialMask = 2*maskVisible + 1
)

// MaskIdentifier keeps the first and last three runes and replaces the rest
// with one mask rune each. Anything shorter than seven runes would expose
// the whole value, so it is masked entirely.
func MaskIdentifier(id string) string {
	r := []rune(id)
	if len(r) < minPartialMask {
		return strings.Repeat(string(maskRune), len(r))
	}
	concealed := len(r) - 2*maskVisible
	return string(r[:maskVisible]) + strings.Repeat(string(maskRune), concealed) + string(r[len(r)-maskVisible:])
}
