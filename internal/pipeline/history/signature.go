package history

import (
	"regexp"
	"strings"
)

// Two events rarely share a literal message: request IDs, GUIDs, numeric
// offsets and file paths make every occurrence unique. Signature normalizes
// those volatile substrings to placeholders so frequency grouping sees the
// underlying pattern. One signature function feeds every grouping path;
// exact-message grouping is deliberately not used anywhere.
var (
	uuidRe = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexRe  = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	pathRe = regexp.MustCompile(`(?:[A-Za-z]:)?(?:[\\/][\w.\-]+){2,}`)
	numRe  = regexp.MustCompile(`\d+`)
	wsRe   = regexp.MustCompile(`\s+`)
)

// Signature returns the normalized grouping key for an error message.
func Signature(message string) string {
	s := uuidRe.ReplaceAllString(message, "{uuid}")
	s = hexRe.ReplaceAllString(s, "{hex}")
	s = pathRe.ReplaceAllString(s, "{path}")
	s = numRe.ReplaceAllString(s, "{n}")
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
