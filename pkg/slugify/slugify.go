package slugify

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make derives a URL slug from a display name: accents folded, lowercased,
// runs of non-alphanumeric characters collapsed to single hyphens, no
// leading or trailing hyphen.
func Make(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

// MakeUnique appends a base36 timestamp so slugs derived from the same name
// never collide
func MakeUnique(name string) string {
	return Make(name) + "-" + strconv.FormatInt(time.Now().UnixMilli(), 36)
}
