package identifiers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalid  = regexp.MustCompile(`[^\w\s-]`)
	slugDividers = regexp.MustCompile(`[-\s]+`)

	nonASCII = runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })
)

// asciiFold decomposes accented letters and drops what is left outside ASCII.
// A chain keeps internal buffers, so every call gets its own.
func asciiFold() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(nonASCII))
}

// Slugify converts s to a URL-safe ASCII slug: "Café  Déjà-vu!" -> "cafe-deja-vu".
func Slugify(s string) string {
	folded, _, err := transform.String(asciiFold(), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = slugInvalid.ReplaceAllString(folded, "")
	folded = slugDividers.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-_")
}
