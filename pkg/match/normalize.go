package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// romanRe matches II through IX after a space. A bare "I" or "X" is left
// alone ("I, Robot", "American History X"), as is a numeral at the start.
var romanRe = regexp.MustCompile(`(?i) (ii|iii|iv|v|vi|vii|viii|ix)\b`)

var romanValues = map[string]string{
	"ii": "2", "iii": "3", "iv": "4", "v": "5",
	"vi": "6", "vii": "7", "viii": "8", "ix": "9",
}

var articles = []string{"the ", "a ", "an "}

// CleanTitle folds a title to the form used for comparison: lower case,
// no accents or punctuation, no leading articles, arabic sequel numbers.
func CleanTitle(title string) string {
	s := strings.ToLower(title)
	s = romanRe.ReplaceAllStringFunc(s, func(m string) string {
		if n, ok := romanValues[strings.TrimSpace(m)]; ok {
			return " " + n
		}
		return m
	})
	s = foldAccents(s)

	s = strings.NewReplacer("&", " and ", "-", " ", "_", " ", "'", "", ".", " ").Replace(s)

	// Each side of a subtitle colon may carry its own article.
	parts := strings.Split(s, ":")
	for i, p := range parts {
		parts[i] = trimArticle(p)
	}
	s = strings.Join(parts, " ")

	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func trimArticle(s string) string {
	s = strings.TrimSpace(s)
	for _, a := range articles {
		if rest, ok := strings.CutPrefix(s, a); ok {
			return rest
		}
	}
	return s
}
