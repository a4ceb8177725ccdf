package etl

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/pkg/models"
)

// AutoAcceptThreshold is the minimum confidence for a column to be mapped
// without user confirmation.
const AutoAcceptThreshold = 95

// InferMapping proposes one ColumnMapping per header. A column only gets a
// TargetField when its best candidate reaches AutoAcceptThreshold, and each
// field is given to at most one column.
func InferMapping(headers []string, e models.EntityType) ([]models.ColumnMapping, error) {
	spec, err := registry.Lookup(e)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	cands := candidates(spec)
	out := make([]models.ColumnMapping, len(headers))
	claimed := map[string]int{}

	for i, h := range headers {
		out[i] = models.ColumnMapping{SourceColumn: h}
		field, conf := bestField(normalizeHeader(h), cands)
		if field == "" {
			continue
		}
		out[i].Confidence = conf
		out[i].Suggested = field
		if conf < AutoAcceptThreshold {
			continue
		}
		if prev, ok := claimed[field]; ok && out[prev].Confidence >= conf {
			continue
		} else if ok {
			out[prev].TargetField = ""
			out[prev].Required = false
		}
		claimed[field] = i
		f, _ := spec.Field(field)
		out[i].TargetField = field
		out[i].Required = f.Required
	}
	for i := range out {
		if out[i].Mapped() {
			out[i].Suggested = ""
		}
	}
	return out, nil
}

type candidate struct {
	field string
	names []string
}

func candidates(spec models.EntitySpec) []candidate {
	out := make([]candidate, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		names := []string{normalizeHeader(f.Key), normalizeHeader(f.Label)}
		for _, a := range f.Aliases {
			names = append(names, normalizeHeader(a))
		}
		out = append(out, candidate{field: f.Key, names: names})
	}
	return out
}

// bestField returns the highest-scoring field; declaration order breaks ties.
func bestField(header string, cands []candidate) (string, int) {
	if header == "" {
		return "", 0
	}
	best, bestConf := "", 0
	for _, c := range cands {
		for _, name := range c.names {
			if conf := similarity(header, name); conf > bestConf {
				best, bestConf = c.field, conf
			}
		}
	}
	return best, bestConf
}

// similarity scores two normalized strings 0..100 as the maximum of a
// compact exact match, Levenshtein similarity and token overlap.
func similarity(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	ca, cb := strings.ReplaceAll(a, " ", ""), strings.ReplaceAll(b, " ", "")
	if ca == cb {
		return 100
	}
	longest := utf8.RuneCountInString(ca)
	if n := utf8.RuneCountInString(cb); n > longest {
		longest = n
	}
	lev := 100 - fuzzy.LevenshteinDistance(ca, cb)*100/longest
	if lev < 0 {
		lev = 0
	}
	if dice := tokenDice(a, b); dice > lev {
		return dice
	}
	return lev
}

func tokenDice(a, b string) int {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]int, len(tb))
	for _, t := range tb {
		set[t]++
	}
	common := 0
	for _, t := range ta {
		if set[t] > 0 {
			set[t]--
			common++
		}
	}
	return 200 * common / (len(ta) + len(tb))
}

// normalizeHeader folds a header or field name to lower-case words:
// diacritics removed, camelCase split, punctuation turned into spaces.
func normalizeHeader(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	var b strings.Builder
	var prev rune
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsUpper(r):
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
		prev = r
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
