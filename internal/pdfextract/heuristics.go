package pdfextract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	printableRunPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9 ,.;:'"?!\-]{4,}`)
	literalPattern      = regexp.MustCompile(`(?s)\((` + literalBody + `)\)`)
)

// minLetterDensity is the share of non-space runes that must be letters
const minLetterDensity = 0.6

var commonWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "has": {},
	"have": {}, "how": {}, "i": {}, "if": {}, "in": {}, "is": {}, "it": {},
	"my": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "the": {},
	"this": {}, "to": {}, "we": {}, "what": {}, "when": {}, "why": {},
	"will": {}, "with": {}, "you": {}, "your": {},
}

// Readable reports whether s looks like prose: mostly letters and either a
// common short word or a question/answer marker.
func Readable(s string) bool {
	var letters, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 || float64(letters)/float64(total) < minLetterDensity {
		return false
	}

	lower := strings.ToLower(s)
	if strings.Contains(lower, "?") || strings.Contains(lower, "answer") || strings.Contains(lower, "question") {
		return true
	}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if _, ok := commonWords[w]; ok {
			return true
		}
	}
	return false
}

// StreamHeuristicStrategy collects English-looking runs from stream data
type StreamHeuristicStrategy struct{}

func (StreamHeuristicStrategy) Name() string { return "stream_heuristic" }

func (StreamHeuristicStrategy) TryExtract(doc *Document) (string, bool) {
	var parts []string
	for _, s := range doc.Streams {
		for _, run := range printableRunPattern.FindAll(s.Data, -1) {
			text := strings.TrimSpace(string(run))
			if Readable(text) {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// ObjectHeuristicStrategy collects readable literal strings from object
// bodies, or from the whole buffer when no objects were found.
type ObjectHeuristicStrategy struct{}

func (ObjectHeuristicStrategy) Name() string { return "object_heuristic" }

func (ObjectHeuristicStrategy) TryExtract(doc *Document) (string, bool) {
	sources := make([]string, 0, len(doc.Objects))
	for _, obj := range doc.Objects {
		sources = append(sources, obj.Content)
	}
	if len(sources) == 0 {
		sources = append(sources, string(doc.Raw))
	}

	var parts []string
	for _, src := range sources {
		for _, m := range literalPattern.FindAllStringSubmatch(src, -1) {
			text := strings.TrimSpace(unescapeLiteral(m[1]))
			if strings.Contains(text, "obj") || strings.Contains(text, "endobj") {
				continue
			}
			if Readable(text) {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}
