package pdfextract

import (
	"regexp"
	"strconv"
	"strings"
)

// Document is the scanned and decoded form of a PDF buffer shared by all
// strategies.
type Document struct {
	Raw     []byte
	Objects []Object
	Streams []Stream
}

// NewDocument scans data and decodes its streams
func NewDocument(data []byte) *Document {
	objects := ScanObjects(data)
	return &Document{
		Raw:     data,
		Objects: objects,
		Streams: DecodeStreams(objects),
	}
}

// Strategy recovers text from a document. ok is false when the strategy
// found nothing at all.
type Strategy interface {
	Name() string
	TryExtract(doc *Document) (text string, ok bool)
}

// DefaultStrategies returns the strategies in order of decreasing precision
func DefaultStrategies() []Strategy {
	return []Strategy{
		StructuredStrategy{},
		StreamHeuristicStrategy{},
		ObjectHeuristicStrategy{},
	}
}

var (
	textBlockPattern = regexp.MustCompile(`(?s)\bBT\b(.*?)\bET\b`)
	showPattern      = regexp.MustCompile(`(?s)\((` + literalBody + `)\)\s*(Tj|'|")|\[((?:\\.|[^\\\]])*)\]\s*TJ|<([0-9A-Fa-f\s]*)>\s*Tj`)
	arrayItemPattern = regexp.MustCompile(`(?s)\((` + literalBody + `)\)|<([0-9A-Fa-f\s]*)>|(-?\d+(?:\.\d+)?|-?\.\d+)`)
	positionPattern  = regexp.MustCompile(`(?:^|\s)(?:Td|TD|Tm|T\*)(?:\s|$)`)
)

// kerningSpace is the TJ displacement (thousandths of text space) beyond
// which a gap is read as a word break.
const kerningSpace = -200

// StructuredStrategy reads text-showing operators inside BT/ET blocks
type StructuredStrategy struct{}

func (StructuredStrategy) Name() string { return "structured" }

func (StructuredStrategy) TryExtract(doc *Document) (string, bool) {
	var blocks []string
	for _, s := range doc.Streams {
		for _, m := range textBlockPattern.FindAllSubmatch(s.Data, -1) {
			if text := showText(string(m[1])); strings.TrimSpace(text) != "" {
				blocks = append(blocks, text)
			}
		}
	}
	if len(blocks) == 0 {
		return "", false
	}
	return strings.Join(blocks, "\n"), true
}

// showText concatenates the operands of Tj, TJ, ' and " within one block
func showText(block string) string {
	var b strings.Builder
	last := 0
	for _, m := range showPattern.FindAllStringSubmatchIndex(block, -1) {
		if b.Len() > 0 && positionPattern.MatchString(block[last:m[0]]) {
			writeSeparator(&b, ' ')
		}
		last = m[1]

		switch {
		case m[2] >= 0:
			op := block[m[4]:m[5]]
			if op != "Tj" && b.Len() > 0 {
				writeSeparator(&b, '\n')
			}
			b.WriteString(unescapeLiteral(block[m[2]:m[3]]))
		case m[6] >= 0:
			b.WriteString(arrayText(block[m[6]:m[7]]))
		case m[8] >= 0:
			b.WriteString(decodeHex(block[m[8]:m[9]]))
		}
	}
	return b.String()
}

func arrayText(array string) string {
	var b strings.Builder
	for _, m := range arrayItemPattern.FindAllStringSubmatchIndex(array, -1) {
		switch {
		case m[2] >= 0:
			b.WriteString(unescapeLiteral(array[m[2]:m[3]]))
		case m[4] >= 0:
			b.WriteString(decodeHex(array[m[4]:m[5]]))
		case m[6] >= 0:
			v, err := strconv.ParseFloat(array[m[6]:m[7]], 64)
			if err == nil && v < kerningSpace && b.Len() > 0 {
				writeSeparator(&b, ' ')
			}
		}
	}
	return b.String()
}

func writeSeparator(b *strings.Builder, sep byte) {
	s := b.String()
	if s == "" {
		return
	}
	switch s[len(s)-1] {
	case ' ', '\n':
		return
	}
	b.WriteByte(sep)
}
