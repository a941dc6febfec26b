// Package pdfextract recovers showable text from raw PDF bytes without a
// full PDF grammar. It is best-effort: objects are read in byte order and
// several extraction strategies are tried until one yields enough text.
package pdfextract

import (
	"bytes"
	"regexp"
)

// ObjectType is the coarse classification of an indirect object
type ObjectType string

const (
	ObjectPage    ObjectType = "page"
	ObjectStream  ObjectType = "stream"
	ObjectFont    ObjectType = "font"
	ObjectUnknown ObjectType = "unknown"
)

// Object is one "N G obj ... endobj" span. Content keeps the raw bytes of
// the body; a Go string holds them byte-for-byte.
type Object struct {
	ID      string
	Content string
	Type    ObjectType
}

var (
	objectPattern = regexp.MustCompile(`(?s)(\d+)\s+(\d+)\s+obj\b(.*?)endobj`)
	pageType      = regexp.MustCompile(`/Type\s*/Page\b`)
)

// ScanObjects returns every indirect object found in data, in byte order.
// A buffer with no objects yields an empty slice.
func ScanObjects(data []byte) []Object {
	matches := objectPattern.FindAllSubmatchIndex(data, -1)
	objects := make([]Object, 0, len(matches))
	for _, m := range matches {
		body := data[m[6]:m[7]]
		objects = append(objects, Object{
			ID:      string(data[m[2]:m[3]]) + " " + string(data[m[4]:m[5]]),
			Content: string(body),
			Type:    classify(body),
		})
	}
	return objects
}

func classify(body []byte) ObjectType {
	switch {
	case pageType.Match(body):
		return ObjectPage
	case bytes.Contains(body, []byte("stream")):
		return ObjectStream
	case bytes.Contains(body, []byte("/Font")):
		return ObjectFont
	default:
		return ObjectUnknown
	}
}
