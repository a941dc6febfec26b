package pdfextract

import (
	"bytes"
	"io"
	"regexp"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Stream is the payload of a stream object, inflated when possible
type Stream struct {
	ObjectID string
	Dict     string
	Data     []byte
	Filtered bool // dictionary declares FlateDecode
	Inflated bool // inflation succeeded; false with Filtered means raw bytes
}

var (
	streamPattern = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\n?endstream`)
	flatePattern  = regexp.MustCompile(`/(?:FlateDecode|Fl)\b`)
)

// DecodeStreams pulls the stream payload out of every object that has one.
// Flate-encoded payloads that fail to inflate are kept as raw bytes.
func DecodeStreams(objects []Object) []Stream {
	var streams []Stream
	for _, obj := range objects {
		body := []byte(obj.Content)
		m := streamPattern.FindSubmatchIndex(body)
		if m == nil {
			continue
		}

		dict := string(body[:m[0]])
		data := body[m[2]:m[3]]
		s := Stream{ObjectID: obj.ID, Dict: dict, Data: data}

		if flatePattern.MatchString(dict) {
			s.Filtered = true
			if out, ok := inflate(data); ok {
				s.Data = out
				s.Inflated = true
			}
		}
		streams = append(streams, s)
	}
	return streams
}

// inflate tries a zlib wrapper first and raw DEFLATE second. Truncated
// streams keep whatever was decoded before the error.
func inflate(data []byte) ([]byte, bool) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		out, err := io.ReadAll(zr)
		zr.Close()
		if len(out) > 0 || err == nil {
			return out, true
		}
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if len(out) > 0 || (err == nil && len(data) == 0) {
		return out, true
	}
	return nil, false
}
