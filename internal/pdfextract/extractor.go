package pdfextract

import (
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// ErrInsufficientText is returned when no strategy recovered enough text
var ErrInsufficientText = errors.New("insufficient text extracted: likely image-based or corrupted PDF")

// ErrEmptyInput is returned for a zero-length buffer
var ErrEmptyInput = errors.New("empty PDF input")

const (
	// DefaultMinTextLength is the trimmed length a strategy must exceed
	DefaultMinTextLength = 50

	sampleLength = 500
)

// Result is the outcome of a successful extraction
type Result struct {
	Text        string
	Method      string
	ObjectCount int
	StreamCount int
}

// Sample returns the leading part of the text for previews
func (r *Result) Sample() string {
	if utf8.RuneCountInString(r.Text) <= sampleLength {
		return r.Text
	}
	return string([]rune(r.Text)[:sampleLength])
}

// Extractor runs strategies in order until one yields enough text
type Extractor struct {
	strategies []Strategy
	minLength  int
	logger     *slog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithStrategies replaces the default strategy order
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) { e.strategies = strategies }
}

// WithMinTextLength overrides DefaultMinTextLength
func WithMinTextLength(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minLength = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor with the default strategies
func New(opts ...Option) *Extractor {
	e := &Extractor{
		strategies: DefaultStrategies(),
		minLength:  DefaultMinTextLength,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract recovers text from a PDF buffer
func (e *Extractor) Extract(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	doc := NewDocument(data)
	e.logger.Debug("pdf scanned",
		"bytes", len(data),
		"objects", len(doc.Objects),
		"streams", len(doc.Streams))

	for _, s := range e.strategies {
		text, ok := s.TryExtract(doc)
		n := utf8.RuneCountInString(strings.TrimSpace(text))
		e.logger.Debug("extraction strategy tried", "strategy", s.Name(), "found", ok, "length", n)
		if !ok || n <= e.minLength {
			continue
		}
		return &Result{
			Text:        text,
			Method:      s.Name(),
			ObjectCount: len(doc.Objects),
			StreamCount: len(doc.Streams),
		}, nil
	}

	e.logger.Info("no extraction strategy produced enough text",
		"objects", len(doc.Objects),
		"streams", len(doc.Streams))
	return nil, ErrInsufficientText
}
