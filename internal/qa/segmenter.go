package qa

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/deskmate/internal/llm"
	"github.com/deskmate/pkg/models"
)

// ErrNoPairs is returned when no tier produced pairs or paragraphs
var ErrNoPairs = errors.New("no question/answer pairs or paragraphs found in document text")

const (
	MethodParagraph = "paragraph"

	minQuestionLength  = 10
	minParagraphLength = 50
	paragraphGroupSize = 200
	primaryYieldRatio  = 0.8
	llmSampleLength    = 8000
	bonus              = 0.05
)

// Completer is the language model used for the escalation tier
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Result is the output of segmentation. Exactly one of Pairs and
// Paragraphs is non-empty.
type Result struct {
	Pairs      []models.QAPair
	Paragraphs []string
	Method     string
}

// Segmenter applies strategies in order and falls back to paragraphs
type Segmenter struct {
	strategies []Strategy
	completer  Completer
	logger     *slog.Logger
}

// Option configures a Segmenter
type Option func(*Segmenter)

// WithCompleter enables the language-model escalation tier
func WithCompleter(c Completer) Option {
	return func(s *Segmenter) { s.completer = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSegmenter creates a Segmenter with the default strategies
func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment splits normalized text into pairs or paragraphs
func (s *Segmenter) Segment(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoPairs
	}

	if res := s.segmentRegex(text); res != nil {
		return res, nil
	}

	if s.completer != nil {
		res, err := s.segmentWithModel(ctx, text)
		if err != nil {
			s.logger.Warn("llm segmentation failed, using paragraphs", "error", err)
		} else if res != nil {
			return res, nil
		}
	}

	if paragraphs := Paragraphs(text); len(paragraphs) > 0 {
		s.logger.Info("no question patterns matched, using paragraphs", "paragraphs", len(paragraphs))
		return &Result{Paragraphs: paragraphs, Method: MethodParagraph}, nil
	}
	return nil, ErrNoPairs
}

// segmentRegex runs every strategy and keeps the first one whose yield is
// comparable to the best yield. Yields count answered pairs; raw counts are
// used only when no strategy produced one. It returns nil when nothing
// matched.
func (s *Segmenter) segmentRegex(text string) *Result {
	yields := make([][]models.QAPair, len(s.strategies))
	answered := make([]int, len(s.strategies))
	for i, strategy := range s.strategies {
		yields[i] = s.clean(strategy, strategy.Candidates(text))
		for _, p := range yields[i] {
			if isAnswered(p) {
				answered[i]++
			}
		}
		s.logger.Debug("segmentation strategy tried", "strategy", strategy.Name(),
			"pairs", len(yields[i]), "answered", answered[i])
	}

	counts := answered
	if maxOf(counts) == 0 {
		counts = make([]int, len(yields))
		for i := range yields {
			counts[i] = len(yields[i])
		}
	}
	pool := maxOf(counts)
	if pool == 0 {
		return nil
	}

	for i, strategy := range s.strategies {
		if n := counts[i]; n > 0 && float64(n) >= primaryYieldRatio*float64(pool) {
			return &Result{Pairs: yields[i], Method: strategy.Name()}
		}
	}
	return nil
}

// isAnswered reports whether a pair reads as a question with an answer
// rather than a bare list item
func isAnswered(p models.QAPair) bool {
	return p.Answer != "" || strings.HasSuffix(p.Question, "?")
}

func maxOf(counts []int) int {
	m := 0
	for _, n := range counts {
		if n > m {
			m = n
		}
	}
	return m
}

func (s *Segmenter) segmentWithModel(ctx context.Context, text string) (*Result, error) {
	sample := text
	if utf8.RuneCountInString(sample) > llmSampleLength {
		sample = string([]rune(sample)[:llmSampleLength])
	}

	reply, err := s.completer.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionInstruction},
			{Role: llm.RoleUser, Content: sample},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	res := s.segmentRegex(Normalize(reply))
	if res == nil {
		return nil, nil
	}
	res.Method = "llm_" + res.Method
	return res, nil
}

const extractionInstruction = `Extract the question and answer pairs contained in the document text below.
Write each pair as two lines, "Q: <question>" followed by "A: <answer>".
Only use wording present in the document. If there are no pairs, reply with nothing.`

var (
	questionPrefix = regexp.MustCompile(`^(?:[•*\-–]\s*)?(?:\d{1,3}[.)]\s*)?(?:(?i:question|q)\s*:\s*)?`)
	answerPrefix   = regexp.MustCompile(`^(?:(?i:answer|a)\s*:\s*)`)
)

func (s *Segmenter) clean(strategy Strategy, candidates []Candidate) []models.QAPair {
	pairs := make([]models.QAPair, 0, len(candidates))
	for _, c := range candidates {
		question := cleanText(questionPrefix.ReplaceAllString(strings.TrimSpace(c.Question), ""))
		answer := cleanText(answerPrefix.ReplaceAllString(strings.TrimSpace(c.Answer), ""))
		if utf8.RuneCountInString(question) < minQuestionLength {
			continue
		}
		pairs = append(pairs, models.QAPair{
			Question:   question,
			Answer:     answer,
			Confidence: score(strategy.BaseConfidence(), question, answer),
			Pattern:    strategy.Name(),
		})
	}
	return pairs
}

func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var leadingInterrogative = regexp.MustCompile(`(?i)^(?:how|what|why)\b`)

func score(base float64, question, answer string) float64 {
	c := base
	if strings.HasSuffix(question, "?") {
		c += bonus
	}
	if utf8.RuneCountInString(answer) > 20 {
		c += bonus
	}
	if leadingInterrogative.MatchString(question) {
		c += bonus
	}
	return Clamp(c)
}

// Clamp bounds a confidence to [0,1]
func Clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// Paragraphs splits text on blank lines, or groups its lines into blocks
// of about paragraphGroupSize runes when there are none. Blocks of
// minParagraphLength runes or fewer are dropped.
func Paragraphs(text string) []string {
	parts := blankLines.Split(text, -1)
	if len(parts) <= 1 {
		parts = groupLines(strings.Split(text, "\n"))
	}

	var out []string
	for _, p := range parts {
		p = cleanText(p)
		if utf8.RuneCountInString(p) > minParagraphLength {
			out = append(out, p)
		}
	}
	return out
}

func groupLines(lines []string) []string {
	var groups []string
	var cur strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(line)
		if utf8.RuneCountInString(cur.String()) >= paragraphGroupSize {
			groups = append(groups, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		groups = append(groups, cur.String())
	}
	return groups
}
