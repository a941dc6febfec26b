package qa

import (
	"regexp"
	"strings"
)

// Candidate is an uncleaned question/answer span found by a strategy
type Candidate struct {
	Question string
	Answer   string
}

// Strategy finds candidates of one textual shape
type Strategy interface {
	Name() string
	BaseConfidence() float64
	Candidates(text string) []Candidate
}

// DefaultStrategies returns the strategies in priority order
func DefaultStrategies() []Strategy {
	return []Strategy{
		numberedQAStrategy{},
		numberedItemStrategy{},
		labelStrategy{
			name:     "qa_label",
			question: regexp.MustCompile(`(?:^|\s)Q\s*:`),
			answer:   regexp.MustCompile(`(?:^|\s)A\s*:`),
		},
		labelStrategy{
			name:     "question_label",
			question: regexp.MustCompile(`(?i)\bquestion\s*:`),
			answer:   regexp.MustCompile(`(?i)\banswer\s*:`),
		},
		interrogativeStrategy{},
	}
}

var (
	numberedQAStart   = regexp.MustCompile(`(?m)^\s*\d{1,3}[.)]\s*Q\s*:`)
	numberedItemStart = regexp.MustCompile(`(?m)^\s*\d{1,3}[.)]\s+`)
	qLabel            = regexp.MustCompile(`Q\s*:`)
	aLabel            = regexp.MustCompile(`(?:^|\s)A\s*:`)
	anyAnswerLabel    = regexp.MustCompile(`(?i)(?:^|\s)(?:answer|a)\s*:`)
	anyQuestionLabel  = regexp.MustCompile(`(?i)(?:^|\s)(?:question|q)\s*:`)
	questionSentence  = regexp.MustCompile(`[^.!?\n]*\?`)
)

// splitAt cuts text into segments that each begin at a marker match
func splitAt(text string, marker *regexp.Regexp) []string {
	locs := marker.FindAllStringIndex(text, -1)
	segments := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segments = append(segments, text[loc[0]:end])
	}
	return segments
}

// splitLabelled splits a segment on the first answer label match
func splitLabelled(segment string, answer *regexp.Regexp) (string, string, bool) {
	loc := answer.FindStringIndex(segment)
	if loc == nil {
		return "", "", false
	}
	return segment[:loc[0]], segment[loc[1]:], true
}

type numberedQAStrategy struct{}

func (numberedQAStrategy) Name() string            { return "numbered_qa" }
func (numberedQAStrategy) BaseConfidence() float64 { return 0.9 }

func (numberedQAStrategy) Candidates(text string) []Candidate {
	var out []Candidate
	for _, seg := range splitAt(text, numberedQAStart) {
		q := qLabel.FindStringIndex(seg)
		question, answer, ok := splitLabelled(seg[q[1]:], aLabel)
		if !ok {
			continue
		}
		out = append(out, Candidate{Question: question, Answer: answer})
	}
	return out
}

type numberedItemStrategy struct{}

func (numberedItemStrategy) Name() string            { return "numbered_item" }
func (numberedItemStrategy) BaseConfidence() float64 { return 0.75 }

// Candidates splits each item on an answer label, else after its first
// question mark. Items with neither keep an empty answer. An item ends at
// the next question label so steps inside a labelled answer do not swallow
// the following question.
func (numberedItemStrategy) Candidates(text string) []Candidate {
	var out []Candidate
	for _, seg := range splitAt(text, numberedItemStart) {
		body := seg[numberedItemStart.FindStringIndex(seg)[1]:]
		if loc := anyQuestionLabel.FindStringIndex(body); loc != nil && loc[0] > 0 {
			body = body[:loc[0]]
		}
		if question, answer, ok := splitLabelled(body, anyAnswerLabel); ok {
			out = append(out, Candidate{Question: question, Answer: answer})
			continue
		}
		if i := strings.Index(body, "?"); i >= 0 {
			out = append(out, Candidate{Question: body[:i+1], Answer: body[i+1:]})
			continue
		}
		out = append(out, Candidate{Question: body})
	}
	return out
}

type labelStrategy struct {
	name     string
	question *regexp.Regexp
	answer   *regexp.Regexp
}

func (s labelStrategy) Name() string          { return s.name }
func (labelStrategy) BaseConfidence() float64 { return 0.85 }

func (s labelStrategy) Candidates(text string) []Candidate {
	var out []Candidate
	for _, seg := range splitAt(text, s.question) {
		loc := s.question.FindStringIndex(seg)
		question, answer, ok := splitLabelled(seg[loc[1]:], s.answer)
		if !ok {
			continue
		}
		out = append(out, Candidate{Question: question, Answer: answer})
	}
	return out
}

type interrogativeStrategy struct{}

func (interrogativeStrategy) Name() string            { return "interrogative" }
func (interrogativeStrategy) BaseConfidence() float64 { return 0.6 }

// Candidates treats every sentence ending in "?" as a question and the
// text up to the next such sentence as its answer.
func (interrogativeStrategy) Candidates(text string) []Candidate {
	locs := questionSentence.FindAllStringIndex(text, -1)
	out := make([]Candidate, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, Candidate{
			Question: text[loc[0]:loc[1]],
			Answer:   text[loc[1]:end],
		})
	}
	return out
}
