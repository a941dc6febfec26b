package knowledgebase

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/deskmate/internal/qa"
	"github.com/deskmate/pkg/models"
)

// PlaceholderContent replaces an empty answer so no chunk is stored empty
const PlaceholderContent = "Please refer to the original document for the complete answer."

const (
	maxTitleLength = 100
	maxTags        = 5
)

type categoryRule struct {
	category models.Category
	pattern  *regexp.Regexp
}

// categoryRules is checked in order; the first match wins
var categoryRules = []categoryRule{
	{models.CategoryAuthentication, regexp.MustCompile(`(?i)\b(?:log ?in|logins?|log ?out|sign ?in|sign ?on|passwords?|passcode|auth\w*|2fa|mfa|two-factor|sso|single sign-on|credentials?|username)\b`)},
	{models.CategoryBilling, regexp.MustCompile(`(?i)\b(?:billing|bills?|invoices?|payments?|pay|refunds?|charges?|charged|subscriptions?|pricing|prices?|plans?|credit card|receipts?)\b`)},
	{models.CategoryTroubleshooting, regexp.MustCompile(`(?i)\b(?:errors?|troubleshoot\w*|not working|crash\w*|fail\w*|broken|bugs?|issues?|problems?|fix|stuck|slow)\b`)},
	{models.CategoryAccount, regexp.MustCompile(`(?i)\b(?:accounts?|profiles?|settings|preferences|email address|deactivate|delete my)\b`)},
	{models.CategoryTechnical, regexp.MustCompile(`(?i)\b(?:install\w*|configur\w*|setup|api|integrations?|servers?|network|browsers?|software|vpn|database|sync\w*)\b`)},
	{models.CategoryFeatures, regexp.MustCompile(`(?i)\b(?:features?|dashboards?|reports?|export\w*|notifications?|attachments?|search)\b`)},
	{models.CategorySupport, regexp.MustCompile(`(?i)\b(?:support|agents?|contact|help ?desk|escalat\w*|sla|response time)\b`)},
	{models.CategoryFAQ, regexp.MustCompile(`(?i)\b(?:tickets?|faqs?|frequently asked)\b`)},
}

// tagVocabulary is matched as case-insensitive substrings, in this order
var tagVocabulary = []string{
	"password",
	"login",
	"account",
	"billing",
	"payment",
	"invoice",
	"refund",
	"subscription",
	"ticket",
	"email",
	"error",
	"security",
	"settings",
	"profile",
	"notification",
	"report",
	"export",
	"integration",
	"api",
	"mobile",
	"browser",
	"attachment",
	"priority",
	"department",
	"support",
}

// Classify returns the first category whose keywords appear in text
func Classify(text string) models.Category {
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(text) {
			return rule.category
		}
	}
	return models.CategoryGeneral
}

// ExtractTags returns vocabulary terms found in text, at most maxTags
func ExtractTags(text string) []string {
	lower := strings.ToLower(text)
	tags := make([]string, 0, maxTags)
	for _, term := range tagVocabulary {
		if strings.Contains(lower, term) {
			tags = append(tags, term)
			if len(tags) == maxTags {
				break
			}
		}
	}
	return tags
}

// Truncate shortens s to at most n runes, ending with "..." when cut
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}

// NewChunk builds a chunk from a title and content. Empty content is
// replaced with PlaceholderContent.
func NewChunk(title, content string, confidence *float64) models.KnowledgeChunk {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if content == "" {
		content = PlaceholderContent
	}
	combined := title + " " + content

	return models.KnowledgeChunk{
		Title:      Truncate(title, maxTitleLength),
		Content:    content,
		Category:   Classify(combined),
		Tags:       ExtractTags(combined),
		Confidence: confidence,
		IsActive:   true,
	}
}

// BuildChunks converts a segmentation result into unsaved chunks
func BuildChunks(res *qa.Result, source string) []models.KnowledgeChunk {
	chunks := make([]models.KnowledgeChunk, 0, len(res.Pairs)+len(res.Paragraphs))
	for _, p := range res.Pairs {
		confidence := qa.Clamp(p.Confidence)
		chunk := NewChunk(p.Question, p.Answer, &confidence)
		chunk.Source = source
		chunks = append(chunks, chunk)
	}
	for _, p := range res.Paragraphs {
		chunk := NewChunk(p, p, nil)
		chunk.Source = source
		chunks = append(chunks, chunk)
	}
	return chunks
}
