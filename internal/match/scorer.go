package match

import (
	"regexp"
	"strings"

	"github.com/hireloop/mailsync/internal/domain"
)

// Component weights of the confidence model. The model is a transparent
// linear combination so each contribution can be logged and audited.
const (
	subjectWeight = 40
	bodyWeight    = 30
	titleWeight   = 20
	domainWeight  = 10

	subjectThreshold = 70
	bodyThreshold    = 80

	subjectKeywordCap = 5
	bodyKeywordCap    = 10
)

// domainPattern finds the first word.tld shape in a requirement title,
// e.g. the "google.com" in "Data Engineer - google.com".
var domainPattern = regexp.MustCompile(`\b[a-z0-9][a-z0-9-]*\.[a-z]{2,}\b`)

// Breakdown exposes the per-component contributions behind a score.
type Breakdown struct {
	Keywords        []string
	SubjectMatches  []string
	BodyMatches     []string
	Subject         float64
	Body            float64
	TitleSimilarity float64
	Domain          float64
	Total           int
}

// Score returns the confidence, 0..100, that msg concerns req, using the
// first recipient for the domain component.
func Score(req domain.Requirement, msg domain.InboundMessage) int {
	return ScoreDetailed(req, msg).Total
}

// ScoreDetailed computes the full component breakdown:
//
//	subject keyword hits        weight 40 (threshold 70, denominator capped at 5)
//	body keyword hits           weight 30 (threshold 80, denominator capped at 10)
//	title-to-subject similarity weight 20
//	recipient domain in title   weight 10
//
// A requirement with no extractable keywords scores 0: nothing to match on.
func ScoreDetailed(req domain.Requirement, msg domain.InboundMessage) Breakdown {
	b := Breakdown{
		Keywords: ExtractKeywords(req.Title + " " + req.Description),
	}
	if len(b.Keywords) == 0 {
		return b
	}

	b.SubjectMatches = FindMatches(b.Keywords, msg.Subject, subjectThreshold)
	b.Subject = float64(len(b.SubjectMatches)) /
		float64(minInt(len(b.Keywords), subjectKeywordCap)) * subjectWeight

	b.BodyMatches = FindMatches(b.Keywords, msg.Body, bodyThreshold)
	b.Body = float64(len(b.BodyMatches)) /
		float64(minInt(len(b.Keywords), bodyKeywordCap)) * bodyWeight

	b.TitleSimilarity = float64(Similarity(
		strings.ToLower(req.Title), strings.ToLower(msg.Subject))) / 100 * titleWeight

	if len(msg.To) > 0 {
		b.Domain = domainScore(req.Title, msg.To[0])
	}

	total := int(b.Subject + b.Body + b.TitleSimilarity + b.Domain + 0.5)
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	b.Total = total
	return b
}

// domainScore awards the full weight when the recipient's mail domain and a
// domain-like substring of the title contain each other, else 0. Titles that
// name a company without a TLD ("Data Engineer - Google") fall back to
// keyword-level containment against the recipient domain.
func domainScore(title string, recipient domain.Address) float64 {
	rcpt := recipient.Domain()
	if rcpt == "" {
		return 0
	}
	lower := strings.ToLower(title)
	if hint := domainPattern.FindString(lower); hint != "" {
		if strings.Contains(rcpt, hint) || strings.Contains(hint, rcpt) {
			return domainWeight
		}
		return 0
	}
	for _, kw := range ExtractKeywords(lower) {
		if strings.Contains(rcpt, kw) || strings.Contains(kw, rcpt) {
			return domainWeight
		}
	}
	return 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
