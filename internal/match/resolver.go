package match

import "github.com/hireloop/mailsync/internal/domain"

// Result is the resolver's verdict for one message against a requirement set.
type Result struct {
	Requirement *domain.Requirement
	Score       int
	// ShouldLink is true when the best score clears the absolute floor.
	ShouldLink bool
	// NeedsConfirmation is true when the match clears the floor but not the
	// user's chosen tier, so a human must confirm before linking.
	NeedsConfirmation bool
}

// Resolve scores msg against every open requirement and classifies the best
// hit against the given confidence tier. Ties go to the first requirement
// reaching the top score, so the verdict is stable with respect to input
// order. Closed requirements are skipped.
func Resolve(reqs []domain.Requirement, msg domain.InboundMessage, tier domain.ConfidenceTier) Result {
	var res Result
	for i := range reqs {
		if reqs[i].Status == domain.RequirementClosed {
			continue
		}
		score := Score(reqs[i], msg)
		if res.Requirement == nil || score > res.Score {
			res.Requirement = &reqs[i]
			res.Score = score
		}
	}
	if res.Requirement == nil {
		return Result{}
	}
	res.ShouldLink = res.Score >= domain.LinkFloor
	res.NeedsConfirmation = res.ShouldLink && res.Score < tier.Threshold()
	return res
}
