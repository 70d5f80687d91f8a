package acquire

import (
	"context"
)

// PolicyDecisions answers prompts without asking anyone. It downloads when a
// download is offered (once per run), keeps outdated tools, keeps untrusted
// tools only when TrustUnverified is set, and cancels otherwise.
type PolicyDecisions struct {
	// AllowDownload permits the Download action.
	AllowDownload bool
	// TrustUnverified keeps tools whose digest is not whitelisted.
	TrustUnverified bool
	// OnProgress observes download progress. Nil never cancels.
	OnProgress func(done, total int64) bool

	downloaded bool
}

// Decide implements DecisionProvider.
func (p *PolicyDecisions) Decide(ctx context.Context, pr Prompt) (Action, error) {
	switch pr.State {
	case StateOutdated:
		return ActionKeep, nil
	case StateNotAllowed:
		if p.TrustUnverified {
			return ActionKeep, nil
		}
		return ActionCancel, nil
	}

	if p.AllowDownload && !p.downloaded && pr.Offers(ActionDownload) {
		p.downloaded = true
		return ActionDownload, nil
	}
	return ActionCancel, nil
}

// ChoosePath implements DecisionProvider. It always declines.
func (p *PolicyDecisions) ChoosePath(ctx context.Context, pr PathPrompt) (string, bool, error) {
	return "", false, nil
}

// Progress implements DecisionProvider.
func (p *PolicyDecisions) Progress(done, total int64) bool {
	if p.OnProgress == nil {
		return true
	}
	return p.OnProgress(done, total)
}
