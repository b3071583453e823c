// Package billing decides whether a tenant may consume quota: score another
// lead or send another reply. It only reads the profile snapshot; the
// usage counters are incremented elsewhere, after the work succeeds.
package billing

// Plan is a subscription tier with its monthly allowances.
type Plan struct {
	Name       string
	LeadLimit  int
	ReplyLimit int
}

const (
	// effectively unlimited; kept finite so usage math stays simple
	proReplyLimit = 999999

	trialLeadLimit  = 25
	trialReplyLimit = 5
	proLeadLimit    = 500
)

var (
	planPro = Plan{Name: "Pro", LeadLimit: proLeadLimit, ReplyLimit: proReplyLimit}

	planTrial = Plan{Name: "Free Trial", LeadLimit: trialLeadLimit, ReplyLimit: trialReplyLimit}
)

// planFor maps a subscription status to its plan. Active subscriptions are
// Pro; everything else is treated as the trial tier.
func planFor(status string) Plan {
	if status == "active" {
		return planPro
	}
	return planTrial
}
