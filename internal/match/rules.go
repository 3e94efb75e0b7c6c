package match

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/applyforge/applyforge/pkg/models"
)

// Verdict is the outcome of a hard-gate evaluation.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// RuleResult is one rule's contribution to a hard-gate evaluation.
type RuleResult struct {
	Rule    string  `json:"rule"`
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
}

// Rule is a pure hard-gate predicate over a posting and a profile.
type Rule interface {
	Name() string
	Evaluate(posting *models.Posting, profile *models.Profile) RuleResult
}

// RuleSet evaluates hard gates in a fixed registration order. Every rule runs
// regardless of earlier rejections so the audit trail is complete, but the
// first rejection in rule order is the authoritative verdict.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet builds the standard rule set. Registration order is part of the
// contract: when several rules would reject the same posting, the surfaced
// reason is the earliest-registered one.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules: []Rule{
			techStackRule{},
			remoteRule{},
			seniorityRule{},
		},
	}
}

// Evaluate runs all rules and returns the authoritative verdict plus the full
// per-rule breakdown. The breakdown is also logged for audit, independent of
// the final verdict.
func (rs *RuleSet) Evaluate(posting *models.Posting, profile *models.Profile) (RuleResult, []RuleResult) {
	results := make([]RuleResult, 0, len(rs.rules))
	verdict := RuleResult{Verdict: VerdictAccepted, Reason: "passed all hard gates"}
	decided := false

	for _, rule := range rs.rules {
		res := rule.Evaluate(posting, profile)
		results = append(results, res)
		if res.Verdict == VerdictRejected && !decided {
			verdict = res
			decided = true
		}
	}

	slog.Info("hard gate evaluation",
		"ats_provider", posting.ATSProvider,
		"ats_job_id", posting.ATSJobID,
		"title", posting.Title,
		"verdict", verdict.Verdict,
		"reason", verdict.Reason,
		"breakdown", results,
	)

	return verdict, results
}

// techStackRule rejects postings whose text contains any excluded keyword.
type techStackRule struct{}

func (techStackRule) Name() string { return "tech_stack_exclusion" }

func (r techStackRule) Evaluate(posting *models.Posting, profile *models.Profile) RuleResult {
	combined := strings.ToLower(posting.Title + " " + posting.Description + " " + posting.Company)
	for _, kw := range profile.Preferences.ExcludedKeywords {
		if kw != "" && strings.Contains(combined, strings.ToLower(kw)) {
			return RuleResult{
				Rule:    r.Name(),
				Verdict: VerdictRejected,
				Reason:  fmt.Sprintf("posting contains excluded keyword %q", kw),
			}
		}
	}
	return RuleResult{Rule: r.Name(), Verdict: VerdictAccepted, Reason: "no excluded keywords found"}
}

// remoteRule rejects non-remote postings for remote-only users.
type remoteRule struct{}

func (remoteRule) Name() string { return "remote_requirement" }

func (r remoteRule) Evaluate(posting *models.Posting, profile *models.Profile) RuleResult {
	if profile.Preferences.RemoteOnly && !posting.IsRemote {
		return RuleResult{
			Rule:    r.Name(),
			Verdict: VerdictRejected,
			Reason:  "user requires remote and posting is not remote",
		}
	}
	return RuleResult{Rule: r.Name(), Verdict: VerdictAccepted, Reason: "remote requirement satisfied"}
}

// seniorityRule rejects postings whose title contains an excluded seniority
// term.
type seniorityRule struct{}

func (seniorityRule) Name() string { return "seniority_exclusion" }

func (r seniorityRule) Evaluate(posting *models.Posting, profile *models.Profile) RuleResult {
	title := strings.ToLower(posting.Title)
	for _, term := range profile.Preferences.MaxSeniority {
		if term != "" && strings.Contains(title, strings.ToLower(term)) {
			return RuleResult{
				Rule:    r.Name(),
				Verdict: VerdictRejected,
				Reason:  fmt.Sprintf("title contains excluded seniority term %q", term),
			}
		}
	}
	return RuleResult{Rule: r.Name(), Verdict: VerdictAccepted, Reason: "no excluded seniority terms in title"}
}
