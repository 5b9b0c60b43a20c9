package verifier

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
)

// Report is the auditor-facing rendering of a verdict: the verdict itself
// plus the individual checks it was derived from.
type Report struct {
	RunID      string        `json:"run_id"`
	Target     string        `json:"target"`
	Verified   bool          `json:"verified"`
	Timestamp  time.Time     `json:"timestamp"`
	Policy     trust.Policy  `json:"policy"`
	Checks     []CheckResult `json:"checks"`
	Summary    string        `json:"summary"`
	IssueCount int           `json:"issue_count"`
	Verdict    *Verdict      `json:"verdict"`
}

// CheckResult is a single verification check.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NewReport explains v as a list of checks.
func NewReport(v *Verdict, policy trust.Policy) *Report {
	r := &Report{
		RunID:     uuid.NewString(),
		Target:    v.Target.String(),
		Verified:  v.Sufficient,
		Timestamp: time.Now().UTC(),
		Policy:    policy,
		Checks:    make([]CheckResult, 0, 4),
		Verdict:   v,
	}

	if v.Reviews == 0 {
		r.addCheck(CheckResult{Name: "reviews_present", Pass: false, Reason: "no reviews of target"})
	} else {
		r.addCheck(CheckResult{Name: "reviews_present", Pass: true, Detail: fmt.Sprintf("%d reviewer(s), %d untrusted", v.Reviews, v.Untrusted)})
	}

	if len(v.Contributing) > 0 {
		r.addCheck(CheckResult{Name: "trusted_review", Pass: true, Detail: fmt.Sprintf("%d reviewer(s) at or above %s", len(v.Contributing), policy.MinTrustLevel)})
	} else {
		r.addCheck(CheckResult{Name: "trusted_review", Pass: false, Reason: fmt.Sprintf("no trusted review at or above %s", policy.MinTrustLevel)})
	}

	if len(v.Vetoing) == 0 {
		r.addCheck(CheckResult{Name: "no_distrust", Pass: true, Detail: "no trusted reviewer vetoed the target"})
	} else {
		r.addCheck(CheckResult{Name: "no_distrust", Pass: false, Reason: v.Explanation})
	}

	r.addCheck(CheckResult{Name: "poisoned_identities", Pass: true, Detail: fmt.Sprintf("%d identity(ies) excluded by distrust", len(v.Poisoned))})

	for _, c := range r.Checks {
		if !c.Pass {
			r.IssueCount++
		}
	}
	if r.IssueCount > 0 {
		r.Summary = fmt.Sprintf("FAIL: %d/%d checks failed", r.IssueCount, len(r.Checks))
	} else {
		r.Summary = fmt.Sprintf("PASS: %d/%d checks passed", len(r.Checks), len(r.Checks))
	}
	return r
}

func (r *Report) addCheck(c CheckResult) {
	r.Checks = append(r.Checks, c)
}
