package verifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
)

// Reviewer is a trusted identity whose latest review of the target counted
// toward (or against) the verdict.
type Reviewer struct {
	ID     identity.ID  `json:"id"`
	Path   trust.Path   `json:"path"`
	Review proof.Review `json:"review"`
	Date   time.Time    `json:"date"`
}

// Cost is the total cost of the reviewer's trust path.
func (r Reviewer) Cost() int {
	return r.Path.Cost
}

// Verdict is the outcome of verifying one target. An insufficient verdict is
// not an error; Explanation says which threshold was unmet.
type Verdict struct {
	Target       digest.Digest `json:"target"`
	Start        identity.ID   `json:"start"`
	Sufficient   bool          `json:"sufficient"`
	Contributing []Reviewer    `json:"contributing"`
	Vetoing      []Reviewer    `json:"vetoing,omitempty"`
	Poisoned     []identity.ID `json:"poisoned,omitempty"`
	Explanation  string        `json:"explanation"`

	// Reviews counts the latest review per reviewer of the target; Untrusted
	// counts those whose author is outside the effective trust set.
	Reviews   int `json:"reviews"`
	Untrusted int `json:"untrusted"`
}

// ContributingIDs lists the contributing reviewers in verdict order.
func (v *Verdict) ContributingIDs() []identity.ID {
	out := make([]identity.ID, len(v.Contributing))
	for i, r := range v.Contributing {
		out[i] = r.ID
	}
	return out
}

func (v *Verdict) explain(min proof.Level) {
	switch {
	case len(v.Vetoing) > 0:
		names := make([]string, len(v.Vetoing))
		for i, r := range v.Vetoing {
			names[i] = r.ID.String()
		}
		v.Explanation = fmt.Sprintf("vetoed: distrust at or above %s from %s", min, strings.Join(names, ", "))
	case len(v.Contributing) > 0:
		v.Explanation = fmt.Sprintf("%d trusted reviewer(s) at or above %s", len(v.Contributing), min)
	case v.Reviews == 0:
		v.Explanation = "no reviews of target"
	case v.Reviews == v.Untrusted:
		v.Explanation = fmt.Sprintf("%d review(s), none from trusted identities", v.Reviews)
	default:
		v.Explanation = fmt.Sprintf("no trusted review reaches %s", min)
	}
}
