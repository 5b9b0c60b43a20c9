// Package proof implements signed review and trust statements: their typed
// content, the canonical YAML body that gets signed, and the text envelope
// that carries body and signature.
package proof

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

// Kind names a content variant; it is also the envelope marker text.
type Kind string

const (
	KindCodeReview    Kind = "CODE REVIEW"
	KindPackageReview Kind = "PACKAGE REVIEW"
	KindTrust         Kind = "TRUST"
)

// Kinds lists every supported content variant.
var Kinds = []Kind{KindCodeReview, KindPackageReview, KindTrust}

// ContentVersion is the schema tag written into every body.
const ContentVersion = -1

// DateLayout always renders a numeric UTC offset.
const DateLayout = "2006-01-02T15:04:05.999999999-07:00"

// Content is implemented by *CodeReview, *PackageReview and *Trust. The set is
// closed: callers dispatch with a type switch.
type Content interface {
	Kind() Kind
	Header() *Common
	validate() error
}

// Common is shared by every content variant. Date and From are filled in at
// signing time.
type Common struct {
	Version int            `yaml:"version"`
	Date    Timestamp      `yaml:"date"`
	From    identity.PubID `yaml:"from"`
}

// Header exposes the shared fields of a variant.
func (c *Common) Header() *Common {
	return c
}

func (c *Common) validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrMalformedContent)
	}
	if c.From.ID.IsZero() {
		return fmt.Errorf("%w: missing from", ErrMalformedContent)
	}
	return nil
}

// Timestamp is a point in time rendered with DateLayout.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalYAML() (interface{}, error) {
	return t.Format(DateLayout), nil
}

func (t *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.Parse(time.RFC3339Nano, value.Value)
	if err != nil {
		return fmt.Errorf("%w: date: %v", ErrMalformedContent, err)
	}
	t.Time = parsed
	return nil
}

// Review grades a piece of reviewed code.
type Review struct {
	Thoroughness  Level `json:"thoroughness" yaml:"thoroughness"`
	Understanding Level `json:"understanding" yaml:"understanding"`
	Trust         Level `json:"trust" yaml:"trust"`
	Distrust      Level `json:"distrust,omitempty" yaml:"distrust,omitempty"`
}

// CodeReview is a review of a single file or unit of code.
type CodeReview struct {
	Common  `yaml:",inline"`
	Digest  digest.Digest `yaml:"digest"`
	Path    string        `yaml:"path,omitempty"`
	Review  Review        `yaml:"review"`
	Comment string        `yaml:"comment,omitempty"`
}

func (*CodeReview) Kind() Kind { return KindCodeReview }

func (r *CodeReview) validate() error {
	if err := r.Common.validate(); err != nil {
		return err
	}
	if r.Digest.IsZero() {
		return fmt.Errorf("%w: missing digest", ErrMalformedContent)
	}
	return nil
}

// Package identifies a reviewed package, either by a digest-derived project
// id or by an external name, optionally qualified by source and version.
type Package struct {
	Source  string          `yaml:"source,omitempty"`
	Name    string          `yaml:"name,omitempty"`
	ID      *digest.Digest  `yaml:"id,omitempty"`
	Version *semver.Version `yaml:"version,omitempty"`
}

// PackageReview is a review of a whole package's content.
type PackageReview struct {
	Common  `yaml:",inline"`
	Package Package       `yaml:"package"`
	Digest  digest.Digest `yaml:"digest"`
	Review  Review        `yaml:"review"`
	Comment string        `yaml:"comment,omitempty"`
}

func (*PackageReview) Kind() Kind { return KindPackageReview }

func (r *PackageReview) validate() error {
	if err := r.Common.validate(); err != nil {
		return err
	}
	if r.Package.Name == "" && (r.Package.ID == nil || r.Package.ID.IsZero()) {
		return fmt.Errorf("%w: package needs a name or an id", ErrMalformedContent)
	}
	if r.Digest.IsZero() {
		return fmt.Errorf("%w: missing digest", ErrMalformedContent)
	}
	return nil
}

// Trust asserts trust (or distrust) in other identities.
type Trust struct {
	Common   `yaml:",inline"`
	IDs      []identity.PubID `yaml:"ids"`
	Trust    Level            `yaml:"trust"`
	Distrust Level            `yaml:"distrust,omitempty"`
	Comment  string           `yaml:"comment,omitempty"`
}

// NewTrust builds an unsigned trust statement at the default trust level.
func NewTrust(ids ...identity.PubID) *Trust {
	return &Trust{IDs: ids, Trust: DefaultTrustLevel, Distrust: DefaultDistrustLevel}
}

// NewDistrust builds an unsigned statement distrusting ids at level.
func NewDistrust(level Level, ids ...identity.PubID) *Trust {
	return &Trust{IDs: ids, Trust: None, Distrust: level}
}

func (*Trust) Kind() Kind { return KindTrust }

// IsDistrust reports whether the statement carries any distrust.
func (t *Trust) IsDistrust() bool {
	return t.Distrust > None
}

func (t *Trust) validate() error {
	if err := t.Common.validate(); err != nil {
		return err
	}
	if len(t.IDs) == 0 {
		return fmt.Errorf("%w: trust proof lists no ids", ErrMalformedContent)
	}
	for _, id := range t.IDs {
		if id.ID.IsZero() {
			return fmt.Errorf("%w: empty id in trust list", ErrMalformedContent)
		}
	}
	return nil
}

// Target returns the digest a review is about. Trust statements have none.
func Target(c Content) (digest.Digest, bool) {
	switch v := c.(type) {
	case *CodeReview:
		return v.Digest, true
	case *PackageReview:
		return v.Digest, true
	default:
		return digest.Zero, false
	}
}

// ReviewOf returns the grading carried by a review variant.
func ReviewOf(c Content) (Review, bool) {
	switch v := c.(type) {
	case *CodeReview:
		return v.Review, true
	case *PackageReview:
		return v.Review, true
	default:
		return Review{}, false
	}
}
