package proof

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level grades trust strength and review depth. Levels are ordered and the
// zero value is None.
type Level int

const (
	None Level = iota
	Low
	Medium
	High
)

const (
	// DefaultTrustLevel is asserted by new trust proofs unless overridden.
	DefaultTrustLevel = Medium
	// DefaultDistrustLevel is the distrust carried by proofs that assert none.
	DefaultDistrustLevel = None
)

var levelNames = [...]string{
	None:   "none",
	Low:    "low",
	Medium: "medium",
	High:   "high",
}

// ParseLevel accepts the lowercase wire names.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Level(l), nil
		}
	}
	return None, fmt.Errorf("%w: unknown level %q", ErrMalformedContent, s)
}

func (l Level) String() string {
	if l < None || l > High {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// AtLeast reports whether l meets the threshold min.
func (l Level) AtLeast(min Level) bool {
	return l >= min
}

func (l Level) MarshalYAML() (interface{}, error) {
	if l < None || l > High {
		return nil, fmt.Errorf("%w: level %d out of range", ErrMalformedContent, int(l))
	}
	return l.String(), nil
}

func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseLevel(value.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
