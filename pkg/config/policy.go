package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
)

const policySchemaURL = "https://crev.schemas.local/policy.schema.json"

const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "max_depth": {"type": "integer", "minimum": 0},
    "budget": {"type": "integer", "minimum": 0},
    "costs": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "high": {"type": "integer", "minimum": 0},
        "medium": {"type": "integer", "minimum": 0},
        "low": {"type": "integer", "minimum": 0}
      }
    },
    "min_trust_level": {"enum": ["low", "medium", "high"]}
  }
}`

var compiledPolicySchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(policySchemaURL, strings.NewReader(policySchema)); err != nil {
		panic(fmt.Sprintf("policy schema load failed: %v", err))
	}
	compiledPolicySchema = c.MustCompile(policySchemaURL)
}

type policyFile struct {
	MaxDepth *int `yaml:"max_depth"`
	Budget   *int `yaml:"budget"`
	Costs    *struct {
		High   *int `yaml:"high"`
		Medium *int `yaml:"medium"`
		Low    *int `yaml:"low"`
	} `yaml:"costs"`
	MinTrustLevel *proof.Level `yaml:"min_trust_level"`
}

// ParsePolicy validates a YAML policy document and converts it. Fields the
// document omits keep their default values.
func ParsePolicy(data []byte) (trust.Policy, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return trust.Policy{}, fmt.Errorf("%w: %v", trust.ErrInvalidPolicy, err)
	}
	if generic == nil {
		return trust.DefaultPolicy(), nil
	}

	// round-trip through JSON so the validator sees json.Number values
	raw, err := json.Marshal(generic)
	if err != nil {
		return trust.Policy{}, fmt.Errorf("%w: %v", trust.ErrInvalidPolicy, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return trust.Policy{}, fmt.Errorf("%w: %v", trust.ErrInvalidPolicy, err)
	}
	if err := compiledPolicySchema.Validate(doc); err != nil {
		return trust.Policy{}, fmt.Errorf("%w: %v", trust.ErrInvalidPolicy, err)
	}

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return trust.Policy{}, fmt.Errorf("%w: %v", trust.ErrInvalidPolicy, err)
	}
	p := trust.DefaultPolicy()
	if f.MaxDepth != nil {
		p.MaxDepth = *f.MaxDepth
	}
	if f.Budget != nil {
		p.Budget = *f.Budget
	}
	if f.Costs != nil {
		if f.Costs.High != nil {
			p.Costs.High = *f.Costs.High
		}
		if f.Costs.Medium != nil {
			p.Costs.Medium = *f.Costs.Medium
		}
		if f.Costs.Low != nil {
			p.Costs.Low = *f.Costs.Low
		}
	}
	if f.MinTrustLevel != nil {
		p.MinTrustLevel = *f.MinTrustLevel
	}
	return p, p.Validate()
}

// LoadPolicy reads the policy at path. A missing file yields the default
// policy.
func LoadPolicy(path string) (trust.Policy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return trust.DefaultPolicy(), nil
	}
	if err != nil {
		return trust.Policy{}, fmt.Errorf("failed to read policy: %w", err)
	}
	return ParsePolicy(data)
}
