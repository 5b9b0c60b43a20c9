package proof

import (
	"bytes"
	"fmt"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Marshal renders content as its canonical body: YAML with two-space indent,
// fields in declaration order, newline terminated. Identical content always
// yields identical bytes.
func Marshal(c Content) ([]byte, error) {
	if err := checkKind(c); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode %s body: %w", c.Kind(), err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode %s body: %w", c.Kind(), err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a body into the variant named by kind and validates it.
func Unmarshal(kind Kind, body []byte) (Content, error) {
	var c Content
	switch kind {
	case KindCodeReview:
		c = new(CodeReview)
	case KindPackageReview:
		c = new(PackageReview)
	case KindTrust:
		c = new(Trust)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, string(kind))
	}
	if err := yaml.Unmarshal(body, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func checkKind(c Content) error {
	switch c.(type) {
	case *CodeReview, *PackageReview, *Trust:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedContentType, c)
	}
}

// normalize puts every free-text field into NFC so visually identical text
// signs to identical bytes.
func normalize(c Content) {
	h := c.Header()
	h.From.URL = norm.NFC.String(h.From.URL)

	switch v := c.(type) {
	case *CodeReview:
		v.Path = norm.NFC.String(v.Path)
		v.Comment = norm.NFC.String(v.Comment)
	case *PackageReview:
		v.Package.Source = norm.NFC.String(v.Package.Source)
		v.Package.Name = norm.NFC.String(v.Package.Name)
		v.Comment = norm.NFC.String(v.Comment)
	case *Trust:
		for i := range v.IDs {
			v.IDs[i].URL = norm.NFC.String(v.IDs[i].URL)
		}
		v.Comment = norm.NFC.String(v.Comment)
	}
}
