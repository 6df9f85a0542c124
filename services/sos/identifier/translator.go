// Package identifier maps external (prefixed) identifiers onto the names
// used in the store and back.
package identifier

import (
	"fmt"
	"strings"

	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

// Kind is an identifier namespace with its own prefix.
type Kind int

const (
	Procedure Kind = iota
	Offering
	Feature
	ObservedProperty
)

func (k Kind) String() string {
	switch k {
	case Procedure:
		return "procedure"
	case Offering:
		return "offering"
	case Feature:
		return "featureOfInterest"
	case ObservedProperty:
		return "observedProperty"
	default:
		return "unknown"
	}
}

// Prefixes are the configured identifier prefixes per namespace.
type Prefixes struct {
	Procedure        string
	Offering         string
	Feature          string
	ObservedProperty string
}

func (p Prefixes) of(k Kind) string {
	switch k {
	case Procedure:
		return p.Procedure
	case Offering:
		return p.Offering
	case Feature:
		return p.Feature
	case ObservedProperty:
		return p.ObservedProperty
	}
	return ""
}

// Strip returns the part of externalID after prefix. An identifier that
// does not carry the prefix is an error.
func Strip(externalID, prefix string) (string, error) {
	if !strings.HasPrefix(externalID, prefix) {
		return "", fmt.Errorf("identifier %q does not start with prefix %q", externalID, prefix)
	}
	return externalID[len(prefix):], nil
}

// Apply prepends prefix to internal.
func Apply(internal, prefix string) string {
	return prefix + internal
}

// Translator applies the configured prefixes per namespace.
type Translator struct {
	prefixes Prefixes
}

func NewTranslator(prefixes Prefixes) *Translator {
	return &Translator{prefixes: prefixes}
}

// Strip translates one external identifier of kind k.
func (t *Translator) Strip(k Kind, externalID string) (string, error) {
	internal, err := Strip(externalID, t.prefixes.of(k))
	if err != nil {
		return "", ows.InvalidParameter(k.String(), err.Error())
	}
	return internal, nil
}

// StripAll translates a collection. An empty collection stays empty, which
// callers read as "no restriction".
func (t *Translator) StripAll(k Kind, externalIDs []string) ([]string, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(externalIDs))
	for _, id := range externalIDs {
		internal, err := t.Strip(k, id)
		if err != nil {
			return nil, err
		}
		out = append(out, internal)
	}
	return out, nil
}

// Apply translates one internal name of kind k.
func (t *Translator) Apply(k Kind, internal string) string {
	return Apply(internal, t.prefixes.of(k))
}

// ApplyAll translates a collection of internal names.
func (t *Translator) ApplyAll(k Kind, internals []string) []string {
	if len(internals) == 0 {
		return nil
	}
	out := make([]string, len(internals))
	for i, name := range internals {
		out[i] = t.Apply(k, name)
	}
	return out
}
