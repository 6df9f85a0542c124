package model

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the payload of an ObservationValue.
type Kind string

const (
	KindBoolean  Kind = "boolean"
	KindCount    Kind = "count"
	KindCategory Kind = "category"
	KindGeometry Kind = "geometry"
	KindQuantity Kind = "quantity"
	KindText     Kind = "text"
	KindArray    Kind = "array"
	KindBlob     Kind = "blob"
)

const observationTypePrefix = "http://www.opengis.net/def/observationType/OGC-OM/2.0/"

var observationTypes = map[Kind]string{
	KindBoolean:  observationTypePrefix + "OM_TruthObservation",
	KindCount:    observationTypePrefix + "OM_CountObservation",
	KindCategory: observationTypePrefix + "OM_CategoryObservation",
	KindGeometry: observationTypePrefix + "OM_GeometryObservation",
	KindQuantity: observationTypePrefix + "OM_Measurement",
	KindText:     observationTypePrefix + "OM_TextObservation",
	KindArray:    observationTypePrefix + "OM_SWEArrayObservation",
	KindBlob:     observationTypePrefix + "OM_Observation",
}

// ObservationType returns the O&M 2.0 observation type URI of k.
func (k Kind) ObservationType() string {
	return observationTypes[k]
}

// ParseKind validates a stored kind name. Arrays only exist as merged
// results and are never stored.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := valueConstructors[k]; !ok {
		return "", fmt.Errorf("unknown value kind %q", s)
	}
	return k, nil
}

// TextEncoding holds the separators of an encoded data array.
type TextEncoding struct {
	TokenSeparator   string
	TupleSeparator   string
	DecimalSeparator string
}

// DataArray is a block of encoded tuples, one per merged value.
type DataArray struct {
	Fields   []string
	Encoding TextEncoding
	Values   string
	Count    int
}

// ObservationValue is one observation result. Only the payload field that
// belongs to Kind is meaningful.
type ObservationValue struct {
	Kind     Kind
	Unit     string
	Bool     bool
	Count    int64
	Quantity float64
	Text     string
	WKT      string
	Blob     []byte
	Array    *DataArray
}

// Format renders the payload as a single token using decimalSeparator for
// floating point values.
func (v ObservationValue) Format(decimalSeparator string) string {
	switch v.Kind {
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindCount:
		return strconv.FormatInt(v.Count, 10)
	case KindQuantity:
		s := strconv.FormatFloat(v.Quantity, 'f', -1, 64)
		if decimalSeparator != "" && decimalSeparator != "." {
			s = strings.Replace(s, ".", decimalSeparator, 1)
		}
		return s
	case KindCategory, KindText:
		return v.Text
	case KindGeometry:
		return v.WKT
	case KindBlob:
		return base64.StdEncoding.EncodeToString(v.Blob)
	case KindArray:
		if v.Array != nil {
			return v.Array.Values
		}
	}
	return ""
}

// RawValue carries the nullable value columns of a stored row.
type RawValue struct {
	Numeric  *float64
	Count    *int64
	Boolean  *bool
	Category *string
	Text     *string
	Geometry *string
	Blob     []byte
}

type valueConstructor func(raw RawValue) (ObservationValue, bool)

var valueConstructors = map[Kind]valueConstructor{
	KindQuantity: func(raw RawValue) (ObservationValue, bool) {
		if raw.Numeric == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindQuantity, Quantity: *raw.Numeric}, true
	},
	KindCount: func(raw RawValue) (ObservationValue, bool) {
		if raw.Count == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindCount, Count: *raw.Count}, true
	},
	KindBoolean: func(raw RawValue) (ObservationValue, bool) {
		if raw.Boolean == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindBoolean, Bool: *raw.Boolean}, true
	},
	KindCategory: func(raw RawValue) (ObservationValue, bool) {
		if raw.Category == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindCategory, Text: *raw.Category}, true
	},
	KindText: func(raw RawValue) (ObservationValue, bool) {
		if raw.Text == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindText, Text: *raw.Text}, true
	},
	KindGeometry: func(raw RawValue) (ObservationValue, bool) {
		if raw.Geometry == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindGeometry, WKT: *raw.Geometry}, true
	},
	KindBlob: func(raw RawValue) (ObservationValue, bool) {
		if raw.Blob == nil {
			return ObservationValue{}, false
		}
		return ObservationValue{Kind: KindBlob, Blob: raw.Blob}, true
	},
}

// NewValue builds the value of the given kind from its stored columns.
func NewValue(kind Kind, raw RawValue) (ObservationValue, error) {
	ctor, ok := valueConstructors[kind]
	if !ok {
		return ObservationValue{}, fmt.Errorf("no stored representation for value kind %q", kind)
	}
	v, ok := ctor(raw)
	if !ok {
		return ObservationValue{}, fmt.Errorf("stored %s value is null", kind)
	}
	return v, nil
}
