package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
)

type responseDoc struct {
	Service      string           `json:"service"`
	Version      string           `json:"version"`
	Count        *int64           `json:"count,omitempty"`
	Observations []observationDoc `json:"observations"`
}

type observationDoc struct {
	Identifier         string   `json:"identifier,omitempty"`
	Type               string   `json:"type"`
	Procedure          string   `json:"procedure"`
	ObservableProperty string   `json:"observableProperty"`
	FeatureOfInterest  string   `json:"featureOfInterest"`
	Offerings          []string `json:"offerings,omitempty"`
	PhenomenonTime     string   `json:"phenomenonTime"`
	ResultTime         string   `json:"resultTime,omitempty"`
	Result             any      `json:"result"`
}

type measureDoc struct {
	UOM   string  `json:"uom,omitempty"`
	Value float64 `json:"value"`
}

type dataArrayDoc struct {
	Fields   []string    `json:"fields"`
	Encoding encodingDoc `json:"encoding"`
	Count    int         `json:"elementCount"`
	Values   string      `json:"values"`
}

type encodingDoc struct {
	TokenSeparator   string `json:"tokenSeparator"`
	TupleSeparator   string `json:"tupleSeparator"`
	DecimalSeparator string `json:"decimalSeparator"`
}

// encodeResponse drains every stream of resp into a JSON document. Streams
// are closed whether or not encoding succeeds.
func encodeResponse(ctx context.Context, resp *model.GetObservationResponse, merge bool) (doc responseDoc, err error) {
	defer func() {
		if cerr := resp.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	doc = responseDoc{
		Service:      resp.Service,
		Version:      resp.Version,
		Count:        resp.Count,
		Observations: []observationDoc{},
	}
	for _, template := range resp.Observations {
		if template.Stream == nil {
			continue
		}
		if doc.Observations, err = drain(ctx, template, merge, doc.Observations); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

func drain(ctx context.Context, template *model.Observation, merge bool, out []observationDoc) ([]observationDoc, error) {
	stream := template.Stream
	batch := 0
	for {
		ok, err := stream.HasNextValue(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		batch++
		if merge {
			v, err := stream.NextValue()
			if err != nil {
				return out, err
			}
			d := observation(template, v)
			d.Type = model.KindArray.ObservationType()
			d.Identifier = fmt.Sprintf("%s_%d", template.Identifier, batch)
			out = append(out, d)
			continue
		}
		obs, err := stream.NextSingleObservation()
		if err != nil {
			return out, err
		}
		for _, v := range obs.Values {
			out = append(out, observation(obs, v))
		}
	}
}

func observation(o *model.Observation, v model.TimeValuePair) observationDoc {
	d := observationDoc{
		Identifier:         o.Identifier,
		Type:               o.ObservationType,
		Procedure:          o.Procedure,
		ObservableProperty: o.ObservedProperty,
		FeatureOfInterest:  o.FeatureOfInterest,
		Offerings:          o.Offerings,
		PhenomenonTime:     v.Time.String(),
		Result:             result(v.Value),
	}
	if v.ResultTime != nil {
		d.ResultTime = formatTime(*v.ResultTime)
	}
	return d
}

func result(v model.ObservationValue) any {
	switch v.Kind {
	case model.KindQuantity:
		return measureDoc{UOM: v.Unit, Value: v.Quantity}
	case model.KindCount:
		return v.Count
	case model.KindBoolean:
		return v.Bool
	case model.KindCategory, model.KindText:
		return v.Text
	case model.KindGeometry:
		return v.WKT
	case model.KindBlob:
		return base64.StdEncoding.EncodeToString(v.Blob)
	case model.KindArray:
		if v.Array == nil {
			return nil
		}
		return dataArrayDoc{
			Fields: v.Array.Fields,
			Encoding: encodingDoc{
				TokenSeparator:   v.Array.Encoding.TokenSeparator,
				TupleSeparator:   v.Array.Encoding.TupleSeparator,
				DecimalSeparator: v.Array.Encoding.DecimalSeparator,
			},
			Count:  v.Array.Count,
			Values: v.Array.Values,
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
