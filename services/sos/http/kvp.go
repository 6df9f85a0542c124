package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

const defaultCRS = 4326

// kvp holds query parameters keyed by lower-case name; SOS KVP names are
// case-insensitive.
type kvp map[string][]string

func newKVP(q url.Values) kvp {
	p := make(kvp, len(q))
	for k, v := range q {
		key := strings.ToLower(k)
		p[key] = append(p[key], v...)
	}
	return p
}

func (p kvp) first(key string) string {
	if v := p[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// list splits every occurrence of key on commas.
func (p kvp) list(key string) []string {
	var out []string
	for _, v := range p[key] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (p kvp) flag(key string) (bool, error) {
	v := p.first(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, ows.InvalidParameter(key, fmt.Sprintf("%q is not a boolean", v))
	}
	return b, nil
}

// parseKVP decodes a GetObservation KVP request.
func parseKVP(q url.Values) (*model.GetObservationRequest, error) {
	p := newKVP(q)
	op := p.first("request")
	if op == "" {
		return nil, ows.MissingParameter("request")
	}
	if !strings.EqualFold(op, "GetObservation") {
		return nil, ows.UnsupportedOperation(op)
	}

	req := &model.GetObservationRequest{
		Service:            p.first("service"),
		Version:            p.first("version"),
		Offerings:          p.list("offering"),
		Procedures:         p.list("procedure"),
		ObservedProperties: p.list("observedproperty"),
		FeaturesOfInterest: p.list("featureofinterest"),
		ResponseFormat:     p.first("responseformat"),
		ResultFilter:       p.first("resultfilter"),
	}

	for _, v := range p["temporalfilter"] {
		tf, err := parseTemporalFilter(v)
		if err != nil {
			return nil, err
		}
		req.TemporalFilters = append(req.TemporalFilters, tf)
	}

	if v := p.first("spatialfilter"); v != "" {
		sf, err := parseSpatialFilter(v)
		if err != nil {
			return nil, err
		}
		req.SpatialFilter = sf
	}

	var err error
	if req.Extensions.MergeObservationsIntoDataArray, err = p.flag("mergeobservationsintodataarray"); err != nil {
		return nil, err
	}
	if req.Extensions.ShowCount, err = p.flag("showcount"); err != nil {
		return nil, err
	}
	if req.Extensions.IncludeResultTimes, err = p.flag("includeresulttimes"); err != nil {
		return nil, err
	}
	return req, nil
}

// parseTemporalFilter decodes "<valueReference>,<time>". Periods become
// During, instants and first/latest become TEquals.
func parseTemporalFilter(v string) (model.TemporalFilter, error) {
	ref, value, ok := strings.Cut(v, ",")
	ref, value = strings.TrimSpace(ref), strings.TrimSpace(value)
	if !ok || ref == "" || value == "" {
		return model.TemporalFilter{}, ows.InvalidParameter("temporalFilter",
			fmt.Sprintf("%q is not of the form valueReference,time", v))
	}
	t, err := model.ParseTime(value)
	if err != nil {
		return model.TemporalFilter{}, ows.InvalidParameter("temporalFilter", err.Error())
	}
	op := model.Equals
	if !t.IsInstant() {
		op = model.During
	}
	return model.TemporalFilter{Operator: op, ValueReference: ref, Time: t}, nil
}

// parseSpatialFilter decodes "<valueReference>,minx,miny,maxx,maxy[,crs]"
// as a BBOX filter.
func parseSpatialFilter(v string) (*model.SpatialFilter, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 5 && len(parts) != 6 {
		return nil, ows.InvalidParameter("spatialFilter",
			fmt.Sprintf("%q is not of the form valueReference,minx,miny,maxx,maxy[,crs]", v))
	}
	var c [4]float64
	for i := range c {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return nil, ows.InvalidParameter("spatialFilter", fmt.Sprintf("invalid coordinate %q", parts[i+1]))
		}
		c[i] = f
	}
	srid := defaultCRS
	if len(parts) == 6 {
		var err error
		if srid, err = geom.ParseSRID(strings.TrimSpace(parts[5])); err != nil {
			return nil, ows.InvalidParameter("spatialFilter", err.Error())
		}
	}
	return &model.SpatialFilter{
		Operator:       model.BBOX,
		ValueReference: strings.TrimSpace(parts[0]),
		Geometry:       geom.FromBounds(c[0], c[1], c[2], c[3], srid),
	}, nil
}
