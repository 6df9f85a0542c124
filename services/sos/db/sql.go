package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/02loveslollipop/shizuku-sos/services/sos/filter"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/query"
)

var valueTables = map[model.ValueClass]string{
	model.RawValues:        "sos.raw_values",
	model.CalculatedValues: "sos.calculated_values",
}

// columns addressed by filter.Fields property names
var timeColumns = map[string]string{
	"phenomenonTimeStart": "v.phenomenon_time_start",
	"phenomenonTimeEnd":   "v.phenomenon_time_end",
	"resultTime":          "v.result_time",
	"validTimeStart":      "v.valid_time_start",
	"validTimeEnd":        "v.valid_time_end",
	"validFrom":           "s.valid_from",
	"validTo":             "COALESCE(s.valid_to, 'infinity'::timestamptz)",
}

const valueColumns = `
    v.id, v.instance_id, v.phenomenon_time_start, v.phenomenon_time_end, v.result_time,
    v.valid_time_start, v.valid_time_end,
    ST_AsEWKB(v.sampling_geometry),
    i.value_kind, i.unit,
    v.numeric_value, v.count_value, v.boolean_value, v.category_value, v.text_value,
    ST_AsText(v.geometry_value), v.blob_value`

// sqlBuilder accumulates WHERE clauses and their positional arguments.
type sqlBuilder struct {
	args    []any
	clauses []string
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) where(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *sqlBuilder) whereSQL() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// fromPlan renders the FROM and WHERE parts shared by every value query.
func fromPlan(plan *query.Plan, storageSRID int) (string, *sqlBuilder, error) {
	table, ok := valueTables[plan.Class]
	if !ok {
		return "", nil, fmt.Errorf("unknown value class %d", plan.Class)
	}
	b := &sqlBuilder{}
	b.where("v.instance_id = ANY(" + b.arg(plan.Instances()) + ")")

	if len(plan.Offerings) > 0 {
		b.where("EXISTS (SELECT 1 FROM sos.instance_offerings o WHERE o.instance_id = v.instance_id AND o.offering = ANY(" +
			b.arg(plan.Offerings) + "))")
	}

	for _, key := range plan.Temporal.Keys() {
		var alternatives []string
		for _, c := range plan.Temporal.Get(key) {
			clause, err := b.criterion(c)
			if err != nil {
				return "", nil, err
			}
			alternatives = append(alternatives, clause)
		}
		b.where("(" + strings.Join(alternatives, " OR ") + ")")
	}

	if plan.Extremum != nil {
		col, ok := timeColumns[plan.Extremum.Property]
		if !ok {
			return "", nil, fmt.Errorf("unknown time property %q", plan.Extremum.Property)
		}
		b.where(col + " = " + b.arg(plan.Extremum.At))
	}

	if plan.Spatial != nil {
		fn, err := spatialFunction(plan.Spatial.Operator)
		if err != nil {
			return "", nil, err
		}
		g := plan.Spatial.Geometry
		target := "ST_GeomFromText(" + b.arg(g.WKT()) + ", " + b.arg(g.SRID) + ")"
		if g.SRID != storageSRID {
			target = "ST_Transform(" + target + ", " + b.arg(storageSRID) + ")"
		}
		b.where(fn + "(v.sampling_geometry, " + target + ")")
	}

	from := " FROM " + table + " v" +
		" JOIN sos.property_instances i ON i.id = v.instance_id" +
		" JOIN sos.sensors s ON s.id = i.sensor_id"
	return from, b, nil
}

func (b *sqlBuilder) criterion(c filter.TimeCriterion) (string, error) {
	start, ok := timeColumns[c.Fields.Start]
	if !ok {
		return "", fmt.Errorf("unknown time property %q", c.Fields.Start)
	}
	end, ok := timeColumns[c.Fields.End]
	if !ok {
		return "", fmt.Errorf("unknown time property %q", c.Fields.End)
	}
	begin := func() string { return b.arg(c.Time.Begin) }
	finish := func() string { return b.arg(c.Time.End) }

	switch c.Operator {
	case model.Before:
		return end + " < " + begin(), nil
	case model.After:
		return start + " > " + finish(), nil
	case model.Begins:
		return "(" + start + " = " + begin() + " AND " + end + " < " + finish() + ")", nil
	case model.Ends:
		return "(" + start + " > " + begin() + " AND " + end + " = " + finish() + ")", nil
	case model.BegunBy:
		return "(" + start + " = " + begin() + " AND " + end + " > " + finish() + ")", nil
	case model.EndedBy:
		return "(" + start + " < " + begin() + " AND " + end + " = " + finish() + ")", nil
	case model.During:
		return "(" + start + " >= " + begin() + " AND " + end + " <= " + finish() + ")", nil
	case model.Contains:
		return "(" + start + " < " + begin() + " AND " + end + " > " + finish() + ")", nil
	case model.Equals:
		return "(" + start + " = " + begin() + " AND " + end + " = " + finish() + ")", nil
	case model.Overlaps:
		b1 := begin()
		return "(" + start + " < " + b1 + " AND " + end + " > " + b1 + " AND " + end + " < " + finish() + ")", nil
	case model.OverlappedBy:
		e1 := finish()
		return "(" + start + " > " + begin() + " AND " + start + " < " + e1 + " AND " + end + " > " + e1 + ")", nil
	case model.Meets:
		return end + " = " + begin(), nil
	case model.MetBy:
		return start + " = " + finish(), nil
	}
	return "", fmt.Errorf("unsupported temporal operator %s", c.Operator)
}

func spatialFunction(op model.SpatialOperator) (string, error) {
	switch op {
	case model.BBOX, model.Intersects:
		return "ST_Intersects", nil
	case model.Within:
		return "ST_Within", nil
	case model.SpatialContains:
		return "ST_Contains", nil
	}
	return "", fmt.Errorf("unsupported spatial operator %s", op)
}

const valueOrder = " ORDER BY v.phenomenon_time_start, v.id"

// fetchSQL renders the value query of plan. A negative limit omits LIMIT.
func fetchSQL(plan *query.Plan, storageSRID, offset, limit int) (string, []any, error) {
	from, b, err := fromPlan(plan, storageSRID)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT" + valueColumns + from + b.whereSQL() + valueOrder
	if limit >= 0 {
		sql += " LIMIT " + b.arg(limit)
	}
	if offset > 0 {
		sql += " OFFSET " + b.arg(offset)
	}
	return sql, b.args, nil
}

func extremumSQL(plan *query.Plan, storageSRID int, e query.Extremum) (string, []any, error) {
	from, b, err := fromPlan(plan, storageSRID)
	if err != nil {
		return "", nil, err
	}
	agg := "MIN(v.phenomenon_time_start)"
	if e == query.MaxPhenomenonTimeEnd {
		agg = "MAX(v.phenomenon_time_end)"
	}
	return "SELECT " + agg + from + b.whereSQL(), b.args, nil
}

func timeExtremaSQL(plan *query.Plan, storageSRID int) (string, []any, error) {
	from, b, err := fromPlan(plan, storageSRID)
	if err != nil {
		return "", nil, err
	}
	return "SELECT MIN(v.phenomenon_time_start), MAX(v.phenomenon_time_end), MIN(v.result_time), MAX(v.result_time)" +
		from + b.whereSQL(), b.args, nil
}

func countSQL(plan *query.Plan, storageSRID int) (string, []any, error) {
	from, b, err := fromPlan(plan, storageSRID)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*)" + from + b.whereSQL(), b.args, nil
}
