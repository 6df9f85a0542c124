package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/store"
)

func featuresSQL(ids []string, shape *store.ShapeFilter, storageSRID int) (string, []any, error) {
	b := &sqlBuilder{}
	if len(ids) > 0 {
		b.where("f.id = ANY(" + b.arg(ids) + ")")
	}
	if shape != nil {
		fn, err := spatialFunction(shape.Operator)
		if err != nil {
			return "", nil, err
		}
		target := "ST_GeomFromText(" + b.arg(shape.Geometry.WKT()) + ", " + b.arg(shape.Geometry.SRID) + ")"
		if shape.Geometry.SRID != storageSRID {
			target = "ST_Transform(" + target + ", " + b.arg(storageSRID) + ")"
		}
		b.where(fn + "(f.shape, " + target + ")")
	}
	sql := `SELECT f.id, f.name, ST_AsEWKB(f.shape)
    FROM sos.features f` + b.whereSQL() + " ORDER BY f.id"
	return sql, b.args, nil
}

// Features returns the features with the given identifiers, all when ids is
// empty, restricted by shape when it is set.
func (s *session) Features(ctx context.Context, ids []string, shape *store.ShapeFilter) ([]model.Feature, error) {
	if s.conn == nil {
		return nil, errReleased
	}
	sql, args, err := featuresSQL(ids, shape, s.storageSRID)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	features := make([]model.Feature, 0)
	for rows.Next() {
		var (
			f        model.Feature
			name     *string
			geometry []byte
		)
		if err := rows.Scan(&f.Identifier, &name, &geometry); err != nil {
			return nil, err
		}
		if name != nil {
			f.Name = *name
		}
		if f.Geometry, err = geom.FromEWKB(geometry); err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Identifier, err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

const propertyInstancesBase = `
    SELECT i.id, i.sensor_id, i.observed_property, i.feature_id, i.calculated, i.value_kind,
           COALESCE(i.unit, ''),
           COALESCE(array_agg(o.offering ORDER BY o.offering) FILTER (WHERE o.offering IS NOT NULL), '{}')
    FROM sos.property_instances i
    LEFT JOIN sos.instance_offerings o ON o.instance_id = i.id
`

func propertyInstancesSQL(observedProperties []string) (string, []any) {
	var b strings.Builder
	b.WriteString(propertyInstancesBase)
	var args []any
	if len(observedProperties) > 0 {
		b.WriteString("    WHERE i.observed_property = ANY($1)\n")
		args = append(args, observedProperties)
	}
	b.WriteString("    GROUP BY i.id\n    ORDER BY i.id")
	return b.String(), args
}

// PropertyInstances returns the instances measuring the given observed
// properties, or all instances.
func (s *session) PropertyInstances(ctx context.Context, observedProperties []string) ([]model.PropertyInstance, error) {
	if s.conn == nil {
		return nil, errReleased
	}
	sql, args := propertyInstancesSQL(observedProperties)
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instances := make([]model.PropertyInstance, 0)
	for rows.Next() {
		var (
			inst model.PropertyInstance
			kind string
		)
		if err := rows.Scan(
			&inst.ID,
			&inst.Procedure,
			&inst.ObservedProperty,
			&inst.Feature,
			&inst.Calculated,
			&kind,
			&inst.Unit,
			&inst.Offerings,
		); err != nil {
			return nil, err
		}
		if inst.Kind, err = model.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("property instance %d: %w", inst.ID, err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

const listProceduresSQL = `
    SELECT id, name, valid_from, valid_to
    FROM sos.sensors
    ORDER BY id
`

// Procedures returns every sensor with its description validity.
func (s *session) Procedures(ctx context.Context) ([]model.Procedure, error) {
	if s.conn == nil {
		return nil, errReleased
	}
	rows, err := s.conn.Query(ctx, listProceduresSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	procedures := make([]model.Procedure, 0)
	for rows.Next() {
		var (
			p    model.Procedure
			name *string
		)
		if err := rows.Scan(&p.Identifier, &name, &p.ValidFrom, &p.ValidTo); err != nil {
			return nil, err
		}
		if name != nil {
			p.Name = *name
		}
		procedures = append(procedures, p)
	}
	return procedures, rows.Err()
}
