package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/shizuku-sos/services/sos/identifier"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

type procedureDoc struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

type featureDoc struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Geometry string `json:"geometry,omitempty"`
}

// handleV1ListProcedures returns all procedures
// GET /api/v1/core/procedures
func (s *Server) handleV1ListProcedures(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	sess, err := s.provider.Acquire(ctx)
	if err != nil {
		s.writeException(c, ows.Storage(err, "opening a session"))
		return
	}
	defer sess.Release()

	procedures, err := sess.Procedures(ctx)
	if err != nil {
		s.writeException(c, ows.Storage(err, "listing procedures"))
		return
	}

	tr := s.sos.Translator()
	data := make([]procedureDoc, 0, len(procedures))
	for _, p := range procedures {
		data = append(data, procedureDoc{
			ID:        tr.Apply(identifier.Procedure, p.Identifier),
			Name:      p.Name,
			ValidFrom: p.ValidFrom,
			ValidTo:   p.ValidTo,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": gin.H{
			"count": len(data),
		},
	})
}

// handleV1ListFeatures returns all features of interest
// GET /api/v1/core/features
func (s *Server) handleV1ListFeatures(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	sess, err := s.provider.Acquire(ctx)
	if err != nil {
		s.writeException(c, ows.Storage(err, "opening a session"))
		return
	}
	defer sess.Release()

	features, err := sess.Features(ctx, nil, nil)
	if err != nil {
		s.writeException(c, ows.Storage(err, "listing features"))
		return
	}

	tr := s.sos.Translator()
	data := make([]featureDoc, 0, len(features))
	for _, f := range features {
		d := featureDoc{ID: tr.Apply(identifier.Feature, f.Identifier), Name: f.Name}
		if f.Geometry != nil {
			d.Geometry = f.Geometry.WKT()
		}
		data = append(data, d)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": gin.H{
			"count": len(data),
		},
	})
}
