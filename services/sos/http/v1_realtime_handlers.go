package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
)

// handleV1RealtimeNow returns the latest value of every series, optionally
// restricted by observedProperty, procedure and featureOfInterest
// GET /api/v1/realtime/now
func (s *Server) handleV1RealtimeNow(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	q := newKVP(c.Request.URL.Query())
	req := &model.GetObservationRequest{
		Service:            "SOS",
		Version:            "2.0.0",
		Procedures:         q.list("procedure"),
		ObservedProperties: q.list("observedproperty"),
		FeaturesOfInterest: q.list("featureofinterest"),
		Indeterminate:      model.Latest,
	}

	resp, err := s.sos.GetObservation(ctx, req)
	if err != nil {
		s.writeException(c, err)
		return
	}
	doc, err := encodeResponse(ctx, resp, false)
	if err != nil {
		s.writeException(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": doc.Observations,
		"meta": gin.H{
			"series_count": len(resp.Observations),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}
