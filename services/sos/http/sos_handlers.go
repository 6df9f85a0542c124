package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/02loveslollipop/shizuku-sos/services/sos/geom"
	"github.com/02loveslollipop/shizuku-sos/services/sos/model"
	"github.com/02loveslollipop/shizuku-sos/services/sos/ows"
)

// getObservationBody is the JSON form of a GetObservation request.
type getObservationBody struct {
	Service            string                `json:"service" binding:"required"`
	Version            string                `json:"version" binding:"required"`
	Offerings          []string              `json:"offering"`
	Procedures         []string              `json:"procedure"`
	ObservedProperties []string              `json:"observedProperty"`
	FeaturesOfInterest []string              `json:"featureOfInterest"`
	TemporalFilters    []temporalFilterBody  `json:"temporalFilter" binding:"dive"`
	SpatialFilter      *spatialFilterBody    `json:"spatialFilter"`
	ResponseFormat     string                `json:"responseFormat"`
	ResultFilter       string                `json:"resultFilter"`
	Extensions         getObservationOptions `json:"extensions"`
}

type temporalFilterBody struct {
	Operator       string `json:"operator" binding:"required"`
	ValueReference string `json:"valueReference" binding:"required"`
	Time           string `json:"time" binding:"required"`
}

type spatialFilterBody struct {
	Operator       string    `json:"operator" binding:"required"`
	ValueReference string    `json:"valueReference" binding:"required"`
	BBox           []float64 `json:"bbox" binding:"required,len=4"`
	CRS            string    `json:"crs"`
}

type getObservationOptions struct {
	MergeObservationsIntoDataArray bool `json:"mergeObservationsIntoDataArray"`
	ShowCount                      bool `json:"showCount"`
	IncludeResultTimes             bool `json:"includeResultTimes"`
}

func (b getObservationBody) toRequest() (*model.GetObservationRequest, error) {
	req := &model.GetObservationRequest{
		Service:            b.Service,
		Version:            b.Version,
		Offerings:          b.Offerings,
		Procedures:         b.Procedures,
		ObservedProperties: b.ObservedProperties,
		FeaturesOfInterest: b.FeaturesOfInterest,
		ResponseFormat:     b.ResponseFormat,
		ResultFilter:       b.ResultFilter,
		Extensions: model.Extensions{
			MergeObservationsIntoDataArray: b.Extensions.MergeObservationsIntoDataArray,
			ShowCount:                      b.Extensions.ShowCount,
			IncludeResultTimes:             b.Extensions.IncludeResultTimes,
		},
	}
	for _, tf := range b.TemporalFilters {
		t, err := model.ParseTime(tf.Time)
		if err != nil {
			return nil, ows.InvalidParameter("temporalFilter", err.Error())
		}
		req.TemporalFilters = append(req.TemporalFilters, model.TemporalFilter{
			Operator:       model.ParseTemporalOperator(tf.Operator),
			ValueReference: tf.ValueReference,
			Time:           t,
		})
	}
	if sf := b.SpatialFilter; sf != nil {
		srid := defaultCRS
		if sf.CRS != "" {
			var err error
			if srid, err = geom.ParseSRID(sf.CRS); err != nil {
				return nil, ows.InvalidParameter("spatialFilter", err.Error())
			}
		}
		req.SpatialFilter = &model.SpatialFilter{
			Operator:       model.ParseSpatialOperator(sf.Operator),
			ValueReference: sf.ValueReference,
			Geometry:       geom.FromBounds(sf.BBox[0], sf.BBox[1], sf.BBox[2], sf.BBox[3], srid),
		}
	}
	return req, nil
}

// handleKVP answers GetObservation in KVP encoding
// GET /sos/kvp
func (s *Server) handleKVP(c *gin.Context) {
	req, err := parseKVP(c.Request.URL.Query())
	if err != nil {
		s.writeException(c, err)
		return
	}
	s.getObservation(c, req)
}

// handleJSON answers GetObservation in JSON encoding
// POST /sos/json
func (s *Server) handleJSON(c *gin.Context) {
	var body getObservationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeException(c, bindingError(err))
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.writeException(c, err)
		return
	}
	s.getObservation(c, req)
}

func (s *Server) getObservation(c *gin.Context, req *model.GetObservationRequest) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.sos.GetObservation(ctx, req)
	if err != nil {
		s.writeException(c, err)
		return
	}
	doc, err := encodeResponse(ctx, resp, req.Extensions.MergeObservationsIntoDataArray)
	if err != nil {
		s.writeException(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// bindingError maps JSON decoding and validation failures onto OWS
// exceptions located at the offending field.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return ows.MissingParameter(fe.Field())
		}
		return ows.InvalidParameter(fe.Field(), fmt.Sprintf("%s fails the %s constraint", fe.Field(), fe.Tag()))
	}
	return ows.InvalidParameter("body", err.Error())
}

type exceptionReport struct {
	Version    string          `json:"version"`
	Exceptions []exceptionBody `json:"exceptions"`
}

type exceptionBody struct {
	Code    string `json:"code"`
	Locator string `json:"locator,omitempty"`
	Text    string `json:"text"`
}

// writeException encodes err as an OWS exception report. Uncoded errors are
// reported as NoApplicableCode.
func (s *Server) writeException(c *gin.Context, err error) {
	ex, ok := ows.As(err)
	if !ok {
		ex = ows.Storage(err, "processing the request")
	}
	status := ows.StatusOf(ex)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("request_id", requestID(c)), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("request_id", requestID(c)), zap.Error(err))
	}

	text := ex.Message
	if text == "" && ex.Kind != nil {
		text = ex.Kind.Error()
	}
	if ex.Err != nil && status < http.StatusInternalServerError {
		text = strings.TrimSpace(text + ": " + ex.Err.Error())
	}
	c.AbortWithStatusJSON(status, exceptionReport{
		Version: "2.0.0",
		Exceptions: []exceptionBody{{
			Code:    string(ex.Code),
			Locator: ex.Locator,
			Text:    text,
		}},
	})
}
