package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up the convenience API
// Groups: /api/v1/core, /api/v1/realtime
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware()) // Add X-API-Version: v1 header

	// Core endpoints - catalog listings
	core := v1.Group("/core")
	{
		core.GET("/procedures", s.handleV1ListProcedures)
		core.GET("/features", s.handleV1ListFeatures)
	}

	// Realtime endpoints - latest data
	realtime := v1.Group("/realtime")
	{
		realtime.GET("/now", s.handleV1RealtimeNow)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
