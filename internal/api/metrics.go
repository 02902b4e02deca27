package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cioer/DoAn-sub006/internal/metrics"
)

// MetricsHandler Prometheus 指标处理器
func MetricsHandler(recorder *metrics.Recorder) gin.HandlerFunc {
	handler := recorder.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
