package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SLAConfig 接口响应时间 SLO 配置
// (与课题处理时限的 SLA 时钟无关,这里监控的是 API 延迟)
type SLAConfig struct {
	TransitionMaxTime    time.Duration // 状态转换最大响应时间
	ProposalQueryMaxTime time.Duration // 课题查询最大响应时间
	EvaluationMaxTime    time.Duration // 评审读写最大响应时间
}

// DefaultSLAConfig 返回默认 SLO 配置
func DefaultSLAConfig() *SLAConfig {
	return &SLAConfig{
		TransitionMaxTime:    2 * time.Second,
		ProposalQueryMaxTime: 500 * time.Millisecond,
		EvaluationMaxTime:    1 * time.Second,
	}
}

// getOperation 从请求路径和方法获取操作类型
func getOperation(c *gin.Context) string {
	method := c.Request.Method
	path := c.Request.URL.Path

	if strings.HasPrefix(path, "/api/v1/workflow/") && method == "POST" {
		return "transition"
	}
	if strings.Contains(path, "/evaluations") {
		return "evaluation"
	}
	if strings.HasPrefix(path, "/api/v1/proposals") && method == "GET" {
		return "proposal_query"
	}

	return "unknown"
}

// CheckSLA 检查响应时间是否达标
func CheckSLA(operation string, duration time.Duration, config *SLAConfig) bool {
	switch operation {
	case "transition":
		return duration <= config.TransitionMaxTime
	case "proposal_query":
		return duration <= config.ProposalQueryMaxTime
	case "evaluation":
		return duration <= config.EvaluationMaxTime
	default:
		return true // 未知操作不检查
	}
}

// getExpectedDuration 获取期望的响应时间
func getExpectedDuration(operation string, config *SLAConfig) time.Duration {
	switch operation {
	case "transition":
		return config.TransitionMaxTime
	case "proposal_query":
		return config.ProposalQueryMaxTime
	case "evaluation":
		return config.EvaluationMaxTime
	default:
		return 0
	}
}

// SLAMonitorMiddleware 响应时间监控中间件
// 超标请求打响应头并记一条告警日志,聚合与告警交给日志管道
func SLAMonitorMiddleware(config *SLAConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultSLAConfig()
	}

	return func(c *gin.Context) {
		start := time.Now()
		operation := getOperation(c)

		c.Next()

		duration := time.Since(start)
		if CheckSLA(operation, duration, config) {
			return
		}

		expected := getExpectedDuration(operation, config)
		c.Header("X-SLA-Violation", "true")
		c.Header("X-SLA-Operation", operation)
		c.Header("X-SLA-Duration", duration.String())
		c.Header("X-SLA-Expected", expected.String())

		GetLogger().WithFields(logrus.Fields{
			"operation": operation,
			"duration":  duration.String(),
			"expected":  expected.String(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
		}).Warn("API response time exceeded target")
	}
}
