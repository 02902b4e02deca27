package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// VersionMiddleware API 版本中间件
// 支持两种版本控制方式：
// 1. URL 路径版本控制: /api/v1/...
// 2. 请求头版本控制: API-Version: v1(优先于路径)
func VersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		version := "v1" // 默认版本

		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v") {
			parts := strings.Split(path, "/")
			for i, part := range parts {
				if part == "api" && i+1 < len(parts) {
					next := parts[i+1]
					if strings.HasPrefix(next, "v") && len(next) > 1 {
						version = next
						break
					}
				}
			}
		}

		if headerVersion := c.GetHeader("API-Version"); headerVersion != "" {
			version = headerVersion
		}

		c.Set("api_version", version)
		c.Next()
	}
}

// GetAPIVersion 从上下文获取 API 版本
func GetAPIVersion(c *gin.Context) string {
	if version, exists := c.Get("api_version"); exists {
		if v, ok := version.(string); ok {
			return v
		}
	}
	return "v1"
}
