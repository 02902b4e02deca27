package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// I18nManager 国际化管理器
type I18nManager struct {
	messages map[string]map[string]string // lang -> key -> message
}

var defaultI18nManager *I18nManager

func init() {
	defaultI18nManager = NewI18nManager()
	// 越南语为默认语言,键与工作流错误码一致
	defaultI18nManager.LoadMessages("vi", map[string]string{
		"WRONG_STATE":             "Hành động không hợp lệ ở trạng thái hiện tại",
		"WRONG_ROLE":              "Vai trò của bạn không được phép thực hiện hành động này",
		"NOT_OWNER":               "Chỉ chủ nhiệm đề tài mới được thực hiện hành động này",
		"NOT_ASSIGNED_EVALUATOR":  "Bạn không phải là thành viên hội đồng được phân công",
		"IDEMPOTENCY_CONFLICT":    "Khóa idempotency đã được dùng cho thao tác khác",
		"EVALUATION_INCOMPLETE":   "Hội đồng chưa hoàn tất đánh giá",
		"EVALUATION_FINALIZED":    "Phiếu đánh giá đã được chốt, không thể sửa",
		"CONCURRENCY_CONFLICT":    "Đề tài vừa bị thay đổi, vui lòng thử lại",
		"TRANSITION_FAILED":       "Lỗi hệ thống, thao tác đã được hoàn tác",
		"PROPOSAL_NOT_FOUND":      "Không tìm thấy đề tài",
		"EVALUATION_NOT_FOUND":    "Không tìm thấy phiếu đánh giá",
		"INVALID_SCORE":           "Điểm đánh giá phải từ 1 đến 5",
		"error.not_found":         "Không tìm thấy tài nguyên",
		"error.unauthorized":      "Chưa xác thực",
		"error.forbidden":         "Không có quyền truy cập",
		"error.bad_request":       "Yêu cầu không hợp lệ",
		"error.internal_error":    "Lỗi hệ thống",
		"success.created":         "Tạo thành công",
		"success.updated":         "Cập nhật thành công",
	})
	defaultI18nManager.LoadMessages("en", map[string]string{
		"WRONG_STATE":             "Action is not allowed in the current state",
		"WRONG_ROLE":              "Your role may not perform this action",
		"NOT_OWNER":               "Only the proposal owner may perform this action",
		"NOT_ASSIGNED_EVALUATOR":  "You are not an assigned council evaluator",
		"IDEMPOTENCY_CONFLICT":    "Idempotency key was already used for a different operation",
		"EVALUATION_INCOMPLETE":   "The council has not completed its evaluation",
		"EVALUATION_FINALIZED":    "The evaluation has been finalized and cannot be changed",
		"CONCURRENCY_CONFLICT":    "The proposal was modified concurrently, please retry",
		"TRANSITION_FAILED":       "Internal error, the operation was rolled back",
		"PROPOSAL_NOT_FOUND":      "Proposal not found",
		"EVALUATION_NOT_FOUND":    "Evaluation not found",
		"INVALID_SCORE":           "Scores must be between 1 and 5",
		"error.not_found":         "Resource not found",
		"error.unauthorized":      "Unauthorized",
		"error.forbidden":         "Forbidden",
		"error.bad_request":       "Bad request",
		"error.internal_error":    "Internal server error",
		"success.created":         "Created successfully",
		"success.updated":         "Updated successfully",
	})
}

// NewI18nManager 创建国际化管理器
func NewI18nManager() *I18nManager {
	return &I18nManager{
		messages: make(map[string]map[string]string),
	}
}

// LoadMessages 加载语言消息
func (m *I18nManager) LoadMessages(lang string, messages map[string]string) {
	m.messages[lang] = messages
}

// Translate 翻译消息
func (m *I18nManager) Translate(lang, key string) string {
	if messages, ok := m.messages[lang]; ok {
		if message, ok := messages[key]; ok {
			return message
		}
	}
	// 找不到翻译时回退英语
	if lang != "en" {
		if messages, ok := m.messages["en"]; ok {
			if message, ok := messages[key]; ok {
				return message
			}
		}
	}
	// 仍找不到则返回 key 本身
	return key
}

// I18nMiddleware 国际化中间件
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := "vi" // 默认语言

		// 方式 1: 从查询参数获取语言
		if queryLang := c.Query("lang"); queryLang != "" {
			lang = normalizeLanguage(queryLang)
		} else if headerLang := c.GetHeader("Accept-Language"); headerLang != "" {
			// 方式 2: 从 Accept-Language 头获取语言
			lang = parseAcceptLanguage(headerLang)
		}

		c.Set("language", lang)

		c.Next()
	}
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang, exists := c.Get("language"); exists {
		if l, ok := lang.(string); ok {
			return l
		}
	}
	return "vi" // 默认语言
}

// T 翻译消息(使用默认管理器)
func T(c *gin.Context, key string) string {
	lang := GetLanguage(c)
	return defaultI18nManager.Translate(lang, key)
}

// normalizeLanguage 规范化语言代码
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(lang)
	langMap := map[string]string{
		"vi-vn": "vi",
		"en-us": "en",
		"en-gb": "en",
	}
	if normalized, ok := langMap[lang]; ok {
		return normalized
	}
	if strings.HasPrefix(lang, "vi") {
		return "vi"
	}
	if strings.HasPrefix(lang, "en") {
		return "en"
	}
	return lang
}

// parseAcceptLanguage 解析 Accept-Language 头
func parseAcceptLanguage(header string) string {
	// 解析 Accept-Language: vi-VN,vi;q=0.9,en;q=0.8
	parts := strings.Split(header, ",")
	if len(parts) > 0 {
		lang := strings.TrimSpace(parts[0])
		if idx := strings.Index(lang, ";"); idx != -1 {
			lang = lang[:idx]
		}
		return normalizeLanguage(lang)
	}
	return "vi"
}
