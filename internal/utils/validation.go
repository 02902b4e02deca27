package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// SanitizeString 清理字符串,移除或转义危险字符
func SanitizeString(input string) string {
	// 1. HTML 转义,防止 XSS
	sanitized := html.EscapeString(input)

	// 2. 移除控制字符(除了换行符和制表符)
	var result strings.Builder
	for _, r := range sanitized {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// ValidateProposalTitle 验证课题标题
func ValidateProposalTitle(title string) error {
	// 1. 检查是否为空或仅包含空白字符
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return ErrEmptyTitle
	}

	// 2. 检查长度(最大 512 字符)
	if len(trimmed) > 512 {
		return ErrTitleTooLong
	}

	// 3. 检查是否包含危险字符(XSS、SQL 注入等)
	if containsDangerousChars(trimmed) {
		return ErrDangerousChars
	}

	return nil
}

// ValidateProposalID 验证课题 ID 格式
func ValidateProposalID(id string) error {
	// 1. 检查是否为空
	if id == "" {
		return ErrEmptyID
	}

	// 2. 检查格式(只允许字母、数字、连字符、下划线)
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, id)
	if !matched {
		return ErrInvalidIDFormat
	}

	// 3. 检查长度(最大 64 字符)
	if len(id) > 64 {
		return ErrIDTooLong
	}

	return nil
}

// proposalCodePattern 课题编号格式,如 DT2025-001
var proposalCodePattern = regexp.MustCompile(`^DT\d{4}-[a-zA-Z0-9]+$`)

// ValidateProposalCode 验证课题编号格式
func ValidateProposalCode(code string) error {
	if code == "" {
		return ErrEmptyID
	}
	if !proposalCodePattern.MatchString(code) {
		return ErrInvalidCodeFormat
	}
	return nil
}

// containsDangerousChars 检查字符串是否包含危险字符
func containsDangerousChars(s string) bool {
	// 常见的 XSS 和 SQL 注入模式
	dangerousPatterns := []string{
		"<script",
		"</script>",
		"javascript:",
		"onerror=",
		"onload=",
		"';",
		"'; --",
		"drop table",
		"delete from",
		"insert into",
		"update set",
		"union select",
		"<iframe",
		"<img",
		"<svg",
	}

	lower := strings.ToLower(s)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// TrimAndValidate 清理并验证字符串
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyString
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return SanitizeString(trimmed), nil
}

// 错误定义
var (
	ErrEmptyTitle        = &ValidationError{Code: "EMPTY_TITLE", Message: "title cannot be empty"}
	ErrTitleTooLong      = &ValidationError{Code: "TITLE_TOO_LONG", Message: "title exceeds maximum length"}
	ErrDangerousChars    = &ValidationError{Code: "DANGEROUS_CHARS", Message: "value contains dangerous characters"}
	ErrEmptyID           = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat   = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrInvalidCodeFormat = &ValidationError{Code: "INVALID_CODE_FORMAT", Message: "proposal code must look like DT2025-001"}
	ErrIDTooLong         = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyString       = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong     = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
