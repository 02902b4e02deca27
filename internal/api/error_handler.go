package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cioer/DoAn-sub006/internal/utils"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			} else {
				Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), err.Error())
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// HTTPStatusFor 工作流错误码到 HTTP 状态码的映射
// 对外契约,前端与 API 文档都依赖这张表
func HTTPStatusFor(code workflow.ErrorCode) int {
	switch code {
	case workflow.CodeWrongRole, workflow.CodeNotOwner, workflow.CodeNotAssignedEvaluator:
		return http.StatusForbidden
	case workflow.CodeIdempotencyConflict, workflow.CodeConcurrencyConflict:
		return http.StatusConflict
	case workflow.CodeWrongState, workflow.CodeEvaluationIncomplete,
		workflow.CodeEvaluationFinalized, workflow.CodeInvalidScore:
		return http.StatusBadRequest
	case workflow.CodeProposalNotFound, workflow.CodeEvaluationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondWorkflowError 按错误码返回本地化错误响应
// 非工作流错误按内部错误处理,不泄漏存储层细节
func RespondWorkflowError(c *gin.Context, err error) {
	var valErr *utils.ValidationError
	if errors.As(err, &valErr) {
		Error(c, http.StatusBadRequest, T(c, "error.bad_request"), valErr.Message)
		return
	}

	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) {
		Error(c, http.StatusInternalServerError, T(c, "error.internal_error"), "")
		return
	}

	status := HTTPStatusFor(wfErr.Code)
	c.JSON(status, gin.H{
		"code":    string(wfErr.Code),
		"message": T(c, string(wfErr.Code)),
		"detail":  wfErr.Message,
		"retryable": workflow.IsRetryable(wfErr.Code),
	})
}
