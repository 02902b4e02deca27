package workflow

import "fmt"

// ErrorCode 工作流错误码
// 错误码是对外契约: 控制器据此映射 HTTP 状态,前端据此渲染提示文案
type ErrorCode string

// 错误码集合
const (
	CodeWrongState            ErrorCode = "WRONG_STATE"             // 当前状态下动作不合法
	CodeWrongRole             ErrorCode = "WRONG_ROLE"              // 角色无权执行该动作
	CodeNotOwner              ErrorCode = "NOT_OWNER"               // 非课题负责人
	CodeNotAssignedEvaluator  ErrorCode = "NOT_ASSIGNED_EVALUATOR"  // 非指定评审人
	CodeIdempotencyConflict   ErrorCode = "IDEMPOTENCY_CONFLICT"    // 同一幂等键复用于不同操作
	CodeEvaluationIncomplete  ErrorCode = "EVALUATION_INCOMPLETE"   // 评审未全部提交
	CodeEvaluationFinalized   ErrorCode = "EVALUATION_FINALIZED"    // 评审已定稿,不可修改
	CodeConcurrencyConflict   ErrorCode = "CONCURRENCY_CONFLICT"    // 并发修改冲突,可用原幂等键重试
	CodeTransitionFailed      ErrorCode = "TRANSITION_FAILED"       // 内部错误,事务已回滚
	CodeProposalNotFound      ErrorCode = "PROPOSAL_NOT_FOUND"      // 课题不存在
	CodeEvaluationNotFound    ErrorCode = "EVALUATION_NOT_FOUND"    // 评审表不存在
	CodeInvalidScore          ErrorCode = "INVALID_SCORE"           // 评分超出 1-5 范围
)

// Error 工作流错误
// 所有错误在离开 service 层之前都归类到此类型,不向调用方泄漏存储层异常
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Unwrap 返回底层错误(仅用于日志,不对外暴露)
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError 创建工作流错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError 包装底层错误并归类
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf 提取错误码,非工作流错误返回 TRANSITION_FAILED
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if we, ok := err.(*Error); ok {
		return we.Code
	}
	return CodeTransitionFailed
}

// IsCode 判断错误是否属于指定错误码
func IsCode(err error, code ErrorCode) bool {
	we, ok := err.(*Error)
	return ok && we.Code == code
}

// IsRetryable 判断客户端能否用原幂等键安全重试
func IsRetryable(code ErrorCode) bool {
	return code == CodeConcurrencyConflict || code == CodeTransitionFailed
}
