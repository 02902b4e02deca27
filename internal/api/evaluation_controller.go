package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cioer/DoAn-sub006/internal/auth"
	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/service"
)

// EvaluationController 委员会评审控制器
type EvaluationController struct {
	evaluationService service.EvaluationService
}

// NewEvaluationController 创建评审控制器
func NewEvaluationController(evaluationService service.EvaluationService) *EvaluationController {
	return &EvaluationController{evaluationService: evaluationService}
}

// FinalizeBody 定稿请求体
type FinalizeBody struct {
	Conclusion string `json:"conclusion" binding:"required"`
	Comments   string `json:"comments"`
}

// Aggregate 秘书汇总视图
func (ctrl *EvaluationController) Aggregate(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	agg, err := ctrl.evaluationService.Aggregate(c.Request.Context(), c.Param("proposalId"), actor)
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	Success(c, agg)
}

// GetMine 本人评审表
func (ctrl *EvaluationController) GetMine(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	evaluation, err := ctrl.evaluationService.GetMine(c.Request.Context(), c.Param("proposalId"), actor)
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	Success(c, evaluation)
}

// UpdateMine 草稿自动保存
func (ctrl *EvaluationController) UpdateMine(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	var form model.EvaluationForm
	if err := c.ShouldBindJSON(&form); err != nil {
		Error(c, http.StatusBadRequest, T(c, "error.bad_request"), err.Error())
		return
	}

	if err := ctrl.evaluationService.UpdateDraft(c.Request.Context(), c.Param("proposalId"), actor, &form); err != nil {
		RespondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 0, Message: T(c, "success.updated")})
}

// Submit 提交本人评审表
func (ctrl *EvaluationController) Submit(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	// 请求体可选,缺省时提交最后一次草稿
	var form *model.EvaluationForm
	if c.Request.ContentLength > 0 {
		form = &model.EvaluationForm{}
		if err := c.ShouldBindJSON(form); err != nil {
			Error(c, http.StatusBadRequest, T(c, "error.bad_request"), err.Error())
			return
		}
	}

	if err := ctrl.evaluationService.Submit(c.Request.Context(), c.Param("proposalId"), actor, form); err != nil {
		RespondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: 0, Message: T(c, "success.updated")})
}

// Finalize 秘书定稿共识结论
func (ctrl *EvaluationController) Finalize(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		Error(c, http.StatusBadRequest, T(c, "error.bad_request"), "Idempotency-Key header is required")
		return
	}

	var body FinalizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, T(c, "error.bad_request"), err.Error())
		return
	}

	consensus, err := ctrl.evaluationService.Finalize(
		c.Request.Context(), c.Param("proposalId"), actor, body.Conclusion, body.Comments, idempotencyKey)
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	Success(c, consensus)
}
