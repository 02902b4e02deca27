package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/auth"
	"github.com/cioer/DoAn-sub006/internal/service"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// WorkflowController 课题工作流控制器
type WorkflowController struct {
	proposalService   service.ProposalService
	transitionService service.TransitionService
	evaluationService service.EvaluationService
	verifyService     service.VerifyService
}

// NewWorkflowController 创建工作流控制器
func NewWorkflowController(
	proposalService service.ProposalService,
	transitionService service.TransitionService,
	evaluationService service.EvaluationService,
	verifyService service.VerifyService,
) *WorkflowController {
	return &WorkflowController{
		proposalService:   proposalService,
		transitionService: transitionService,
		evaluationService: evaluationService,
		verifyService:     verifyService,
	}
}

// TransitionBody 状态转换请求体
type TransitionBody struct {
	Comment          string     `json:"comment"`
	ReasonCode       string     `json:"reason_code"`
	RevisionSections []string   `json:"revision_sections"`
	PauseReason      string     `json:"pause_reason"`
	ExpectedResumeAt *time.Time `json:"expected_resume_at"`
	CouncilID        string     `json:"council_id"`
	SecretaryID      string     `json:"secretary_id"`
	// ASSIGN_COUNCIL 时一并建立评审表
	Members []service.CouncilMember `json:"members"`
}

// CreateProposal 创建课题
func (ctrl *WorkflowController) CreateProposal(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	var req service.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, T(c, "error.bad_request"), err.Error())
		return
	}

	proposal, err := ctrl.proposalService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Code: 0, Message: T(c, "success.created"), Data: proposal})
}

// GetProposal 课题详情
func (ctrl *WorkflowController) GetProposal(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	view, err := ctrl.proposalService.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	Success(c, view)
}

// ListProposals 工作台队列
func (ctrl *WorkflowController) ListProposals(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := &service.QueueFilter{
		State:     c.Query("state"),
		SLAStatus: c.Query("sla_status"),
		SortBy:    c.Query("sort_by"),
		Order:     c.Query("order"),
		Page:      page,
		PageSize:  pageSize,
	}

	views, err := ctrl.proposalService.Queue(c.Request.Context(), actor, filter)
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	Success(c, views)
}

// GetLogs 课题工作流日志
func (ctrl *WorkflowController) GetLogs(c *gin.Context) {
	if _, ok := auth.ActorFromContext(c); !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}

	logs, err := ctrl.proposalService.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}
	Success(c, logs)
}

// Transition 执行状态转换
// 路径 POST /workflow/:id/:action,改变状态的请求必须携带 Idempotency-Key 头
func (ctrl *WorkflowController) Transition(c *gin.Context) {
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

	action := normalizeAction(c.Param("action"))

	var body TransitionBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			Error(c, http.StatusBadRequest, T(c, "error.bad_request"), err.Error())
			return
		}
	}

	result, err := ctrl.transitionService.Execute(c.Request.Context(), &service.TransitionRequest{
		ProposalID:       c.Param("id"),
		Action:           action,
		Actor:            actor,
		IdempotencyKey:   idempotencyKey,
		Comment:          body.Comment,
		ReasonCode:       body.ReasonCode,
		RevisionSections: body.RevisionSections,
		PauseReason:      body.PauseReason,
		ExpectedResumeAt: body.ExpectedResumeAt,
		CouncilID:        body.CouncilID,
		SecretaryID:      body.SecretaryID,
	})
	if err != nil {
		RespondWorkflowError(c, err)
		return
	}

	// 指派委员会时顺带建立评审表(重复指派安全)
	// 此时转换已提交,建表失败不改写已生效的结果,留日志等重试指派补齐
	if action == workflow.ActionAssignCouncil && len(body.Members) > 0 && !result.Replayed {
		if err := ctrl.evaluationService.AssignEvaluators(c.Request.Context(), c.Param("id"), body.Members); err != nil {
			GetLogger().WithError(err).WithField("proposal_id", c.Param("id")).
				Warn("Evaluator assignment failed after transition was applied")
		}
	}

	Success(c, result)
}

// VerifyProposal 状态一致性校验(只读,修复走 CLI)
// 仅科技处与校领导可见,一致时 issue 为 null
func (ctrl *WorkflowController) VerifyProposal(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		Error(c, http.StatusUnauthorized, T(c, "error.unauthorized"), "")
		return
	}
	if actor.Role != workflow.RolePhongKHCN && actor.Role != workflow.RoleBanGiamHoc {
		RespondWorkflowError(c, workflow.NewError(workflow.CodeWrongRole,
			"only PHONG_KHCN or BAN_GIAM_HOC may verify proposal state"))
		return
	}

	issue, err := ctrl.verifyService.VerifyProposal(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondWorkflowError(c, workflow.NewError(workflow.CodeProposalNotFound,
				"proposal "+c.Param("id")+" not found"))
			return
		}
		RespondWorkflowError(c, err)
		return
	}
	Success(c, gin.H{"consistent": issue == nil, "issue": issue})
}

// normalizeAction 路径动作参数宽松匹配: submit / SUBMIT / assign-council 都可
func normalizeAction(raw string) workflow.Action {
	return workflow.Action(strings.ToUpper(strings.ReplaceAll(raw, "-", "_")))
}
