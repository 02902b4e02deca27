package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/metrics"
	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// TransitionRequest 状态转换请求
type TransitionRequest struct {
	ProposalID     string
	Action         workflow.Action
	Actor          workflow.Actor
	IdempotencyKey string

	Comment string

	// RETURN 动作附加字段
	ReasonCode       string
	RevisionSections []string

	// PAUSE 动作附加字段
	PauseReason      string
	ExpectedResumeAt *time.Time

	// ASSIGN_COUNCIL 动作附加字段
	CouncilID   string
	SecretaryID string
}

// TransitionResult 状态转换结果
// 幂等回放时原样返回首次执行的快照
type TransitionResult struct {
	ProposalID    string     `json:"proposal_id"`
	PreviousState string     `json:"previous_state"`
	CurrentState  string     `json:"current_state"`
	HolderUnit    string     `json:"holder_unit"`
	HolderUser    string     `json:"holder_user,omitempty"`
	SLADeadline   *time.Time `json:"sla_deadline,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	Replayed      bool       `json:"replayed"`
}

// TransitionNotifier 转换事件通知接口(WebSocket 推送)
type TransitionNotifier interface {
	NotifyTransition(proposalID string, result *TransitionResult)
}

// TransitionService 状态转换服务接口
// 所有改变课题状态的写路径唯一入口
type TransitionService interface {
	Execute(ctx context.Context, req *TransitionRequest) (*TransitionResult, error)
}

// transitionService 状态转换服务实现
// 鉴权、幂等登记、状态/持有人/SLA 更新、日志追加在单个事务内完成,
// 任一步失败整体回滚,幂等键不被消耗
type transitionService struct {
	db           *gorm.DB
	proposalRepo repository.ProposalRepository
	logRepo      repository.WorkflowLogRepository
	idemRepo     repository.IdempotencyRepository
	evalRepo     repository.EvaluationRepository
	slaClock     *workflow.SLAClock
	auditService AuditLogService
	recorder     *metrics.Recorder
	notifier     TransitionNotifier
	logger       *logrus.Logger

	// 测试注入时钟
	now func() time.Time
}

// NewTransitionService 创建状态转换服务
func NewTransitionService(
	db *gorm.DB,
	proposalRepo repository.ProposalRepository,
	logRepo repository.WorkflowLogRepository,
	idemRepo repository.IdempotencyRepository,
	evalRepo repository.EvaluationRepository,
	slaClock *workflow.SLAClock,
	auditService AuditLogService,
	recorder *metrics.Recorder,
	notifier TransitionNotifier,
	logger *logrus.Logger,
) TransitionService {
	return &transitionService{
		db:           db,
		proposalRepo: proposalRepo,
		logRepo:      logRepo,
		idemRepo:     idemRepo,
		evalRepo:     evalRepo,
		slaClock:     slaClock,
		auditService: auditService,
		recorder:     recorder,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// Execute 执行状态转换
func (s *transitionService) Execute(ctx context.Context, req *TransitionRequest) (*TransitionResult, error) {
	result, err := s.execute(ctx, req)
	if err != nil {
		code := workflow.CodeOf(err)
		s.recorder.RecordTransitionFailure(string(code))
		s.logger.WithFields(logrus.Fields{
			"proposal_id": req.ProposalID,
			"action":      req.Action,
			"actor_id":    req.Actor.ID,
			"code":        code,
		}).WithError(err).Warn("Transition rejected")
		return nil, err
	}

	if result.Replayed {
		s.recorder.RecordIdempotentReplay()
		return result, nil
	}

	s.recorder.RecordTransition(string(req.Action))
	s.logger.WithFields(logrus.Fields{
		"proposal_id": req.ProposalID,
		"action":      req.Action,
		"from":        result.PreviousState,
		"to":          result.CurrentState,
		"actor_id":    req.Actor.ID,
	}).Info("Transition applied")

	// 提交后的旁路动作,失败不影响已生效的转换
	if s.auditService != nil {
		if err := s.auditService.RecordAction(ctx, req.Actor.ID,
			strings.ToLower(string(req.Action)), "proposal", req.ProposalID, result); err != nil {
			s.logger.WithError(err).Warn("Failed to record audit log")
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyTransition(req.ProposalID, result)
	}

	return result, nil
}

func (s *transitionService) execute(ctx context.Context, req *TransitionRequest) (*TransitionResult, error) {
	now := s.now()
	signature := req.ProposalID + ":" + string(req.Action)

	var result *TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := s.proposalRepo.FindByIDForUpdate(tx, req.ProposalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return workflow.NewError(workflow.CodeProposalNotFound, "proposal "+req.ProposalID+" not found")
			}
			return workflow.WrapError(workflow.CodeTransitionFailed, "proposal lookup failed", err)
		}

		// 幂等登记先于鉴权: 回放不需要重新鉴权(首次执行已通过),
		// 而鉴权失败会整体回滚,幂等键不被消耗
		if req.IdempotencyKey != "" {
			begin, err := s.idemRepo.Begin(tx, req.IdempotencyKey, signature, now)
			if err != nil {
				return err
			}
			if begin.Replayed {
				var replayed TransitionResult
				if err := json.Unmarshal(begin.Outcome, &replayed); err != nil {
					return workflow.WrapError(workflow.CodeTransitionFailed, "corrupt idempotency outcome", err)
				}
				replayed.Replayed = true
				result = &replayed
				return nil
			}
		}

		if err := workflow.Authorize(req.Actor, proposal.Subject(), req.Action); err != nil {
			return err
		}

		edge, _ := workflow.FindTransition(workflow.State(proposal.State), req.Action)

		// 委员会结论守卫: 未定稿不得裁决
		if edge.RequireCouncil {
			if _, err := s.evalRepo.FindConsensusInTx(tx, proposal.ID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return workflow.NewError(workflow.CodeEvaluationIncomplete,
						"council consensus has not been finalized")
				}
				return workflow.WrapError(workflow.CodeTransitionFailed, "consensus lookup failed", err)
			}
		}

		target, err := s.resolveTarget(edge, proposal)
		if err != nil {
			return err
		}

		prevState := proposal.State
		prevVersion := proposal.Version
		payload, err := s.apply(proposal, edge, target, req, now)
		if err != nil {
			return err
		}

		ok, err := s.proposalRepo.UpdateCAS(tx, proposal, prevVersion)
		if err != nil {
			return workflow.WrapError(workflow.CodeTransitionFailed, "proposal update failed", err)
		}
		if !ok {
			return workflow.NewError(workflow.CodeConcurrencyConflict,
				"proposal was modified concurrently, retry with the same idempotency key")
		}

		entry := &model.WorkflowLogModel{
			ID:         uuid.New().String(),
			ProposalID: proposal.ID,
			Action:     string(req.Action),
			FromState:  prevState,
			ToState:    proposal.State,
			ActorID:    req.Actor.ID,
			ActorName:  req.Actor.Name,
			Comment:    req.Comment,
			Payload:    payload,
			Timestamp:  now,
		}
		if err := s.logRepo.Append(tx, entry); err != nil {
			return workflow.WrapError(workflow.CodeTransitionFailed, "workflow log append failed", err)
		}

		result = &TransitionResult{
			ProposalID:    proposal.ID,
			PreviousState: prevState,
			CurrentState:  proposal.State,
			HolderUnit:    proposal.HolderUnit,
			HolderUser:    proposal.HolderUser,
			SLADeadline:   proposal.SLADeadline,
			Timestamp:     now,
		}

		if req.IdempotencyKey != "" {
			outcome, err := json.Marshal(result)
			if err != nil {
				return workflow.WrapError(workflow.CodeTransitionFailed, "outcome marshal failed", err)
			}
			if err := s.idemRepo.Complete(tx, req.IdempotencyKey, outcome); err != nil {
				return workflow.WrapError(workflow.CodeTransitionFailed, "idempotency complete failed", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveTarget 解析目标状态
// 静态边直接取 Target; RESUME 回到暂停前状态,RESUBMIT 回到退回前的评审状态
func (s *transitionService) resolveTarget(edge workflow.Transition, proposal *model.ProposalModel) (workflow.State, error) {
	if !edge.DynamicTarget {
		return edge.Target, nil
	}

	switch edge.Action {
	case workflow.ActionResume:
		if proposal.PrePauseState == "" {
			return "", workflow.NewError(workflow.CodeTransitionFailed,
				"paused proposal has no pre-pause state recorded")
		}
		return workflow.State(proposal.PrePauseState), nil
	case workflow.ActionResubmit:
		// 历史数据可能没有退回来源,回落到院系评审起点
		if proposal.ReturnedFromState == "" {
			return workflow.StateFacultyReview, nil
		}
		return workflow.State(proposal.ReturnedFromState), nil
	}
	return "", workflow.NewError(workflow.CodeTransitionFailed,
		"dynamic edge without resolution rule: "+string(edge.Action))
}

// apply 在内存中对课题应用转换,返回日志的结构化负载
// 持有人与 SLA 的更新规则集中在这里,调用方不得另行修改
func (s *transitionService) apply(
	proposal *model.ProposalModel,
	edge workflow.Transition,
	target workflow.State,
	req *TransitionRequest,
	now time.Time,
) ([]byte, error) {
	var payload []byte

	switch req.Action {
	case workflow.ActionPause:
		// 快照暂停前状态与持有人,冻结 SLA 计时(截止时间保持,恢复时补偿)
		proposal.PrePauseState = proposal.State
		proposal.PrePauseHolderUnit = proposal.HolderUnit
		proposal.PrePauseHolderUser = proposal.HolderUser
		proposal.PausedAt = &now
		proposal.PauseReason = req.PauseReason

		holder := workflow.HolderFor(target, proposal.HolderInput(req.Actor.ID, req.Actor.FacultyID))
		proposal.State = string(target)
		proposal.HolderUnit = holder.HolderUnit
		proposal.HolderUser = holder.HolderUser

		p, err := json.Marshal(model.PausePayload{
			Reason:           req.PauseReason,
			ExpectedResumeAt: req.ExpectedResumeAt,
		})
		if err != nil {
			return nil, workflow.WrapError(workflow.CodeTransitionFailed, "payload marshal failed", err)
		}
		payload = p

	case workflow.ActionResume:
		// 补偿暂停时长: 新截止时间 = 原截止时间 + 实际暂停时长
		var deadline, pausedAt time.Time
		if proposal.SLADeadline != nil {
			deadline = *proposal.SLADeadline
		}
		if proposal.PausedAt != nil {
			pausedAt = *proposal.PausedAt
		}
		newDeadline, paused := workflow.ResumeDeadline(deadline, pausedAt, now)
		if !newDeadline.IsZero() {
			proposal.SLADeadline = &newDeadline
		}
		proposal.PausedDuration += paused.Milliseconds()

		proposal.State = string(target)
		proposal.HolderUnit = proposal.PrePauseHolderUnit
		proposal.HolderUser = proposal.PrePauseHolderUser
		proposal.PausedAt = nil
		proposal.PrePauseState = ""
		proposal.PrePauseHolderUnit = ""
		proposal.PrePauseHolderUser = ""
		proposal.PauseReason = ""

	default:
		if req.Action == workflow.ActionReturn {
			// 记录退回来源,RESUBMIT 据此回到同一评审节点
			proposal.ReturnedFromState = proposal.State
			p, err := json.Marshal(model.ReturnPayload{
				ReasonCode:       req.ReasonCode,
				Comment:          req.Comment,
				RevisionSections: req.RevisionSections,
			})
			if err != nil {
				return nil, workflow.WrapError(workflow.CodeTransitionFailed, "payload marshal failed", err)
			}
			payload = p
		}
		if req.Action == workflow.ActionResubmit {
			proposal.ReturnedFromState = ""
		}
		if req.Action == workflow.ActionAssignCouncil {
			// 指派后课题由委员会秘书持有
			if req.CouncilID != "" {
				proposal.HolderUnit = req.CouncilID
			}
			if req.SecretaryID != "" {
				proposal.HolderUser = req.SecretaryID
			}
		}

		holder := workflow.HolderFor(target, proposal.HolderInput(req.Actor.ID, req.Actor.FacultyID))
		proposal.State = string(target)
		proposal.HolderUnit = holder.HolderUnit
		proposal.HolderUser = holder.HolderUser

		// 进入新状态重新起算 SLA,不计 SLA 的状态清空
		if start, deadline, ok := s.slaClock.Start(target, now); ok {
			proposal.SLAStartDate = &start
			proposal.SLADeadline = &deadline
		} else {
			proposal.SLAStartDate = nil
			proposal.SLADeadline = nil
		}
	}

	return payload, nil
}
