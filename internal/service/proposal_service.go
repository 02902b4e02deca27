package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/utils"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// CreateProposalRequest 创建课题请求
type CreateProposalRequest struct {
	Title string `json:"title" binding:"required"`
	Code  string `json:"code"` // 留空时自动生成
}

// ProposalView 课题详情视图
// 在数据模型之上附加 SLA 状态与当前角色可执行动作
type ProposalView struct {
	Proposal         *model.ProposalModel `json:"proposal"`
	SLAStatus        workflow.SLAStatus   `json:"sla_status"`
	SLARemaining     *int64               `json:"sla_remaining_ms,omitempty"`
	AvailableActions []workflow.Action    `json:"available_actions"`
}

// QueueFilter 工作台队列过滤器
type QueueFilter struct {
	State     string
	SLAStatus string // OVERDUE 时仅返回超期课题
	SortBy    string
	Order     string
	Page      int
	PageSize  int
}

// ProposalService 课题查询服务接口
type ProposalService interface {
	Create(ctx context.Context, actor workflow.Actor, req *CreateProposalRequest) (*model.ProposalModel, error)
	Get(ctx context.Context, id string, actor workflow.Actor) (*ProposalView, error)
	// Queue 角色工作台队列: 讲师看自己的课题,院系管理员看本院系待办,
	// 科技处/校领导看全局持有项
	Queue(ctx context.Context, actor workflow.Actor, filter *QueueFilter) ([]*ProposalView, error)
	Logs(ctx context.Context, proposalID string) ([]*model.WorkflowLogModel, error)
}

// proposalService 课题查询服务实现
type proposalService struct {
	proposalRepo repository.ProposalRepository
	logRepo      repository.WorkflowLogRepository
	slaClock     *workflow.SLAClock
	logger       *logrus.Logger

	now func() time.Time
}

// NewProposalService 创建课题查询服务
func NewProposalService(
	proposalRepo repository.ProposalRepository,
	logRepo repository.WorkflowLogRepository,
	slaClock *workflow.SLAClock,
	logger *logrus.Logger,
) ProposalService {
	return &proposalService{
		proposalRepo: proposalRepo,
		logRepo:      logRepo,
		slaClock:     slaClock,
		logger:       logger,
		now:          time.Now,
	}
}

// Create 创建课题(初始状态 DRAFT,负责人为创建者本人)
func (s *proposalService) Create(ctx context.Context, actor workflow.Actor, req *CreateProposalRequest) (*model.ProposalModel, error) {
	if actor.Role != workflow.RoleGiangVien {
		return nil, workflow.NewError(workflow.CodeWrongRole, "only lecturers may create proposals")
	}

	title, err := utils.TrimAndValidate(req.Title, 512)
	if err != nil {
		return nil, err
	}

	now := s.now()
	code := req.Code
	if code == "" {
		code = fmt.Sprintf("DT%d-%s", now.Year(), uuid.New().String()[:8])
	}
	if err := utils.ValidateProposalCode(code); err != nil {
		return nil, err
	}

	proposal := &model.ProposalModel{
		ID:        uuid.New().String(),
		Code:      code,
		Title:     title,
		State:     string(workflow.StateDraft),
		OwnerID:   actor.ID,
		OwnerName: actor.Name,
		FacultyID: actor.FacultyID,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := proposal.Validate(); err != nil {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "invalid proposal", err)
	}
	if err := s.proposalRepo.Create(proposal); err != nil {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "proposal create failed", err)
	}

	s.logger.WithFields(logrus.Fields{
		"proposal_id": proposal.ID,
		"code":        proposal.Code,
		"owner_id":    actor.ID,
	}).Info("Proposal created")
	return proposal, nil
}

// Get 课题详情
func (s *proposalService) Get(ctx context.Context, id string, actor workflow.Actor) (*ProposalView, error) {
	proposal, err := s.proposalRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NewError(workflow.CodeProposalNotFound, "proposal "+id+" not found")
		}
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "proposal lookup failed", err)
	}
	return s.view(proposal, actor), nil
}

// Queue 工作台队列
func (s *proposalService) Queue(ctx context.Context, actor workflow.Actor, filter *QueueFilter) ([]*ProposalView, error) {
	if filter == nil {
		filter = &QueueFilter{}
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	repoFilter := &repository.ProposalFilter{
		SortBy: filter.SortBy,
		Order:  filter.Order,
		Limit:  filter.PageSize,
		Offset: (filter.Page - 1) * filter.PageSize,
	}
	if filter.State != "" {
		state := filter.State
		repoFilter.State = &state
	}
	if filter.SLAStatus == string(workflow.SLAOverdue) {
		now := s.now()
		repoFilter.OverdueAt = &now
	}

	// 队列按角色收敛可见范围
	switch actor.Role {
	case workflow.RoleGiangVien:
		owner := actor.ID
		repoFilter.OwnerID = &owner
	case workflow.RoleQuanLyKhoa:
		faculty := actor.FacultyID
		repoFilter.HolderUnit = &faculty
	case workflow.RolePhongKHCN:
		if filter.State == "" && filter.SLAStatus == "" {
			unit := workflow.UnitPhongKHCN
			repoFilter.HolderUnit = &unit
		}
	case workflow.RoleThuKyHoiDong:
		// 秘书按持有人过滤,查询后逐条判断
	case workflow.RoleBanGiamHoc:
		// 校领导可见全部
	default:
		return nil, workflow.NewError(workflow.CodeWrongRole, "unknown role "+string(actor.Role))
	}

	proposals, err := s.proposalRepo.FindByFilter(repoFilter)
	if err != nil {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "queue query failed", err)
	}

	views := make([]*ProposalView, 0, len(proposals))
	for _, proposal := range proposals {
		if actor.Role == workflow.RoleThuKyHoiDong && proposal.HolderUser != actor.ID {
			continue
		}
		views = append(views, s.view(proposal, actor))
	}
	return views, nil
}

// Logs 课题工作流日志(时间戳升序)
func (s *proposalService) Logs(ctx context.Context, proposalID string) ([]*model.WorkflowLogModel, error) {
	if _, err := s.proposalRepo.FindByID(proposalID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NewError(workflow.CodeProposalNotFound, "proposal "+proposalID+" not found")
		}
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "proposal lookup failed", err)
	}
	return s.logRepo.FindByProposalID(proposalID)
}

// view 组装详情视图
// 可执行动作仅做角色级过滤,执行时仍会完整鉴权
func (s *proposalService) view(proposal *model.ProposalModel, actor workflow.Actor) *ProposalView {
	now := s.now()
	var deadline time.Time
	if proposal.SLADeadline != nil {
		deadline = *proposal.SLADeadline
	}

	view := &ProposalView{
		Proposal:  proposal,
		SLAStatus: s.slaClock.StatusAt(workflow.State(proposal.State), deadline, now),
	}
	if proposal.SLADeadline != nil && proposal.PausedAt == nil {
		remaining := workflow.Remaining(deadline, now).Milliseconds()
		view.SLARemaining = &remaining
	}

	for _, t := range workflow.TransitionsFrom(workflow.State(proposal.State)) {
		if err := workflow.Authorize(actor, proposal.Subject(), t.Action); err == nil {
			view.AvailableActions = append(view.AvailableActions, t.Action)
		}
	}
	return view
}
