package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// CouncilMember 评审委员会成员
type CouncilMember struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
	Role string `json:"role"` // CHU_TICH / THU_KY / THANH_VIEN
}

// CriterionStats 单项评分统计
type CriterionStats struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// CouncilAggregate 委员会评审汇总视图(秘书端)
type CouncilAggregate struct {
	ProposalID      string                      `json:"proposal_id"`
	SubmittedCount  int                         `json:"submitted_count"`
	TotalMembers    int                         `json:"total_members"`
	AllSubmitted    bool                        `json:"all_submitted"`
	Criteria        map[string]CriterionStats   `json:"criteria"`
	FinalConclusion *string                     `json:"final_conclusion"`
	Evaluations     []*model.CouncilEvaluationModel `json:"evaluations"`
}

// EvaluationService 委员会评审服务接口
type EvaluationService interface {
	// AssignEvaluators 为课题建立评审表,重复指派跳过已存在成员
	AssignEvaluators(ctx context.Context, proposalID string, members []CouncilMember) error
	GetMine(ctx context.Context, proposalID string, actor workflow.Actor) (*model.CouncilEvaluationModel, error)
	// UpdateDraft 草稿自动保存,提交后不可再改
	UpdateDraft(ctx context.Context, proposalID string, actor workflow.Actor, form *model.EvaluationForm) error
	Submit(ctx context.Context, proposalID string, actor workflow.Actor, form *model.EvaluationForm) error
	Aggregate(ctx context.Context, proposalID string, actor workflow.Actor) (*CouncilAggregate, error)
	// Finalize 秘书定稿共识结论,要求全员已提交
	Finalize(ctx context.Context, proposalID string, actor workflow.Actor, conclusion, comments, idempotencyKey string) (*model.CouncilConsensusModel, error)
}

// evaluationService 委员会评审服务实现
type evaluationService struct {
	db           *gorm.DB
	evalRepo     repository.EvaluationRepository
	proposalRepo repository.ProposalRepository
	idemRepo     repository.IdempotencyRepository
	auditService AuditLogService
	logger       *logrus.Logger

	now func() time.Time
}

// NewEvaluationService 创建委员会评审服务
func NewEvaluationService(
	db *gorm.DB,
	evalRepo repository.EvaluationRepository,
	proposalRepo repository.ProposalRepository,
	idemRepo repository.IdempotencyRepository,
	auditService AuditLogService,
	logger *logrus.Logger,
) EvaluationService {
	return &evaluationService{
		db:           db,
		evalRepo:     evalRepo,
		proposalRepo: proposalRepo,
		idemRepo:     idemRepo,
		auditService: auditService,
		logger:       logger,
		now:          time.Now,
	}
}

// AssignEvaluators 建立评审表
func (s *evaluationService) AssignEvaluators(ctx context.Context, proposalID string, members []CouncilMember) error {
	if _, err := s.findProposal(proposalID); err != nil {
		return err
	}

	now := s.now()
	emptyForm, _ := json.Marshal(&model.EvaluationForm{Scores: map[string]model.CriterionScore{}})

	for _, member := range members {
		existing, err := s.evalRepo.FindByProposalAndEvaluator(proposalID, member.ID)
		if err == nil && existing != nil {
			continue
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.WrapError(workflow.CodeTransitionFailed, "evaluator lookup failed", err)
		}

		evaluation := &model.CouncilEvaluationModel{
			ID:            uuid.New().String(),
			ProposalID:    proposalID,
			EvaluatorID:   member.ID,
			EvaluatorName: member.Name,
			EvaluatorRole: member.Role,
			State:         model.EvaluationDraft,
			FormData:      emptyForm,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.evalRepo.Save(evaluation); err != nil {
			return workflow.WrapError(workflow.CodeTransitionFailed, "evaluator assignment failed", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"proposal_id": proposalID,
		"members":     len(members),
	}).Info("Council evaluators assigned")
	return nil
}

// GetMine 查看本人评审表
func (s *evaluationService) GetMine(ctx context.Context, proposalID string, actor workflow.Actor) (*model.CouncilEvaluationModel, error) {
	if _, err := s.findProposal(proposalID); err != nil {
		return nil, err
	}
	return s.findOwnSheet(proposalID, actor.ID)
}

// UpdateDraft 更新草稿
func (s *evaluationService) UpdateDraft(ctx context.Context, proposalID string, actor workflow.Actor, form *model.EvaluationForm) error {
	proposal, err := s.findProposal(proposalID)
	if err != nil {
		return err
	}
	if proposal.State != string(workflow.StateOutlineCouncilReview) {
		return workflow.NewError(workflow.CodeWrongState,
			"evaluations may only be edited while the proposal is under council review")
	}

	evaluation, err := s.findOwnSheet(proposalID, actor.ID)
	if err != nil {
		return err
	}
	if evaluation.State == model.EvaluationSubmitted {
		return workflow.NewError(workflow.CodeEvaluationFinalized, "evaluation has already been submitted")
	}
	if err := validateForm(form, false); err != nil {
		return err
	}

	data, err := json.Marshal(form)
	if err != nil {
		return workflow.WrapError(workflow.CodeTransitionFailed, "form marshal failed", err)
	}
	evaluation.FormData = data
	evaluation.UpdatedAt = s.now()
	if err := s.evalRepo.Save(evaluation); err != nil {
		return workflow.WrapError(workflow.CodeTransitionFailed, "draft save failed", err)
	}
	return nil
}

// Submit 提交本人评审表(提交后不可变)
func (s *evaluationService) Submit(ctx context.Context, proposalID string, actor workflow.Actor, form *model.EvaluationForm) error {
	proposal, err := s.findProposal(proposalID)
	if err != nil {
		return err
	}
	if proposal.State != string(workflow.StateOutlineCouncilReview) {
		return workflow.NewError(workflow.CodeWrongState,
			"evaluations may only be submitted while the proposal is under council review")
	}

	evaluation, err := s.findOwnSheet(proposalID, actor.ID)
	if err != nil {
		return err
	}
	if evaluation.State == model.EvaluationSubmitted {
		return workflow.NewError(workflow.CodeEvaluationFinalized, "evaluation has already been submitted")
	}

	// 未随提交携带表单时,以最后一次草稿为准
	if form == nil {
		form, err = evaluation.Form()
		if err != nil {
			return workflow.WrapError(workflow.CodeTransitionFailed, "stored form unmarshal failed", err)
		}
	}
	if err := validateForm(form, true); err != nil {
		return err
	}

	data, err := json.Marshal(form)
	if err != nil {
		return workflow.WrapError(workflow.CodeTransitionFailed, "form marshal failed", err)
	}
	now := s.now()
	evaluation.FormData = data
	evaluation.State = model.EvaluationSubmitted
	evaluation.SubmittedAt = &now
	evaluation.UpdatedAt = now
	if err := s.evalRepo.Save(evaluation); err != nil {
		return workflow.WrapError(workflow.CodeTransitionFailed, "evaluation submit failed", err)
	}

	if s.auditService != nil {
		if err := s.auditService.RecordAction(ctx, actor.ID, "submit_evaluation", "evaluation", evaluation.ID, form); err != nil {
			s.logger.WithError(err).Warn("Failed to record audit log")
		}
	}
	return nil
}

// Aggregate 汇总视图(秘书与校领导可见)
func (s *evaluationService) Aggregate(ctx context.Context, proposalID string, actor workflow.Actor) (*CouncilAggregate, error) {
	if actor.Role != workflow.RoleThuKyHoiDong && actor.Role != workflow.RoleBanGiamHoc {
		return nil, workflow.NewError(workflow.CodeWrongRole,
			"only the council secretary or school leadership may view the aggregate")
	}
	if _, err := s.findProposal(proposalID); err != nil {
		return nil, err
	}

	evaluations, err := s.evalRepo.FindByProposalID(proposalID)
	if err != nil {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "evaluation listing failed", err)
	}

	agg := &CouncilAggregate{
		ProposalID:   proposalID,
		TotalMembers: len(evaluations),
		Criteria:     map[string]CriterionStats{},
		Evaluations:  evaluations,
	}

	sums := map[string]int{}
	counts := map[string]int{}
	for _, evaluation := range evaluations {
		if evaluation.State != model.EvaluationSubmitted {
			continue
		}
		agg.SubmittedCount++

		form, err := evaluation.Form()
		if err != nil {
			return nil, workflow.WrapError(workflow.CodeTransitionFailed, "stored form unmarshal failed", err)
		}
		for _, criterion := range model.EvaluationCriteria {
			score, ok := form.Scores[criterion]
			if !ok {
				continue
			}
			stats, seen := agg.Criteria[criterion]
			if !seen || score.Score < stats.Min {
				stats.Min = score.Score
			}
			if !seen || score.Score > stats.Max {
				stats.Max = score.Score
			}
			agg.Criteria[criterion] = stats
			sums[criterion] += score.Score
			counts[criterion]++
		}
	}
	for criterion, count := range counts {
		stats := agg.Criteria[criterion]
		stats.Avg = float64(sums[criterion]) / float64(count)
		agg.Criteria[criterion] = stats
	}
	agg.AllSubmitted = agg.TotalMembers > 0 && agg.SubmittedCount == agg.TotalMembers

	if consensus, err := s.evalRepo.FindConsensus(proposalID); err == nil {
		agg.FinalConclusion = &consensus.Conclusion
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "consensus lookup failed", err)
	}

	return agg, nil
}

// Finalize 定稿共识结论
// 与状态转换同级的幂等保护: 重复请求回放首次结论,键复用报冲突
func (s *evaluationService) Finalize(
	ctx context.Context,
	proposalID string,
	actor workflow.Actor,
	conclusion, comments, idempotencyKey string,
) (*model.CouncilConsensusModel, error) {
	if actor.Role != workflow.RoleThuKyHoiDong {
		return nil, workflow.NewError(workflow.CodeWrongRole,
			"only the council secretary may finalize the consensus")
	}
	if conclusion != model.ConclusionDat && conclusion != model.ConclusionKhongDat {
		return nil, workflow.NewError(workflow.CodeInvalidScore, "conclusion must be DAT or KHONG_DAT")
	}
	if _, err := s.findProposal(proposalID); err != nil {
		return nil, err
	}
	if _, err := s.findOwnSheet(proposalID, actor.ID); err != nil {
		return nil, err
	}

	now := s.now()
	signature := proposalID + ":FINALIZE_EVALUATION"

	var consensus *model.CouncilConsensusModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			begin, err := s.idemRepo.Begin(tx, idempotencyKey, signature, now)
			if err != nil {
				return err
			}
			if begin.Replayed {
				var replayed model.CouncilConsensusModel
				if err := json.Unmarshal(begin.Outcome, &replayed); err != nil {
					return workflow.WrapError(workflow.CodeTransitionFailed, "corrupt idempotency outcome", err)
				}
				consensus = &replayed
				return nil
			}
		}

		if _, err := s.evalRepo.FindConsensusInTx(tx, proposalID); err == nil {
			return workflow.NewError(workflow.CodeEvaluationFinalized, "consensus has already been finalized")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.WrapError(workflow.CodeTransitionFailed, "consensus lookup failed", err)
		}

		evaluations, err := s.evalRepo.FindByProposalIDInTx(tx, proposalID)
		if err != nil {
			return workflow.WrapError(workflow.CodeTransitionFailed, "evaluation listing failed", err)
		}
		if len(evaluations) == 0 {
			return workflow.NewError(workflow.CodeEvaluationIncomplete, "no evaluators have been assigned")
		}
		for _, evaluation := range evaluations {
			if evaluation.State != model.EvaluationSubmitted {
				return workflow.NewError(workflow.CodeEvaluationIncomplete,
					"evaluator "+evaluation.EvaluatorID+" has not submitted")
			}
		}

		consensus = &model.CouncilConsensusModel{
			ID:            uuid.New().String(),
			ProposalID:    proposalID,
			Conclusion:    conclusion,
			Comments:      comments,
			SecretaryID:   actor.ID,
			SecretaryName: actor.Name,
			FinalizedAt:   now,
		}
		if err := tx.Create(consensus).Error; err != nil {
			return workflow.WrapError(workflow.CodeTransitionFailed, "consensus save failed", err)
		}

		if idempotencyKey != "" {
			outcome, err := json.Marshal(consensus)
			if err != nil {
				return workflow.WrapError(workflow.CodeTransitionFailed, "outcome marshal failed", err)
			}
			if err := s.idemRepo.Complete(tx, idempotencyKey, outcome); err != nil {
				return workflow.WrapError(workflow.CodeTransitionFailed, "idempotency complete failed", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.auditService != nil {
		if err := s.auditService.RecordAction(ctx, actor.ID, "finalize_evaluation", "proposal", proposalID, consensus); err != nil {
			s.logger.WithError(err).Warn("Failed to record audit log")
		}
	}
	return consensus, nil
}

func (s *evaluationService) findProposal(proposalID string) (*model.ProposalModel, error) {
	proposal, err := s.proposalRepo.FindByID(proposalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NewError(workflow.CodeProposalNotFound, "proposal "+proposalID+" not found")
		}
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "proposal lookup failed", err)
	}
	return proposal, nil
}

func (s *evaluationService) findOwnSheet(proposalID, evaluatorID string) (*model.CouncilEvaluationModel, error) {
	evaluation, err := s.evalRepo.FindByProposalAndEvaluator(proposalID, evaluatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NewError(workflow.CodeNotAssignedEvaluator,
				"user is not an assigned evaluator for this proposal")
		}
		return nil, workflow.WrapError(workflow.CodeTransitionFailed, "evaluation lookup failed", err)
	}
	return evaluation, nil
}

// validateForm 校验评分范围; strict 时要求四项齐全且结论已选
func validateForm(form *model.EvaluationForm, strict bool) error {
	if form == nil {
		return workflow.NewError(workflow.CodeInvalidScore, "evaluation form is required")
	}
	for criterion, score := range form.Scores {
		if score.Score < 1 || score.Score > 5 {
			return workflow.NewError(workflow.CodeInvalidScore,
				"score for "+criterion+" must be between 1 and 5")
		}
	}
	if !strict {
		return nil
	}
	for _, criterion := range model.EvaluationCriteria {
		if _, ok := form.Scores[criterion]; !ok {
			return workflow.NewError(workflow.CodeInvalidScore, "missing score for "+criterion)
		}
	}
	if form.Conclusion != model.ConclusionDat && form.Conclusion != model.ConclusionKhongDat {
		return workflow.NewError(workflow.CodeInvalidScore, "conclusion must be DAT or KHONG_DAT")
	}
	return nil
}
