package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// VerificationIssue 状态偏差
type VerificationIssue struct {
	ProposalID    string `json:"proposal_id"`
	Code          string `json:"code"`
	StoredState   string `json:"stored_state"`
	ReplayedState string `json:"replayed_state"`
	LogCount      int64  `json:"log_count"`
	Repaired      bool   `json:"repaired"`
}

// VerificationReport 全量校验报告
type VerificationReport struct {
	Checked int                  `json:"checked"`
	Issues  []*VerificationIssue `json:"issues"`
}

// VerifyService 状态一致性校验服务接口
// 依赖日志只追加不变量: 按时间戳顺序回放 to_state 必须得到当前状态
type VerifyService interface {
	VerifyProposal(ctx context.Context, proposalID string, repair bool) (*VerificationIssue, error)
	VerifyAll(ctx context.Context, repair bool) (*VerificationReport, error)
}

// verifyService 状态一致性校验服务实现
type verifyService struct {
	db           *gorm.DB
	proposalRepo repository.ProposalRepository
	logRepo      repository.WorkflowLogRepository
	logger       *logrus.Logger
}

// NewVerifyService 创建校验服务
func NewVerifyService(
	db *gorm.DB,
	proposalRepo repository.ProposalRepository,
	logRepo repository.WorkflowLogRepository,
	logger *logrus.Logger,
) VerifyService {
	return &verifyService{
		db:           db,
		proposalRepo: proposalRepo,
		logRepo:      logRepo,
		logger:       logger,
	}
}

// VerifyProposal 校验单个课题,一致时返回 nil
func (s *verifyService) VerifyProposal(ctx context.Context, proposalID string, repair bool) (*VerificationIssue, error) {
	proposal, err := s.proposalRepo.FindByID(proposalID)
	if err != nil {
		return nil, err
	}
	return s.check(proposal, repair)
}

// VerifyAll 全量校验
func (s *verifyService) VerifyAll(ctx context.Context, repair bool) (*VerificationReport, error) {
	report := &VerificationReport{}
	const batchSize = 200

	for offset := 0; ; offset += batchSize {
		proposals, err := s.proposalRepo.FindByFilter(&repository.ProposalFilter{
			Limit:  batchSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		if len(proposals) == 0 {
			break
		}

		for _, proposal := range proposals {
			report.Checked++
			issue, err := s.check(proposal, repair)
			if err != nil {
				return nil, err
			}
			if issue != nil {
				report.Issues = append(report.Issues, issue)
			}
		}
		if len(proposals) < batchSize {
			break
		}
	}
	return report, nil
}

func (s *verifyService) check(proposal *model.ProposalModel, repair bool) (*VerificationIssue, error) {
	entries, err := s.logRepo.FindByProposalID(proposal.ID)
	if err != nil {
		return nil, err
	}

	// 无日志课题应仍处于 DRAFT
	replayed := string(workflow.StateDraft)
	if len(entries) > 0 {
		replayed = entries[len(entries)-1].ToState
	}

	if replayed == proposal.State {
		return nil, nil
	}

	issue := &VerificationIssue{
		ProposalID:    proposal.ID,
		Code:          proposal.Code,
		StoredState:   proposal.State,
		ReplayedState: replayed,
		LogCount:      int64(len(entries)),
	}
	s.logger.WithFields(logrus.Fields{
		"proposal_id": proposal.ID,
		"stored":      proposal.State,
		"replayed":    replayed,
	}).Warn("Proposal state diverges from workflow log")

	if repair {
		// 日志是事实来源,修复以回放结果覆盖存储状态
		err := s.db.Model(&model.ProposalModel{}).
			Where("id = ?", proposal.ID).
			Updates(map[string]interface{}{
				"state":   replayed,
				"version": gorm.Expr("version + 1"),
			}).Error
		if err != nil {
			return issue, err
		}
		issue.Repaired = true
		s.logger.WithField("proposal_id", proposal.ID).Info("Proposal state repaired from log replay")
	}
	return issue, nil
}
