package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/utils"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

func newTestProposalService(t *testing.T, db *gorm.DB) ProposalService {
	t.Helper()
	return NewProposalService(
		repository.NewProposalRepository(db),
		repository.NewWorkflowLogRepository(db),
		workflow.NewSLAClock(nil, 48*time.Hour),
		testLogger(),
	)
}

func TestProposalCreate(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	p, err := svc.Create(context.Background(), ownerActor(), &CreateProposalRequest{
		Title: "Ứng dụng học máy trong dự báo thời tiết",
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateDraft), p.State)
	assert.Equal(t, "lecturer-1", p.OwnerID)
	assert.Equal(t, "faculty-cntt", p.FacultyID)
	assert.Equal(t, 0, p.Version)
	assert.NotEmpty(t, p.Code)
	assert.NoError(t, utils.ValidateProposalCode(p.Code))
}

func TestProposalCreate_OnlyLecturers(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	_, err := svc.Create(context.Background(), facultyActor(), &CreateProposalRequest{Title: "abc"})
	assert.True(t, workflow.IsCode(err, workflow.CodeWrongRole))
}

func TestProposalCreate_TitleValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	_, err := svc.Create(context.Background(), ownerActor(), &CreateProposalRequest{Title: "   "})
	assert.Error(t, err)
	var verr *utils.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestProposalGet_ViewFields(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	p := seedProposal(t, db, workflow.StateDraft)

	view, err := svc.Get(context.Background(), p.ID, ownerActor())
	require.NoError(t, err)
	assert.Equal(t, workflow.SLANone, view.SLAStatus)
	assert.Nil(t, view.SLARemaining)

	// 负责人在 DRAFT 下可提交或取消
	assert.Contains(t, view.AvailableActions, workflow.ActionSubmit)
	assert.Contains(t, view.AvailableActions, workflow.ActionCancel)
	assert.NotContains(t, view.AvailableActions, workflow.ActionApprove)
}

func TestProposalGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	_, err := svc.Get(context.Background(), "missing", ownerActor())
	assert.True(t, workflow.IsCode(err, workflow.CodeProposalNotFound))
}

func TestProposalQueue_RoleScoping(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	now := time.Now()
	seed := func(id, owner, faculty, holderUnit, holderUser, state string) {
		require.NoError(t, db.Create(&model.ProposalModel{
			ID: id, Code: "DT2025-" + id, Title: "t", State: state,
			OwnerID: owner, FacultyID: faculty,
			HolderUnit: holderUnit, HolderUser: holderUser,
			CreatedAt: now, UpdatedAt: now,
		}).Error)
	}
	seed("a1", "lecturer-1", "faculty-cntt", "faculty-cntt", "", string(workflow.StateFacultyReview))
	seed("a2", "lecturer-2", "faculty-cntt", "faculty-cntt", "", string(workflow.StateFacultyReview))
	seed("a3", "lecturer-3", "faculty-kt", workflow.UnitPhongKHCN, "", string(workflow.StateSchoolSelectionReview))
	seed("a4", "lecturer-4", "faculty-kt", "council-42", "sec-1", string(workflow.StateOutlineCouncilReview))

	// 讲师只看到自己的课题
	views, err := svc.Queue(context.Background(), ownerActor(), nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "a1", views[0].Proposal.ID)

	// 院系管理员看到本院系持有的课题
	views, err = svc.Queue(context.Background(), facultyActor(), nil)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	// 科技处默认看到待处理队列
	views, err = svc.Queue(context.Background(), khcnActor(), nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "a3", views[0].Proposal.ID)

	// 秘书只看到指派给自己的课题
	views, err = svc.Queue(context.Background(), secretaryActor(), nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "a4", views[0].Proposal.ID)

	// 校领导可见全部
	bgh := workflow.Actor{ID: "bgh-1", Role: workflow.RoleBanGiamHoc}
	views, err = svc.Queue(context.Background(), bgh, nil)
	require.NoError(t, err)
	assert.Len(t, views, 4)
}

func TestProposalQueue_OverdueFilter(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestProposalService(t, db)

	now := time.Now()
	overdue := now.Add(-time.Hour)
	ok := now.Add(72 * time.Hour)
	require.NoError(t, db.Create(&model.ProposalModel{
		ID: "a1", Code: "DT2025-a1", Title: "t", State: string(workflow.StateFacultyReview),
		OwnerID: "lecturer-1", FacultyID: "faculty-cntt",
		SLADeadline: &overdue, CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, db.Create(&model.ProposalModel{
		ID: "a2", Code: "DT2025-a2", Title: "t", State: string(workflow.StateFacultyReview),
		OwnerID: "lecturer-1", FacultyID: "faculty-cntt",
		SLADeadline: &ok, CreatedAt: now, UpdatedAt: now,
	}).Error)

	views, err := svc.Queue(context.Background(), ownerActor(), &QueueFilter{
		SLAStatus: string(workflow.SLAOverdue),
	})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "a1", views[0].Proposal.ID)
	assert.Equal(t, workflow.SLAOverdue, views[0].SLAStatus)
}

func TestProposalLogs(t *testing.T) {
	db := setupTestDB(t)
	psvc := newTestProposalService(t, db)
	tsvc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateDraft)

	_, err := tsvc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionSubmit, Actor: ownerActor(),
	})
	require.NoError(t, err)

	logs, err := psvc.Logs(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "SUBMIT", logs[0].Action)

	_, err = psvc.Logs(context.Background(), "missing")
	assert.True(t, workflow.IsCode(err, workflow.CodeProposalNotFound))
}
