package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/database"
	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// setupTestDB 创建内存数据库
// 单连接: SQLite 内存库按连接隔离,连接池必须收敛到 1
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestTransitionService 组装转换服务,返回实现类型以便注入时钟
func newTestTransitionService(t *testing.T, db *gorm.DB) *transitionService {
	t.Helper()
	svc := NewTransitionService(
		db,
		repository.NewProposalRepository(db),
		repository.NewWorkflowLogRepository(db),
		repository.NewIdempotencyRepository(db),
		repository.NewEvaluationRepository(db),
		workflow.NewSLAClock(nil, 48*time.Hour),
		nil, // audit
		nil, // recorder
		nil, // notifier
		testLogger(),
	)
	return svc.(*transitionService)
}

func seedProposal(t *testing.T, db *gorm.DB, state workflow.State) *model.ProposalModel {
	t.Helper()
	now := time.Now()
	p := &model.ProposalModel{
		ID:        "p1",
		Code:      "DT2025-0001",
		Title:     "Nghiên cứu thử nghiệm",
		State:     string(state),
		OwnerID:   "lecturer-1",
		FacultyID: "faculty-cntt",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func ownerActor() workflow.Actor {
	return workflow.Actor{ID: "lecturer-1", Name: "Nguyễn Văn A", Role: workflow.RoleGiangVien, FacultyID: "faculty-cntt"}
}

func facultyActor() workflow.Actor {
	return workflow.Actor{ID: "mgr-1", Name: "Trần Thị B", Role: workflow.RoleQuanLyKhoa, FacultyID: "faculty-cntt"}
}

func khcnActor() workflow.Actor {
	return workflow.Actor{ID: "khcn-1", Role: workflow.RolePhongKHCN}
}

func TestTransition_Submit(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateDraft)

	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:     "p1",
		Action:         workflow.ActionSubmit,
		Actor:          ownerActor(),
		IdempotencyKey: "key-submit",
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateDraft), result.PreviousState)
	assert.Equal(t, string(workflow.StateFacultyReview), result.CurrentState)
	assert.Equal(t, "faculty-cntt", result.HolderUnit)
	assert.NotNil(t, result.SLADeadline)
	assert.False(t, result.Replayed)

	var p model.ProposalModel
	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, string(workflow.StateFacultyReview), p.State)
	assert.Equal(t, 1, p.Version)

	logs, err := repository.NewWorkflowLogRepository(db).FindByProposalID("p1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "SUBMIT", logs[0].Action)
	assert.Equal(t, string(workflow.StateDraft), logs[0].FromState)
	assert.Equal(t, string(workflow.StateFacultyReview), logs[0].ToState)
}

func TestTransition_IdempotentReplay(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateDraft)

	req := &TransitionRequest{
		ProposalID:     "p1",
		Action:         workflow.ActionSubmit,
		Actor:          ownerActor(),
		IdempotencyKey: "key-1",
	}

	first, err := svc.Execute(context.Background(), req)
	require.NoError(t, err)

	// 同键重放: 返回首次结果,不再写库
	second, err := svc.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.CurrentState, second.CurrentState)
	assert.Equal(t, first.PreviousState, second.PreviousState)

	var p model.ProposalModel
	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, 1, p.Version)

	count, err := repository.NewWorkflowLogRepository(db).CountByProposalID("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTransition_IdempotencyKeyReuseRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateDraft)

	_, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:     "p1",
		Action:         workflow.ActionSubmit,
		Actor:          ownerActor(),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	// 同键复用于不同操作
	_, err = svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:     "p1",
		Action:         workflow.ActionWithdraw,
		Actor:          ownerActor(),
		IdempotencyKey: "key-1",
	})
	assert.True(t, workflow.IsCode(err, workflow.CodeIdempotencyConflict))
}

func TestTransition_AuthFailureDoesNotConsumeKey(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateDraft)

	// 非负责人提交被拒
	intruder := workflow.Actor{ID: "lecturer-2", Role: workflow.RoleGiangVien, FacultyID: "faculty-cntt"}
	_, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:     "p1",
		Action:         workflow.ActionSubmit,
		Actor:          intruder,
		IdempotencyKey: "key-1",
	})
	assert.True(t, workflow.IsCode(err, workflow.CodeNotOwner))

	// 事务回滚,同一键可被合法请求使用
	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:     "p1",
		Action:         workflow.ActionSubmit,
		Actor:          ownerActor(),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
}

func TestTransition_ProposalNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)

	_, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "missing",
		Action:     workflow.ActionSubmit,
		Actor:      ownerActor(),
	})
	assert.True(t, workflow.IsCode(err, workflow.CodeProposalNotFound))
}

func TestTransition_PauseAndResumeCompensation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateDraft)

	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	_, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionSubmit, Actor: ownerActor(),
	})
	require.NoError(t, err)

	var p model.ProposalModel
	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	originalDeadline := *p.SLADeadline

	// 暂停: 快照状态与持有人,冻结截止时间
	t1 := t0.Add(24 * time.Hour)
	svc.now = func() time.Time { return t1 }
	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:  "p1",
		Action:      workflow.ActionPause,
		Actor:       khcnActor(),
		PauseReason: "chờ bổ sung kinh phí",
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StatePaused), result.CurrentState)
	assert.Equal(t, workflow.UnitPhongKHCN, result.HolderUnit)

	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, string(workflow.StateFacultyReview), p.PrePauseState)
	assert.Equal(t, "faculty-cntt", p.PrePauseHolderUnit)
	require.NotNil(t, p.PausedAt)
	assert.True(t, originalDeadline.Equal(*p.SLADeadline), "deadline must stay frozen while paused")

	// 恢复: 回到暂停前状态,截止时间顺延暂停时长
	t2 := t1.Add(72 * time.Hour)
	svc.now = func() time.Time { return t2 }
	result, err = svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionResume, Actor: khcnActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateFacultyReview), result.CurrentState)
	assert.Equal(t, "faculty-cntt", result.HolderUnit)

	// 列值为 NULL 时 gorm 不会清掉复用结构体里的旧指针,必须用全新结构体接收
	var resumed model.ProposalModel
	require.NoError(t, db.First(&resumed, "id = ?", "p1").Error)
	assert.Equal(t, string(workflow.StateFacultyReview), resumed.State)
	assert.Empty(t, resumed.PrePauseState)
	assert.Nil(t, resumed.PausedAt)
	assert.Equal(t, (72 * time.Hour).Milliseconds(), resumed.PausedDuration)
	assert.True(t, originalDeadline.Add(72*time.Hour).Equal(*resumed.SLADeadline),
		"deadline must be extended by the paused duration")
}

func TestTransition_ReturnAndResubmit(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateFacultyReview)

	// 退回: 记录退回来源与结构化原因
	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:       "p1",
		Action:           workflow.ActionReturn,
		Actor:            facultyActor(),
		ReasonCode:       "THIEU_KINH_PHI",
		Comment:          "Cần bổ sung dự toán kinh phí",
		RevisionSections: []string{"budget"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateChangesRequested), result.CurrentState)

	var p model.ProposalModel
	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, string(workflow.StateFacultyReview), p.ReturnedFromState)
	assert.Equal(t, "lecturer-1", p.HolderUser)

	logs, err := repository.NewWorkflowLogRepository(db).FindByProposalID("p1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, string(logs[0].Payload), "THIEU_KINH_PHI")

	// 重提: 回到退回前的评审节点
	result, err = svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionResubmit, Actor: ownerActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateFacultyReview), result.CurrentState)

	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	assert.Empty(t, p.ReturnedFromState)
}

func TestTransition_ResubmitWithoutOriginFallsBack(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	// 历史数据: 退回来源缺失
	seedProposal(t, db, workflow.StateChangesRequested)

	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionResubmit, Actor: ownerActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateFacultyReview), result.CurrentState)
}

func TestTransition_CouncilGuard(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)

	bgh := workflow.Actor{ID: "bgh-1", Role: workflow.RoleBanGiamHoc}

	// 共识未定稿: 不得裁决
	_, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionApprove, Actor: bgh,
	})
	assert.True(t, workflow.IsCode(err, workflow.CodeEvaluationIncomplete))

	// 定稿后放行
	require.NoError(t, db.Create(&model.CouncilConsensusModel{
		ID:          "c1",
		ProposalID:  "p1",
		Conclusion:  model.ConclusionDat,
		SecretaryID: "sec-1",
		FinalizedAt: time.Now(),
	}).Error)

	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionApprove, Actor: bgh,
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateApproved), result.CurrentState)
}

func TestTransition_AssignCouncilSetsHolder(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateSchoolSelectionReview)

	result, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID:  "p1",
		Action:      workflow.ActionAssignCouncil,
		Actor:       khcnActor(),
		CouncilID:   "council-42",
		SecretaryID: "sec-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateOutlineCouncilReview), result.CurrentState)
	assert.Equal(t, "council-42", result.HolderUnit)
	assert.Equal(t, "sec-1", result.HolderUser)
}

func TestTransition_TerminalStateRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateCompleted)

	_, err := svc.Execute(context.Background(), &TransitionRequest{
		ProposalID: "p1", Action: workflow.ActionPause, Actor: khcnActor(),
	})
	assert.True(t, workflow.IsCode(err, workflow.CodeWrongState))
}

func TestTransition_ConcurrentApproveAppliesOnce(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestTransitionService(t, db)
	seedProposal(t, db, workflow.StateFacultyReview)

	// 两个并发审批在行锁/单写者上串行化,只有一个生效
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Execute(context.Background(), &TransitionRequest{
				ProposalID:     "p1",
				Action:         workflow.ActionApprove,
				Actor:          facultyActor(),
				IdempotencyKey: fmt.Sprintf("key-approve-%d", i),
			})
		}(i)
	}
	wg.Wait()

	var applied, rejected int
	for _, err := range errs {
		if err == nil {
			applied++
			continue
		}
		rejected++
		code := workflow.CodeOf(err)
		assert.Contains(t,
			[]workflow.ErrorCode{workflow.CodeWrongState, workflow.CodeConcurrencyConflict}, code)
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, rejected)

	var p model.ProposalModel
	require.NoError(t, db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, string(workflow.StateSchoolSelectionReview), p.State)
	assert.Equal(t, 1, p.Version)

	count, err := repository.NewWorkflowLogRepository(db).CountByProposalID("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
