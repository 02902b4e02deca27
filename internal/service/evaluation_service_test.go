package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

func newTestEvaluationService(t *testing.T, db *gorm.DB) EvaluationService {
	t.Helper()
	return NewEvaluationService(
		db,
		repository.NewEvaluationRepository(db),
		repository.NewProposalRepository(db),
		repository.NewIdempotencyRepository(db),
		nil, // audit
		testLogger(),
	)
}

func councilMembers() []CouncilMember {
	return []CouncilMember{
		{ID: "chair-1", Name: "GS. Lê Văn C", Role: "CHU_TICH"},
		{ID: "sec-1", Name: "TS. Phạm Thị D", Role: "THU_KY"},
		{ID: "mem-1", Name: "TS. Hoàng Văn E", Role: "THANH_VIEN"},
	}
}

func secretaryActor() workflow.Actor {
	return workflow.Actor{ID: "sec-1", Name: "TS. Phạm Thị D", Role: workflow.RoleThuKyHoiDong}
}

func fullForm(conclusion string) *model.EvaluationForm {
	scores := make(map[string]model.CriterionScore, len(model.EvaluationCriteria))
	for _, criterion := range model.EvaluationCriteria {
		scores[criterion] = model.CriterionScore{Score: 4}
	}
	return &model.EvaluationForm{Scores: scores, Conclusion: conclusion}
}

func submitAll(t *testing.T, svc EvaluationService, proposalID string) {
	t.Helper()
	for _, m := range councilMembers() {
		actor := workflow.Actor{ID: m.ID, Role: workflow.RoleThuKyHoiDong}
		require.NoError(t, svc.Submit(context.Background(), proposalID, actor, fullForm(model.ConclusionDat)))
	}
}

func TestEvaluation_AssignIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)

	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))
	// 重复指派跳过已存在成员
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))

	sheets, err := repository.NewEvaluationRepository(db).FindByProposalID("p1")
	require.NoError(t, err)
	assert.Len(t, sheets, 3)
	for _, sheet := range sheets {
		assert.Equal(t, model.EvaluationDraft, sheet.State)
	}
}

func TestEvaluation_DraftUpdateAndSubmit(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))

	chair := workflow.Actor{ID: "chair-1", Role: workflow.RoleThuKyHoiDong}

	// 草稿可多次保存,无需完整
	partial := &model.EvaluationForm{
		Scores: map[string]model.CriterionScore{"budget": {Score: 3}},
	}
	require.NoError(t, svc.UpdateDraft(context.Background(), "p1", chair, partial))

	mine, err := svc.GetMine(context.Background(), "p1", chair)
	require.NoError(t, err)
	form, err := mine.Form()
	require.NoError(t, err)
	assert.Equal(t, 3, form.Scores["budget"].Score)

	// 提交要求全部评分维度与结论
	err = svc.Submit(context.Background(), "p1", chair, partial)
	assert.Error(t, err)

	require.NoError(t, svc.Submit(context.Background(), "p1", chair, fullForm(model.ConclusionDat)))

	mine, err = svc.GetMine(context.Background(), "p1", chair)
	require.NoError(t, err)
	assert.Equal(t, model.EvaluationSubmitted, mine.State)
	assert.NotNil(t, mine.SubmittedAt)

	// 提交后不可修改
	err = svc.UpdateDraft(context.Background(), "p1", chair, fullForm(model.ConclusionDat))
	assert.True(t, workflow.IsCode(err, workflow.CodeEvaluationFinalized))
}

func TestEvaluation_ScoreRangeValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))

	chair := workflow.Actor{ID: "chair-1", Role: workflow.RoleThuKyHoiDong}
	bad := fullForm(model.ConclusionDat)
	bad.Scores["budget"] = model.CriterionScore{Score: 6}

	err := svc.UpdateDraft(context.Background(), "p1", chair, bad)
	assert.True(t, workflow.IsCode(err, workflow.CodeInvalidScore))
}

func TestEvaluation_NotAssignedEvaluator(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))

	outsider := workflow.Actor{ID: "outsider-1", Role: workflow.RoleThuKyHoiDong}
	_, err := svc.GetMine(context.Background(), "p1", outsider)
	assert.True(t, workflow.IsCode(err, workflow.CodeNotAssignedEvaluator))
}

func TestEvaluation_Aggregate(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))

	// 两人提交不同分数
	chair := workflow.Actor{ID: "chair-1", Role: workflow.RoleThuKyHoiDong}
	form := fullForm(model.ConclusionDat)
	form.Scores["budget"] = model.CriterionScore{Score: 2}
	require.NoError(t, svc.Submit(context.Background(), "p1", chair, form))

	member := workflow.Actor{ID: "mem-1", Role: workflow.RoleThuKyHoiDong}
	require.NoError(t, svc.Submit(context.Background(), "p1", member, fullForm(model.ConclusionDat)))

	agg, err := svc.Aggregate(context.Background(), "p1", secretaryActor())
	require.NoError(t, err)
	assert.Equal(t, 2, agg.SubmittedCount)
	assert.Equal(t, 3, agg.TotalMembers)
	assert.False(t, agg.AllSubmitted)
	assert.Nil(t, agg.FinalConclusion)

	stats := agg.Criteria["budget"]
	assert.Equal(t, 2, stats.Min)
	assert.Equal(t, 4, stats.Max)
	assert.InDelta(t, 3.0, stats.Avg, 0.001)

	// 汇总视图仅秘书与校领导可见
	_, err = svc.Aggregate(context.Background(), "p1", ownerActor())
	assert.True(t, workflow.IsCode(err, workflow.CodeWrongRole))
}

func TestEvaluation_FinalizeRequiresAllSubmitted(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))

	// 仅部分提交: 不得定稿
	chair := workflow.Actor{ID: "chair-1", Role: workflow.RoleThuKyHoiDong}
	require.NoError(t, svc.Submit(context.Background(), "p1", chair, fullForm(model.ConclusionDat)))

	_, err := svc.Finalize(context.Background(), "p1", secretaryActor(), model.ConclusionDat, "", "fin-1")
	assert.True(t, workflow.IsCode(err, workflow.CodeEvaluationIncomplete))
}

func TestEvaluation_Finalize(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))
	submitAll(t, svc, "p1")

	consensus, err := svc.Finalize(context.Background(), "p1", secretaryActor(),
		model.ConclusionDat, "Đồng ý thông qua", "fin-1")
	require.NoError(t, err)
	assert.Equal(t, model.ConclusionDat, consensus.Conclusion)
	assert.Equal(t, "sec-1", consensus.SecretaryID)

	// 已定稿: 再次定稿报错
	_, err = svc.Finalize(context.Background(), "p1", secretaryActor(), model.ConclusionKhongDat, "", "fin-2")
	assert.True(t, workflow.IsCode(err, workflow.CodeEvaluationFinalized))
}

func TestEvaluation_FinalizeValidatesConclusion(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestEvaluationService(t, db)
	seedProposal(t, db, workflow.StateOutlineCouncilReview)
	require.NoError(t, svc.AssignEvaluators(context.Background(), "p1", councilMembers()))
	submitAll(t, svc, "p1")

	_, err := svc.Finalize(context.Background(), "p1", secretaryActor(), "MAYBE", "", "fin-1")
	assert.True(t, workflow.IsCode(err, workflow.CodeInvalidScore))

	// 非秘书不得定稿
	_, err = svc.Finalize(context.Background(), "p1", ownerActor(), model.ConclusionDat, "", "fin-2")
	assert.True(t, workflow.IsCode(err, workflow.CodeWrongRole))
}
