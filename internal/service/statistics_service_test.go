package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

func TestStatisticsByState(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatisticsService(db)

	now := time.Now()
	states := []workflow.State{
		workflow.StateDraft, workflow.StateDraft, workflow.StateFacultyReview,
	}
	for i, state := range states {
		require.NoError(t, db.Create(&model.ProposalModel{
			ID: string(rune('a' + i)), Code: "DT2025-00" + string(rune('1'+i)), Title: "t",
			State: string(state), OwnerID: "lecturer-1", FacultyID: "faculty-cntt",
			CreatedAt: now, UpdatedAt: now,
		}).Error)
	}

	stats, err := svc.GetProposalStatisticsByState()
	require.NoError(t, err)

	byState := map[string]int64{}
	for _, s := range stats {
		byState[s.State] = s.Count
	}
	assert.Equal(t, int64(2), byState[string(workflow.StateDraft)])
	assert.Equal(t, int64(1), byState[string(workflow.StateFacultyReview)])
}

func TestStatisticsByFaculty(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatisticsService(db)

	now := time.Now()
	faculties := []string{"faculty-cntt", "faculty-cntt", "faculty-kt"}
	for i, f := range faculties {
		require.NoError(t, db.Create(&model.ProposalModel{
			ID: string(rune('a' + i)), Code: "DT2025-10" + string(rune('1'+i)), Title: "t",
			State: string(workflow.StateDraft), OwnerID: "lecturer-1", FacultyID: f,
			CreatedAt: now, UpdatedAt: now,
		}).Error)
	}

	stats, err := svc.GetProposalStatisticsByFaculty()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	// 按数量降序
	assert.Equal(t, "faculty-cntt", stats[0].FacultyID)
	assert.Equal(t, int64(2), stats[0].Count)
}

func TestDecisionStatistics(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatisticsService(db)

	now := time.Now()
	entries := []struct {
		action string
	}{
		{"APPROVE"}, {"APPROVE"}, {"APPROVE"}, {"REJECT"}, {"RETURN"},
	}
	for i, e := range entries {
		require.NoError(t, db.Create(&model.WorkflowLogModel{
			ID: string(rune('a' + i)), ProposalID: "p1", Action: e.action,
			FromState: string(workflow.StateSchoolSelectionReview),
			ToState:   string(workflow.StateApproved),
			ActorID:   "khcn-1",
			Timestamp: now,
		}).Error)
	}

	stats, err := svc.GetDecisionStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalDecisions)
	assert.Equal(t, int64(3), stats.ApprovedCount)
	assert.Equal(t, int64(1), stats.RejectedCount)
	assert.Equal(t, int64(1), stats.ReturnedCount)
	assert.InDelta(t, 75.0, stats.ApprovalRate, 0.001)
}

func TestDecisionStatistics_Empty(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatisticsService(db)

	stats, err := svc.GetDecisionStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalDecisions)
	assert.Equal(t, 0.0, stats.ApprovalRate)
}
