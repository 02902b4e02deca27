package workflow_test

import (
	"testing"

	"github.com/cioer/DoAn-sub006/internal/workflow"
	"github.com/stretchr/testify/assert"
)

func TestFindTransition_MainPath(t *testing.T) {
	// 主线: DRAFT → ... → COMPLETED
	steps := []struct {
		from   workflow.State
		action workflow.Action
		target workflow.State
	}{
		{workflow.StateDraft, workflow.ActionSubmit, workflow.StateFacultyReview},
		{workflow.StateFacultyReview, workflow.ActionApprove, workflow.StateSchoolSelectionReview},
		{workflow.StateSchoolSelectionReview, workflow.ActionAssignCouncil, workflow.StateOutlineCouncilReview},
		{workflow.StateOutlineCouncilReview, workflow.ActionApprove, workflow.StateApproved},
		{workflow.StateApproved, workflow.ActionStartProject, workflow.StateInProgress},
		{workflow.StateInProgress, workflow.ActionSubmitAcceptance, workflow.StateFacultyAcceptanceReview},
		{workflow.StateFacultyAcceptanceReview, workflow.ActionFacultyAccept, workflow.StateSchoolAcceptanceReview},
		{workflow.StateSchoolAcceptanceReview, workflow.ActionAccept, workflow.StateHandover},
		{workflow.StateHandover, workflow.ActionHandoverComplete, workflow.StateCompleted},
	}

	for _, s := range steps {
		tr, ok := workflow.FindTransition(s.from, s.action)
		assert.True(t, ok, "missing edge %s + %s", s.from, s.action)
		assert.Equal(t, s.target, tr.Target)
	}
}

func TestFindTransition_UndefinedCombination(t *testing.T) {
	_, ok := workflow.FindTransition(workflow.StateDraft, workflow.ActionApprove)
	assert.False(t, ok)

	_, ok = workflow.FindTransition(workflow.StateInProgress, workflow.ActionSubmit)
	assert.False(t, ok)
}

func TestFindTransition_TerminalStatesHaveNoEdges(t *testing.T) {
	// 终态无出边
	for _, state := range []workflow.State{
		workflow.StateCompleted,
		workflow.StateCancelled,
		workflow.StateWithdrawn,
		workflow.StateRejected,
	} {
		assert.True(t, workflow.IsTerminal(state))
		assert.Empty(t, workflow.TransitionsFrom(state), "terminal state %s has outgoing edges", state)
	}
}

func TestFindTransition_DynamicTargets(t *testing.T) {
	// RESUME 与 RESUBMIT 的目标取自课题记录
	tr, ok := workflow.FindTransition(workflow.StatePaused, workflow.ActionResume)
	assert.True(t, ok)
	assert.True(t, tr.DynamicTarget)
	assert.Equal(t, workflow.StateDynamic, tr.Target)

	tr, ok = workflow.FindTransition(workflow.StateChangesRequested, workflow.ActionResubmit)
	assert.True(t, ok)
	assert.True(t, tr.DynamicTarget)
}

func TestCanTransition_RoleGate(t *testing.T) {
	// 讲师可提交,院系管理员不可
	target, ok := workflow.CanTransition(workflow.StateDraft, workflow.ActionSubmit, workflow.RoleGiangVien)
	assert.True(t, ok)
	assert.Equal(t, workflow.StateFacultyReview, target)

	_, ok = workflow.CanTransition(workflow.StateDraft, workflow.ActionSubmit, workflow.RoleQuanLyKhoa)
	assert.False(t, ok)

	// 暂停仅科技处
	_, ok = workflow.CanTransition(workflow.StateInProgress, workflow.ActionPause, workflow.RolePhongKHCN)
	assert.True(t, ok)
	_, ok = workflow.CanTransition(workflow.StateInProgress, workflow.ActionPause, workflow.RoleGiangVien)
	assert.False(t, ok)
}

func TestIsValidState(t *testing.T) {
	for _, s := range workflow.AllStates {
		assert.True(t, workflow.IsValidState(s))
	}
	assert.False(t, workflow.IsValidState(workflow.State("UNKNOWN")))
	assert.False(t, workflow.IsValidState(workflow.StateDynamic))
}

func TestTransitionsFrom_VisibleActions(t *testing.T) {
	edges := workflow.TransitionsFrom(workflow.StateFacultyReview)
	actions := make(map[workflow.Action]bool)
	for _, e := range edges {
		actions[e.Action] = true
	}
	assert.True(t, actions[workflow.ActionApprove])
	assert.True(t, actions[workflow.ActionReturn])
	assert.True(t, actions[workflow.ActionReject])
	assert.True(t, actions[workflow.ActionWithdraw])
	assert.True(t, actions[workflow.ActionPause])
}
