package workflow_test

import (
	"testing"

	"github.com/cioer/DoAn-sub006/internal/workflow"
	"github.com/stretchr/testify/assert"
)

func holderInput() workflow.HolderInput {
	return workflow.HolderInput{
		OwnerID:        "lecturer-1",
		FacultyID:      "faculty-cntt",
		ActorID:        "mgr-1",
		ActorFacultyID: "faculty-cntt",
	}
}

func TestHolderFor_ReviewStates(t *testing.T) {
	in := holderInput()

	h := workflow.HolderFor(workflow.StateFacultyReview, in)
	assert.Equal(t, "faculty-cntt", h.HolderUnit)
	assert.Empty(t, h.HolderUser)

	h = workflow.HolderFor(workflow.StateSchoolSelectionReview, in)
	assert.Equal(t, workflow.UnitPhongKHCN, h.HolderUnit)

	h = workflow.HolderFor(workflow.StatePaused, in)
	assert.Equal(t, workflow.UnitPhongKHCN, h.HolderUnit)
}

func TestHolderFor_OwnerStates(t *testing.T) {
	in := holderInput()
	for _, state := range []workflow.State{
		workflow.StateChangesRequested,
		workflow.StateApproved,
		workflow.StateInProgress,
		workflow.StateHandover,
	} {
		h := workflow.HolderFor(state, in)
		assert.Equal(t, "faculty-cntt", h.HolderUnit, "state %s", state)
		assert.Equal(t, "lecturer-1", h.HolderUser, "state %s", state)
	}
}

func TestHolderFor_CouncilPreservesAssignment(t *testing.T) {
	// 委员会评审保留 ASSIGN_COUNCIL 时设置的持有人
	in := holderInput()
	in.HolderUnit = "council-42"
	in.HolderUser = "sec-1"

	h := workflow.HolderFor(workflow.StateOutlineCouncilReview, in)
	assert.Equal(t, "council-42", h.HolderUnit)
	assert.Equal(t, "sec-1", h.HolderUser)
}

func TestHolderFor_TerminalRecordsDecider(t *testing.T) {
	in := holderInput()
	h := workflow.HolderFor(workflow.StateRejected, in)
	assert.Equal(t, "faculty-cntt", h.HolderUnit)
	assert.Equal(t, "mgr-1", h.HolderUser)

	// 决策人无院系时回落到课题院系
	in.ActorFacultyID = ""
	h = workflow.HolderFor(workflow.StateCancelled, in)
	assert.Equal(t, "faculty-cntt", h.HolderUnit)
}

func TestHolderFor_UnassignedStates(t *testing.T) {
	in := holderInput()
	assert.Equal(t, workflow.HolderAssignment{}, workflow.HolderFor(workflow.StateDraft, in))
	assert.Equal(t, workflow.HolderAssignment{}, workflow.HolderFor(workflow.StateCompleted, in))
}

func TestHolderFor_AllStatesCovered(t *testing.T) {
	// 每个枚举状态都有持有人规则,不触发 panic
	in := holderInput()
	for _, state := range workflow.AllStates {
		assert.NotPanics(t, func() { workflow.HolderFor(state, in) }, "state %s", state)
	}
}
