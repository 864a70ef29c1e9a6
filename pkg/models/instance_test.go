package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceSeedsStepData(t *testing.T) {
	def := validDefinition()
	inst := NewInstance(def, map[string]any{"topic": "go"}, nil)

	assert.Equal(t, def.ID, inst.WorkflowID)
	assert.Equal(t, StatusPending, inst.Status)
	assert.Equal(t, 1, inst.Version)
	assert.Equal(t, "go", inst.StepData["topic"])
	assert.NotEmpty(t, inst.ID)
}

func TestRecordAction(t *testing.T) {
	def := validDefinition()
	inst := NewInstance(def, nil, nil)

	inst.RecordAction("review", ActionReject)
	inst.RecordAction("final", ActionApprove)

	assert.Equal(t, "approve", inst.StepData[StepDataLastAction])
	actions, ok := inst.StepData[StepDataActions].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "reject", actions["review"])
	assert.Equal(t, "approve", actions["final"])
}

func TestCloneIsDeep(t *testing.T) {
	def := validDefinition()
	inst := NewInstance(def, map[string]any{
		"nested": map[string]any{"k": "v"},
		"list":   []any{"a", "b"},
	}, nil)
	inst.NodeState("a").ExecutionCount = 2

	cp := inst.Clone()
	cp.StepData["nested"].(map[string]any)["k"] = "changed"
	cp.StepData["list"].([]any)[0] = "changed"
	cp.NodeState("a").ExecutionCount = 99

	assert.Equal(t, "v", inst.StepData["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", inst.StepData["list"].([]any)[0])
	assert.Equal(t, 2, inst.NodeState("a").ExecutionCount)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusWaiting.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}
