package models

import (
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	StatusPending   InstanceStatus = "pending"
	StatusRunning   InstanceStatus = "running"
	StatusWaiting   InstanceStatus = "waiting"
	StatusPaused    InstanceStatus = "paused"
	StatusCompleted InstanceStatus = "completed"
	StatusFailed    InstanceStatus = "failed"
	StatusCancelled InstanceStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NodeStatus is the runtime state of a single node within an instance.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeWaiting   NodeStatus = "waiting"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// NodeState tracks the execution history of one node for diagnostics and
// loop detection.
type NodeState struct {
	Status         NodeStatus `json:"status"`
	ExecutionCount int        `json:"execution_count"`
	Error          string     `json:"error,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Step-data keys maintained by the engine on checkpoint resumes. Edge
// conditions route on them, e.g. `last_action == "approve"` or
// `actions["review"] == "reject"`.
const (
	StepDataLastAction = "last_action"
	StepDataActions    = "actions"
	// StepDataLastError holds the failure message of the most recent
	// execute attempt, for error-recovery edges such as
	// `last_error != nil`. Cleared on the next successful node.
	StepDataLastError = "last_error"
)

// WorkflowInstance is one stateful run of a graph definition. The engine
// is its only writer; readers get point-in-time copies. Version is the
// compare-and-swap token enforced by the instance store.
type WorkflowInstance struct {
	ID            string                `json:"id"`
	WorkflowID    string                `json:"workflow_id"`
	Status        InstanceStatus        `json:"status"`
	CurrentNodeID string                `json:"current_node_id,omitempty"`
	StepData      map[string]any        `json:"step_data"`
	NodeStates    map[string]*NodeState `json:"node_states"`

	// ConversationID associates the instance with the conversation that
	// launched it, when one exists.
	ConversationID *int64 `json:"conversation_id,omitempty"`

	Version int    `json:"version"`
	Error   string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewInstance creates a pending instance of a definition, seeding the
// step-data bag from the already-validated input.
func NewInstance(def *GraphDefinition, input map[string]any, conversationID *int64) *WorkflowInstance {
	stepData := make(map[string]any, len(input))
	for k, v := range input {
		stepData[k] = v
	}

	now := time.Now().UTC()
	return &WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowID:     def.ID,
		Status:         StatusPending,
		StepData:       stepData,
		NodeStates:     make(map[string]*NodeState),
		ConversationID: conversationID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NodeState returns the state record for a node, creating it on first use.
func (i *WorkflowInstance) NodeState(nodeID string) *NodeState {
	if i.NodeStates == nil {
		i.NodeStates = make(map[string]*NodeState)
	}
	ns, ok := i.NodeStates[nodeID]
	if !ok {
		ns = &NodeState{Status: NodePending}
		i.NodeStates[nodeID] = ns
	}
	return ns
}

// RecordAction writes a checkpoint decision into step data, both as the
// instance-wide last action and under the per-node actions map.
func (i *WorkflowInstance) RecordAction(nodeID string, action CheckpointAction) {
	if i.StepData == nil {
		i.StepData = make(map[string]any)
	}
	i.StepData[StepDataLastAction] = string(action)

	actions, ok := i.StepData[StepDataActions].(map[string]any)
	if !ok {
		actions = make(map[string]any)
	}
	actions[nodeID] = string(action)
	i.StepData[StepDataActions] = actions
}

// Clone returns a deep copy of the instance. Stores hand out clones so
// concurrent readers never observe engine mutations in flight.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	cp := *i
	cp.StepData = deepCopyMap(i.StepData)
	cp.NodeStates = make(map[string]*NodeState, len(i.NodeStates))
	for id, ns := range i.NodeStates {
		nsCopy := *ns
		cp.NodeStates[id] = &nsCopy
	}
	if i.ConversationID != nil {
		v := *i.ConversationID
		cp.ConversationID = &v
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// ResumeRequest carries the user's decision at a checkpoint. UserData is
// consulted only for the edit action and only the checkpoint's editable
// fields are merged; other keys are ignored.
type ResumeRequest struct {
	Action   CheckpointAction `json:"action"`
	UserData map[string]any   `json:"user_data,omitempty"`
}
