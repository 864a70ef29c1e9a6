package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of workflow lifecycle event.
type EventType string

const (
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventCheckpoint   EventType = "checkpoint"
	EventError        EventType = "error"
	EventComplete     EventType = "complete"
	EventCancelled    EventType = "cancelled"
)

// WorkflowEvent is the envelope streamed to subscribers of an instance.
// Events for a single instance are strictly ordered; there is no ordering
// guarantee across instances.
type WorkflowEvent struct {
	Type       EventType       `json:"event_type"`
	InstanceID string          `json:"instance_id"`
	NodeID     string          `json:"node_id,omitempty"`
	NodeName   string          `json:"node_name,omitempty"`
	Timestamp  time.Time       `json:"ts"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// StepStartData is the payload of a step_start event.
type StepStartData struct {
	ExecutionCount int `json:"execution_count"`
}

// StepCompleteData is the payload of a step_complete event. The display
// fields carry presentation metadata reported by the task executor.
type StepCompleteData struct {
	OutputField    string `json:"output_field,omitempty"`
	Action         string `json:"action,omitempty"`
	DisplayTitle   string `json:"display_title,omitempty"`
	DisplayContent string `json:"display_content,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	ElapsedMs      int64  `json:"elapsed_ms,omitempty"`
}

// CheckpointData is the payload of a checkpoint event: everything a
// client needs to render the decision prompt.
type CheckpointData struct {
	Title          string             `json:"title"`
	Description    string             `json:"description,omitempty"`
	AllowedActions []CheckpointAction `json:"allowed_actions"`
	EditableData   map[string]any     `json:"editable_data,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Error string `json:"error"`
}

// CompleteData is the payload of a complete event: the final output
// projected from step data through the output schema.
type CompleteData struct {
	Output map[string]any `json:"output,omitempty"`
}

// NewEvent builds an event envelope, marshaling the payload. A payload
// that cannot marshal is a programming error.
func NewEvent(t EventType, instanceID, nodeID, nodeName string, payload any) *WorkflowEvent {
	evt := &WorkflowEvent{
		Type:       t,
		InstanceID: instanceID,
		NodeID:     nodeID,
		NodeName:   nodeName,
		Timestamp:  time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic("models: marshal event payload: " + err.Error())
		}
		evt.Data = data
	}
	return evt
}
