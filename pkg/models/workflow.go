// Package models defines the domain models for the workflow engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// NodeKind discriminates the node variants of a workflow graph.
type NodeKind string

const (
	// NodeKindExecute is an automated task node driven by the task executor.
	NodeKindExecute NodeKind = "execute"
	// NodeKindCheckpoint is a human decision point that suspends execution.
	NodeKindCheckpoint NodeKind = "checkpoint"
)

// CheckpointAction is a decision a user can take at a checkpoint.
type CheckpointAction string

const (
	ActionApprove CheckpointAction = "approve"
	ActionEdit    CheckpointAction = "edit"
	ActionReject  CheckpointAction = "reject"
	ActionSkip    CheckpointAction = "skip"
)

// FieldType is the structural type of a schema field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"
)

// FieldSpec describes one named field of an input or output schema.
type FieldSpec struct {
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// ExecuteSpec is the payload of an execute node: the task the external
// executor should perform and how it maps to the step-data bag.
type ExecuteSpec struct {
	Goal        string   `json:"goal" yaml:"goal"`
	Tools       []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	InputFields []string `json:"input_fields,omitempty" yaml:"input_fields,omitempty"`
	OutputField string   `json:"output_field" yaml:"output_field"`
}

// CheckpointSpec is the payload of a checkpoint node.
type CheckpointSpec struct {
	Title          string             `json:"title" yaml:"title"`
	Description    string             `json:"description,omitempty" yaml:"description,omitempty"`
	AllowedActions []CheckpointAction `json:"allowed_actions" yaml:"allowed_actions"`
	EditableFields []string           `json:"editable_fields,omitempty" yaml:"editable_fields,omitempty"`

	// AutoProceed approves the checkpoint without user input once
	// AutoProceedTimeoutSeconds elapses. A zero timeout approves inline.
	AutoProceed               bool `json:"auto_proceed,omitempty" yaml:"auto_proceed,omitempty"`
	AutoProceedTimeoutSeconds int  `json:"auto_proceed_timeout_seconds,omitempty" yaml:"auto_proceed_timeout_seconds,omitempty"`
}

// Allows reports whether the given action is permitted at this checkpoint.
func (c *CheckpointSpec) Allows(action CheckpointAction) bool {
	for _, a := range c.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// NodeDefinition is one node of a workflow graph. Exactly one of the
// kind-specific payloads must be set, matching Kind.
type NodeDefinition struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        NodeKind        `json:"kind" yaml:"kind"`
	Execute     *ExecuteSpec    `json:"execute,omitempty" yaml:"execute,omitempty"`
	Checkpoint  *CheckpointSpec `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// EdgeDefinition is a directed transition between two nodes, optionally
// guarded by a boolean expression over step data.
type EdgeDefinition struct {
	From          string `json:"from" yaml:"from"`
	To            string `json:"to" yaml:"to"`
	ConditionExpr string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Label         string `json:"label,omitempty" yaml:"label,omitempty"`
}

// GraphDefinition is the immutable description of a workflow template.
// ID identifies one published version; WorkflowID is the stable concept
// identifier shared by all versions. Definitions are never edited in
// place: publishing a change creates a new ID with a bumped Version.
type GraphDefinition struct {
	ID          string `json:"id" yaml:"id"`
	WorkflowID  string `json:"workflow_id" yaml:"workflow_id"`
	Version     int    `json:"version" yaml:"version"`
	IsLatest    bool   `json:"is_latest" yaml:"is_latest"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`

	InputSchema  map[string]FieldSpec `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema map[string]FieldSpec `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`

	EntryNode string                    `json:"entry_node" yaml:"entry_node"`
	Nodes     map[string]NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges     []EdgeDefinition          `json:"edges" yaml:"edges"`

	CreatedBy string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Node returns the node with the given id.
func (d *GraphDefinition) Node(id string) (NodeDefinition, bool) {
	n, ok := d.Nodes[id]
	return n, ok
}

// EdgesFrom returns the outgoing edges of a node in declaration order.
func (d *GraphDefinition) EdgesFrom(nodeID string) []EdgeDefinition {
	var out []EdgeDefinition
	for _, e := range d.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks the structural invariants of the definition: the entry
// node exists, node ids are consistent, edges reference existing nodes,
// each node has at most one unconditional outgoing edge, and every node
// reachable from the entry can either reach a terminal node or suspend at
// a checkpoint. All violations are reported, joined into one error.
func (d *GraphDefinition) Validate() error {
	var problems []error

	fail := func(nodeID, format string, args ...any) {
		problems = append(problems, &GraphDesignError{
			WorkflowID: d.WorkflowID,
			NodeID:     nodeID,
			Reason:     fmt.Sprintf(format, args...),
		})
	}

	if len(d.Nodes) == 0 {
		fail("", "definition has no nodes")
		return errors.Join(problems...)
	}
	if _, ok := d.Nodes[d.EntryNode]; !ok {
		fail(d.EntryNode, "entry node %q does not exist", d.EntryNode)
	}

	for id, n := range d.Nodes {
		if n.ID != "" && n.ID != id {
			fail(id, "node key %q does not match node id %q", id, n.ID)
		}
		switch n.Kind {
		case NodeKindExecute:
			if n.Execute == nil {
				fail(id, "execute node has no execute payload")
			} else if n.Execute.OutputField == "" {
				fail(id, "execute node has no output field")
			}
			if n.Checkpoint != nil {
				fail(id, "execute node carries a checkpoint payload")
			}
		case NodeKindCheckpoint:
			if n.Checkpoint == nil {
				fail(id, "checkpoint node has no checkpoint payload")
			} else if len(n.Checkpoint.AllowedActions) == 0 {
				fail(id, "checkpoint node allows no actions")
			}
			if n.Execute != nil {
				fail(id, "checkpoint node carries an execute payload")
			}
		default:
			fail(id, "unknown node kind %q", n.Kind)
		}
	}

	unconditional := make(map[string]int)
	for _, e := range d.Edges {
		if _, ok := d.Nodes[e.From]; !ok {
			fail(e.From, "edge references unknown source node %q", e.From)
		}
		if _, ok := d.Nodes[e.To]; !ok {
			fail(e.To, "edge references unknown target node %q", e.To)
		}
		if e.ConditionExpr == "" {
			unconditional[e.From]++
		}
	}
	for nodeID, count := range unconditional {
		if count > 1 {
			fail(nodeID, "node has %d unconditional outgoing edges, at most one fallback is allowed", count)
		}
	}

	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	// Reachability: every execute node reachable from the entry must be
	// able to reach a terminal node or a checkpoint, otherwise the graph
	// traps instances forever.
	canStop := d.stopReachable()
	for _, id := range d.reachableFromEntry() {
		if d.Nodes[id].Kind == NodeKindCheckpoint {
			continue
		}
		if !canStop[id] {
			fail(id, "node can never reach a terminal node or checkpoint")
		}
	}

	return errors.Join(problems...)
}

// reachableFromEntry walks the edges breadth-first from the entry node.
func (d *GraphDefinition) reachableFromEntry() []string {
	seen := map[string]bool{d.EntryNode: true}
	queue := []string{d.EntryNode}
	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, e := range d.EdgesFrom(cur) {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return order
}

// stopReachable computes the set of nodes from which a terminal node (no
// outgoing edges) or a checkpoint is reachable, by walking the edges in
// reverse from every such stopping point.
func (d *GraphDefinition) stopReachable() map[string]bool {
	incoming := make(map[string][]string)
	outgoing := make(map[string]int)
	for _, e := range d.Edges {
		incoming[e.To] = append(incoming[e.To], e.From)
		outgoing[e.From]++
	}

	ok := make(map[string]bool)
	var queue []string
	for id, n := range d.Nodes {
		if outgoing[id] == 0 || n.Kind == NodeKindCheckpoint {
			ok[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, from := range incoming[cur] {
			if !ok[from] {
				ok[from] = true
				queue = append(queue, from)
			}
		}
	}
	return ok
}

// ValidateInput checks a start input against the definition's input
// schema. It reports all violations at once so callers can fix a payload
// in a single round trip.
func ValidateInput(schema map[string]FieldSpec, input map[string]any) error {
	var verr SchemaValidationError

	for name, spec := range schema {
		value, present := input[name]
		if !present {
			if spec.Required {
				verr.Fields = append(verr.Fields, FieldError{Field: name, Reason: "required field is missing"})
			}
			continue
		}
		if !matchesFieldType(spec.Type, value) {
			verr.Fields = append(verr.Fields, FieldError{
				Field:  name,
				Reason: fmt.Sprintf("expected %s, got %T", spec.Type, value),
			})
		}
	}
	for name := range input {
		if _, known := schema[name]; !known {
			verr.Fields = append(verr.Fields, FieldError{Field: name, Reason: "field is not declared in the schema"})
		}
	}

	if len(verr.Fields) > 0 {
		return &verr
	}
	return nil
}

func matchesFieldType(t FieldType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case FieldTypeString:
		_, ok := v.(string)
		return ok
	case FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	case FieldTypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case FieldTypeObject:
		_, ok := v.(map[string]any)
		return ok
	case FieldTypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}
