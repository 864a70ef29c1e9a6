package workflow

import (
	"fmt"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// resolution is the outcome of resolving the outgoing edges of a node.
type resolution struct {
	// NextNodeID is the node to transition to. Empty when Terminal.
	NextNodeID string
	// Terminal reports that the node has no outgoing edges, so the
	// instance completes here.
	Terminal bool
}

// resolveNext picks the next node after nodeID. Conditional edges are
// evaluated in declaration order and the first true guard wins; the
// unconditional edge, if any, is the fallback regardless of where it was
// declared. No outgoing edges means the node is terminal. Outgoing edges
// that all decline is a design fault in the graph.
func resolveNext(def *models.GraphDefinition, eval *conditionEvaluator, nodeID string, stepData map[string]any) (resolution, error) {
	edges := def.EdgesFrom(nodeID)
	if len(edges) == 0 {
		return resolution{Terminal: true}, nil
	}

	var fallback *models.EdgeDefinition
	for i := range edges {
		e := edges[i]
		if e.ConditionExpr == "" {
			fallback = &edges[i]
			continue
		}
		ok, err := eval.Evaluate(e.ConditionExpr, stepData)
		if err != nil {
			return resolution{}, &models.GraphDesignError{
				WorkflowID: def.WorkflowID,
				NodeID:     nodeID,
				Reason:     err.Error(),
			}
		}
		if ok {
			return resolution{NextNodeID: e.To}, nil
		}
	}
	if fallback != nil {
		return resolution{NextNodeID: fallback.To}, nil
	}

	return resolution{}, &models.GraphDesignError{
		WorkflowID: def.WorkflowID,
		NodeID:     nodeID,
		Reason:     fmt.Sprintf("no outgoing edge matched and node %q has no fallback", nodeID),
	}
}
