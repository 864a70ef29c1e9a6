package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cliff-rosen/adam-bot/internal/services"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// errSuperseded signals that another writer moved the instance to paused
// or cancelled while the drive loop held a stale copy. The loop stops
// cleanly and discards its in-flight result.
var errSuperseded = errors.New("workflow: drive superseded by concurrent status change")

// errRecoveryRouted signals that a failed execute node was routed to a
// recovery edge. The drive loop continues from the new current node
// without resolving the failed node's success edges.
var errRecoveryRouted = errors.New("workflow: failure routed to recovery edge")

// drive advances the instance until it suspends at a checkpoint, reaches
// a terminal node, fails, or is superseded by a concurrent pause or
// cancel. State is persisted after every transition, so a crashed drive
// resumes from the last completed node.
func (e *Engine) drive(ctx context.Context, def *models.GraphDefinition, inst *models.WorkflowInstance) error {
	if inst.Status == models.StatusPending {
		inst.Status = models.StatusRunning
		if err := e.saveProgress(ctx, inst); err != nil {
			return e.settle(err)
		}
	}

	for steps := 0; ; steps++ {
		if steps >= e.opts.MaxSteps {
			return e.failInstance(ctx, inst, &models.GraphDesignError{
				WorkflowID: def.WorkflowID,
				NodeID:     inst.CurrentNodeID,
				Reason:     fmt.Sprintf("instance exceeded %d steps without stopping", e.opts.MaxSteps),
			})
		}

		node, ok := def.Node(inst.CurrentNodeID)
		if !ok {
			return e.failInstance(ctx, inst, &models.GraphDesignError{
				WorkflowID: def.WorkflowID,
				NodeID:     inst.CurrentNodeID,
				Reason:     "current node does not exist in the definition",
			})
		}

		switch node.Kind {
		case models.NodeKindExecute:
			err := e.runExecute(ctx, def, inst, node)
			if errors.Is(err, errRecoveryRouted) {
				// Stay in this loop so the step guard also bounds
				// recovery cycles.
				continue
			}
			if err != nil {
				return e.settle(err)
			}
		case models.NodeKindCheckpoint:
			proceed, err := e.enterCheckpoint(ctx, def, inst, node)
			if err != nil {
				return e.settle(err)
			}
			if !proceed {
				return nil
			}
		default:
			return e.failInstance(ctx, inst, &models.GraphDesignError{
				WorkflowID: def.WorkflowID,
				NodeID:     node.ID,
				Reason:     fmt.Sprintf("unknown node kind %q", node.Kind),
			})
		}

		res, err := resolveNext(def, e.eval, inst.CurrentNodeID, inst.StepData)
		if err != nil {
			return e.failInstance(ctx, inst, err)
		}
		if res.Terminal {
			return e.settle(e.completeInstance(ctx, def, inst))
		}

		inst.CurrentNodeID = res.NextNodeID
		if err := e.saveProgress(ctx, inst); err != nil {
			return e.settle(err)
		}
	}
}

// driveFrom advances past an already-decided node, then continues the
// normal drive loop. Resume enters here so a decided checkpoint is never
// prompted twice for the same visit.
func (e *Engine) driveFrom(ctx context.Context, def *models.GraphDefinition, inst *models.WorkflowInstance, decidedNodeID string) error {
	res, err := resolveNext(def, e.eval, decidedNodeID, inst.StepData)
	if err != nil {
		return e.settle(e.failInstance(ctx, inst, err))
	}
	if res.Terminal {
		return e.settle(e.completeInstance(ctx, def, inst))
	}

	inst.CurrentNodeID = res.NextNodeID
	if err := e.saveProgress(ctx, inst); err != nil {
		return e.settle(err)
	}
	return e.drive(ctx, def, inst)
}

// settle converts the internal control-flow signals into a clean stop.
func (e *Engine) settle(err error) error {
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

// runExecute runs one execute node, retrying transient failures with
// exponential backoff. A permanent failure routes to an error-recovery
// edge when the graph declares one, otherwise it fails the instance.
func (e *Engine) runExecute(ctx context.Context, def *models.GraphDefinition, inst *models.WorkflowInstance, node models.NodeDefinition) error {
	spec := node.Execute
	ns := inst.NodeState(node.ID)
	now := time.Now().UTC()
	ns.Status = models.NodeRunning
	ns.StartedAt = &now
	ns.ExecutionCount++
	ns.Error = ""

	if err := e.saveProgress(ctx, inst); err != nil {
		return err
	}
	e.emitter.Emit(ctx, models.NewEvent(models.EventStepStart, inst.ID, node.ID, node.Name,
		models.StepStartData{ExecutionCount: ns.ExecutionCount}))
	e.executions.Add(ctx, 1)

	inputs := e.projectInputs(spec, inst.StepData)
	startedAt := time.Now()

	var result *services.TaskResult
	operation := func() error {
		r, err := e.executor.ExecuteNode(ctx, spec.Goal, inputs, spec.Tools)
		if err != nil {
			if services.IsTransient(err) {
				e.logger.Warn("execute node attempt failed",
					"instance_id", inst.ID, "node_id", node.ID, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.opts.RetryInitialInterval
	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.opts.MaxRetries)), ctx))
	elapsed := time.Since(startedAt)

	if err != nil {
		return e.handleExecuteFailure(ctx, def, inst, node, err)
	}

	inst.StepData[spec.OutputField] = result.Data
	delete(inst.StepData, models.StepDataLastError)
	done := time.Now().UTC()
	ns.Status = models.NodeCompleted
	ns.CompletedAt = &done

	if err := e.saveProgress(ctx, inst); err != nil {
		return err
	}
	e.emitter.Emit(ctx, models.NewEvent(models.EventStepComplete, inst.ID, node.ID, node.Name,
		models.StepCompleteData{
			OutputField:    spec.OutputField,
			DisplayTitle:   result.DisplayTitle,
			DisplayContent: result.DisplayContent,
			ContentType:    result.ContentType,
			ElapsedMs:      elapsed.Milliseconds(),
		}))
	e.logger.Info("execute node completed",
		"instance_id", inst.ID, "node_id", node.ID, "elapsed", elapsed)
	return nil
}

// handleExecuteFailure records the failure and probes the node's
// conditional edges with the error in step data. The unconditional
// fallback is the success path and is never taken on failure.
func (e *Engine) handleExecuteFailure(ctx context.Context, def *models.GraphDefinition, inst *models.WorkflowInstance, node models.NodeDefinition, cause error) error {
	ns := inst.NodeState(node.ID)
	done := time.Now().UTC()
	ns.Status = models.NodeFailed
	ns.Error = cause.Error()
	ns.CompletedAt = &done
	inst.StepData[models.StepDataLastError] = cause.Error()

	for _, edge := range def.EdgesFrom(node.ID) {
		if edge.ConditionExpr == "" {
			continue
		}
		ok, err := e.eval.Evaluate(edge.ConditionExpr, inst.StepData)
		if err != nil || !ok {
			continue
		}
		inst.CurrentNodeID = edge.To
		if err := e.saveProgress(ctx, inst); err != nil {
			return err
		}
		e.logger.Warn("execute node failed, routing to recovery",
			"instance_id", inst.ID, "node_id", node.ID, "recovery", edge.To, "error", cause)
		return errRecoveryRouted
	}

	return e.failInstance(ctx, inst, cause)
}

// enterCheckpoint suspends the instance at a checkpoint, or passes it
// through when the decision was already made. Auto-proceed with a zero
// timeout approves inline; a positive timeout approves on a timer unless
// a user decision lands first.
func (e *Engine) enterCheckpoint(ctx context.Context, def *models.GraphDefinition, inst *models.WorkflowInstance, node models.NodeDefinition) (bool, error) {
	spec := node.Checkpoint
	ns := inst.NodeState(node.ID)

	if spec.AutoProceed && spec.AutoProceedTimeoutSeconds <= 0 {
		inst.RecordAction(node.ID, models.ActionApprove)
		now := time.Now().UTC()
		ns.Status = models.NodeCompleted
		ns.ExecutionCount++
		ns.CompletedAt = &now
		if err := e.saveProgress(ctx, inst); err != nil {
			return false, err
		}
		e.emitter.Emit(ctx, models.NewEvent(models.EventStepComplete, inst.ID, node.ID, node.Name,
			models.StepCompleteData{Action: string(models.ActionApprove)}))
		return true, nil
	}

	now := time.Now().UTC()
	ns.Status = models.NodeWaiting
	ns.StartedAt = &now
	ns.ExecutionCount++
	inst.Status = models.StatusWaiting
	if err := e.saveProgress(ctx, inst); err != nil {
		return false, err
	}

	e.emitter.Emit(ctx, models.NewEvent(models.EventCheckpoint, inst.ID, node.ID, node.Name,
		models.CheckpointData{
			Title:          spec.Title,
			Description:    spec.Description,
			AllowedActions: spec.AllowedActions,
			EditableData:   e.projectFields(spec.EditableFields, inst.StepData),
		}))
	e.logger.Info("instance waiting at checkpoint",
		"instance_id", inst.ID, "node_id", node.ID)

	if spec.AutoProceed && spec.AutoProceedTimeoutSeconds > 0 {
		e.scheduleAutoProceed(inst.ID, node.ID, time.Duration(spec.AutoProceedTimeoutSeconds)*time.Second)
	}
	return false, nil
}

// scheduleAutoProceed approves the checkpoint after the timeout. A user
// decision in the meantime makes the instance no longer waiting, and the
// timed approval drops out as an invalid-state error.
func (e *Engine) scheduleAutoProceed(instanceID, nodeID string, after time.Duration) {
	time.AfterFunc(after, func() {
		ctx := context.Background()
		_, err := e.Resume(ctx, instanceID, models.ResumeRequest{Action: models.ActionApprove})
		if err != nil && !errors.Is(err, models.ErrInvalidState) {
			e.logger.Error("auto-proceed failed",
				"instance_id", instanceID, "node_id", nodeID, "error", err)
		}
	})
}

// completeInstance finalizes a terminal node: project the output schema
// from step data, mark completed, emit the completion event. A terminal
// instance has no current node.
func (e *Engine) completeInstance(ctx context.Context, def *models.GraphDefinition, inst *models.WorkflowInstance) error {
	lastNodeID := inst.CurrentNodeID
	now := time.Now().UTC()
	inst.Status = models.StatusCompleted
	inst.CurrentNodeID = ""
	inst.CompletedAt = &now
	if err := e.saveProgress(ctx, inst); err != nil {
		return err
	}

	output := e.projectOutput(def, inst.StepData)
	e.emitter.Emit(ctx, models.NewEvent(models.EventComplete, inst.ID, lastNodeID, "",
		models.CompleteData{Output: output}))
	e.completed.Add(ctx, 1)
	e.logger.Info("instance completed", "instance_id", inst.ID)
	return nil
}

// failInstance marks the instance failed with the given cause and
// returns the cause. A supersede during the failure save wins as usual.
func (e *Engine) failInstance(ctx context.Context, inst *models.WorkflowInstance, cause error) error {
	failedNodeID := inst.CurrentNodeID
	now := time.Now().UTC()
	inst.Status = models.StatusFailed
	inst.CurrentNodeID = ""
	inst.Error = cause.Error()
	inst.CompletedAt = &now
	if err := e.saveProgress(ctx, inst); err != nil {
		return e.settle(err)
	}

	e.emitter.Emit(ctx, models.NewEvent(models.EventError, inst.ID, failedNodeID, "",
		models.ErrorData{Error: cause.Error()}))
	e.failed.Add(ctx, 1)
	e.logger.Error("instance failed", "instance_id", inst.ID, "error", cause)
	return cause
}

// saveProgress persists the drive loop's state. A version conflict means
// another writer intervened: a pause or cancel supersedes the loop and
// its pending changes are discarded, anything else is surfaced.
func (e *Engine) saveProgress(ctx context.Context, inst *models.WorkflowInstance) error {
	err := e.store.SaveInstance(ctx, inst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return err
	}

	stored, gerr := e.store.GetInstance(ctx, inst.ID)
	if gerr != nil {
		return gerr
	}
	switch stored.Status {
	case models.StatusCancelled, models.StatusPaused:
		e.logger.Info("drive superseded",
			"instance_id", inst.ID, "status", stored.Status)
		return errSuperseded
	default:
		return models.ErrConflict
	}
}

// projectInputs picks the node's declared input fields out of step data.
// A node with no declared inputs sees the whole bag.
func (e *Engine) projectInputs(spec *models.ExecuteSpec, stepData map[string]any) map[string]any {
	if len(spec.InputFields) == 0 {
		out := make(map[string]any, len(stepData))
		for k, v := range stepData {
			out[k] = v
		}
		return out
	}
	return e.projectFields(spec.InputFields, stepData)
}

func (e *Engine) projectFields(fields []string, stepData map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := stepData[f]; ok {
			out[f] = v
		}
	}
	return out
}

// projectOutput shapes the final output from step data through the
// definition's output schema. An empty schema returns the whole bag minus
// the engine's bookkeeping keys.
func (e *Engine) projectOutput(def *models.GraphDefinition, stepData map[string]any) map[string]any {
	if len(def.OutputSchema) == 0 {
		out := make(map[string]any, len(stepData))
		for k, v := range stepData {
			if k == models.StepDataLastAction || k == models.StepDataActions || k == models.StepDataLastError {
				continue
			}
			out[k] = v
		}
		return out
	}

	out := make(map[string]any, len(def.OutputSchema))
	for name := range def.OutputSchema {
		if v, ok := stepData[name]; ok {
			out[name] = v
		}
	}
	return out
}
