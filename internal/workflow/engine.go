package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/internal/services"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// Emitter receives workflow lifecycle events. Events for one instance are
// emitted in order from a single goroutine.
type Emitter interface {
	Emit(ctx context.Context, evt *models.WorkflowEvent)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *models.WorkflowEvent) {}

// Options tunes the engine's drive loop and retry policy.
type Options struct {
	// MaxSteps bounds the number of node transitions per drive, so a
	// cyclic graph that never stops is cut off instead of spinning.
	MaxSteps int
	// MaxRetries is the number of retries for transient execute failures.
	MaxRetries uint
	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		MaxSteps:             100,
		MaxRetries:           3,
		RetryInitialInterval: 500 * time.Millisecond,
	}
}

// Engine drives workflow instances through their graphs. The drive loop
// is synchronous; the Async variants persist the state transition first
// and run the loop on a goroutine so HTTP handlers return promptly.
type Engine struct {
	store    repository.Store
	registry *Registry
	executor services.TaskExecutor
	emitter  Emitter
	logger   *slog.Logger
	eval     *conditionEvaluator
	opts     Options

	started    metric.Int64Counter
	completed  metric.Int64Counter
	failed     metric.Int64Counter
	executions metric.Int64Counter
}

// NewEngine creates an engine. A nil emitter discards events.
func NewEngine(store repository.Store, registry *Registry, executor services.TaskExecutor, emitter Emitter, logger *slog.Logger, opts Options) *Engine {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultOptions().MaxSteps
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = DefaultOptions().RetryInitialInterval
	}

	meter := otel.Meter("github.com/cliff-rosen/adam-bot/internal/workflow")
	started, _ := meter.Int64Counter("workflow.instances.started")
	completed, _ := meter.Int64Counter("workflow.instances.completed")
	failed, _ := meter.Int64Counter("workflow.instances.failed")
	executions, _ := meter.Int64Counter("workflow.node.executions")

	return &Engine{
		store:      store,
		registry:   registry,
		executor:   executor,
		emitter:    emitter,
		logger:     logger,
		eval:       newConditionEvaluator(),
		opts:       opts,
		started:    started,
		completed:  completed,
		failed:     failed,
		executions: executions,
	}
}

// Start creates an instance of a definition and drives it until it
// suspends at a checkpoint, completes, or fails. The returned instance is
// the state at the point the drive loop stopped.
func (e *Engine) Start(ctx context.Context, definitionID string, input map[string]any, conversationID *int64) (*models.WorkflowInstance, error) {
	inst, def, err := e.createInstance(ctx, definitionID, input, conversationID)
	if err != nil {
		return nil, err
	}

	if err := e.drive(ctx, def, inst); err != nil {
		return inst, err
	}
	return inst, nil
}

// StartAsync creates an instance and drives it on a goroutine. The
// returned instance is the freshly persisted pending state.
func (e *Engine) StartAsync(ctx context.Context, definitionID string, input map[string]any, conversationID *int64) (*models.WorkflowInstance, error) {
	inst, def, err := e.createInstance(ctx, definitionID, input, conversationID)
	if err != nil {
		return nil, err
	}

	snapshot := inst.Clone()
	go e.driveDetached(def, inst)
	return snapshot, nil
}

func (e *Engine) createInstance(ctx context.Context, definitionID string, input map[string]any, conversationID *int64) (*models.WorkflowInstance, *models.GraphDefinition, error) {
	def, err := e.registry.Get(ctx, definitionID)
	if err != nil {
		return nil, nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, nil, err
	}
	if err := models.ValidateInput(def.InputSchema, input); err != nil {
		return nil, nil, err
	}

	inst := models.NewInstance(def, input, conversationID)
	inst.CurrentNodeID = def.EntryNode
	if err := e.store.CreateInstance(ctx, inst); err != nil {
		return nil, nil, fmt.Errorf("create instance: %w", err)
	}

	e.started.Add(ctx, 1)
	e.logger.Info("workflow instance created",
		"instance_id", inst.ID, "definition_id", def.ID, "workflow", def.Name)
	return inst, def, nil
}

// Resume applies a checkpoint decision and drives the instance onward.
// Only an instance suspended at a checkpoint can be resumed; the action
// must be in the checkpoint's allowed set. An action outside the set
// leaves the instance untouched and still waiting.
func (e *Engine) Resume(ctx context.Context, instanceID string, req models.ResumeRequest) (*models.WorkflowInstance, error) {
	inst, def, err := e.applyResume(ctx, instanceID, req)
	if err != nil {
		return nil, err
	}
	decided := inst.CurrentNodeID
	if err := e.driveFrom(ctx, def, inst, decided); err != nil {
		return inst, err
	}
	return inst, nil
}

// ResumeAsync applies a checkpoint decision synchronously, then drives
// the instance on a goroutine.
func (e *Engine) ResumeAsync(ctx context.Context, instanceID string, req models.ResumeRequest) (*models.WorkflowInstance, error) {
	inst, def, err := e.applyResume(ctx, instanceID, req)
	if err != nil {
		return nil, err
	}

	snapshot := inst.Clone()
	decided := inst.CurrentNodeID
	go func() {
		if err := e.driveFrom(context.Background(), def, inst, decided); err != nil {
			e.logger.Error("detached drive stopped", "instance_id", inst.ID, "error", err)
		}
	}()
	return snapshot, nil
}

// applyResume validates and persists the checkpoint decision, leaving
// the instance running and positioned at the checkpoint node.
func (e *Engine) applyResume(ctx context.Context, instanceID string, req models.ResumeRequest) (*models.WorkflowInstance, *models.GraphDefinition, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if inst.Status != models.StatusWaiting {
		return nil, nil, fmt.Errorf("%w: resume requires a waiting instance, status is %s",
			models.ErrInvalidState, inst.Status)
	}

	def, err := e.registry.Get(ctx, inst.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	node, ok := def.Node(inst.CurrentNodeID)
	if !ok || node.Kind != models.NodeKindCheckpoint || node.Checkpoint == nil {
		return nil, nil, fmt.Errorf("%w: instance is not positioned at a checkpoint",
			models.ErrInvalidState)
	}
	if !node.Checkpoint.Allows(req.Action) {
		return nil, nil, fmt.Errorf("%w: %q is not allowed at checkpoint %q",
			models.ErrInvalidAction, req.Action, node.ID)
	}

	if req.Action == models.ActionEdit {
		mergeEditableFields(inst.StepData, req.UserData, node.Checkpoint.EditableFields)
	}
	inst.RecordAction(inst.CurrentNodeID, req.Action)

	ns := inst.NodeState(inst.CurrentNodeID)
	now := time.Now().UTC()
	if req.Action == models.ActionSkip {
		ns.Status = models.NodeSkipped
	} else {
		ns.Status = models.NodeCompleted
	}
	ns.CompletedAt = &now
	inst.Status = models.StatusRunning

	if err := e.store.SaveInstance(ctx, inst); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Another writer got there first. A cancelled or otherwise
			// terminal instance is no longer resumable.
			if stored, gerr := e.store.GetInstance(ctx, instanceID); gerr == nil && stored.Status.IsTerminal() {
				return nil, nil, fmt.Errorf("%w: instance is %s", models.ErrInvalidState, stored.Status)
			}
		}
		return nil, nil, err
	}

	e.emitter.Emit(ctx, models.NewEvent(models.EventStepComplete, inst.ID, node.ID, node.Name,
		models.StepCompleteData{Action: string(req.Action)}))
	e.logger.Info("checkpoint resolved",
		"instance_id", inst.ID, "node_id", node.ID, "action", req.Action)
	return inst, def, nil
}

// mergeEditableFields copies only the checkpoint's editable fields from
// the user payload into step data. Other keys are ignored.
func mergeEditableFields(stepData, userData map[string]any, editable []string) {
	for _, field := range editable {
		if v, ok := userData[field]; ok {
			stepData[field] = v
		}
	}
}

// Cancel moves an instance to cancelled. Cancellation wins over a
// concurrent drive loop: on a version conflict it reloads and reapplies.
// A terminal instance cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.forceStatus(ctx, instanceID, models.StatusCancelled, func(s models.InstanceStatus) error {
		if s.IsTerminal() {
			return fmt.Errorf("%w: instance is already %s", models.ErrInvalidState, s)
		}
		return nil
	})
}

// Pause moves a running instance to paused. The drive loop observes the
// pause as a version conflict at its next save and stops, discarding the
// in-flight node's result.
func (e *Engine) Pause(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.forceStatus(ctx, instanceID, models.StatusPaused, func(s models.InstanceStatus) error {
		if s != models.StatusRunning && s != models.StatusPending {
			return fmt.Errorf("%w: pause requires a running instance, status is %s",
				models.ErrInvalidState, s)
		}
		return nil
	})
}

// forceStatus applies a status transition with a reload-and-retry loop,
// so it wins any race with the drive loop's own saves.
func (e *Engine) forceStatus(ctx context.Context, instanceID string, target models.InstanceStatus, check func(models.InstanceStatus) error) (*models.WorkflowInstance, error) {
	for {
		inst, err := e.store.GetInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		if err := check(inst.Status); err != nil {
			return nil, err
		}

		inst.Status = target
		if target.IsTerminal() {
			now := time.Now().UTC()
			inst.CurrentNodeID = ""
			inst.CompletedAt = &now
		}
		err = e.store.SaveInstance(ctx, inst)
		if err == nil {
			if target == models.StatusCancelled {
				e.emitter.Emit(ctx, models.NewEvent(models.EventCancelled, inst.ID, "", "", nil))
			}
			e.logger.Info("instance status forced", "instance_id", inst.ID, "status", target)
			return inst, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
	}
}

// Continue picks a paused instance back up and drives it.
func (e *Engine) Continue(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.StatusPaused {
		return nil, fmt.Errorf("%w: continue requires a paused instance, status is %s",
			models.ErrInvalidState, inst.Status)
	}

	def, err := e.registry.Get(ctx, inst.WorkflowID)
	if err != nil {
		return nil, err
	}
	inst.Status = models.StatusRunning
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return nil, err
	}
	if err := e.drive(ctx, def, inst); err != nil {
		return inst, err
	}
	return inst, nil
}

// ContinueAsync resumes a paused instance and drives it on a goroutine.
func (e *Engine) ContinueAsync(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.StatusPaused {
		return nil, fmt.Errorf("%w: continue requires a paused instance, status is %s",
			models.ErrInvalidState, inst.Status)
	}

	def, err := e.registry.Get(ctx, inst.WorkflowID)
	if err != nil {
		return nil, err
	}
	inst.Status = models.StatusRunning
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return nil, err
	}

	snapshot := inst.Clone()
	go e.driveDetached(def, inst)
	return snapshot, nil
}

// State returns a point-in-time copy of an instance.
func (e *Engine) State(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.store.GetInstance(ctx, instanceID)
}

// List returns instances matching the given options.
func (e *Engine) List(ctx context.Context, opts repository.InstanceListOpts) ([]*models.WorkflowInstance, error) {
	return e.store.ListInstances(ctx, opts)
}

// Recover re-drives instances that a previous process left in flight,
// picking each up from its last persisted node. That covers instances
// persisted as running, and instances still pending because the process
// died before their drive goroutine ran. Execute nodes are
// at-least-once, so re-running the interrupted node is safe.
func (e *Engine) Recover(ctx context.Context) error {
	var instances []*models.WorkflowInstance
	for _, status := range []models.InstanceStatus{models.StatusRunning, models.StatusPending} {
		batch, err := e.store.ListInstances(ctx, repository.InstanceListOpts{Status: status})
		if err != nil {
			return fmt.Errorf("list %s instances: %w", status, err)
		}
		instances = append(instances, batch...)
	}

	for _, inst := range instances {
		def, err := e.registry.Get(ctx, inst.WorkflowID)
		if err != nil {
			e.logger.Error("cannot recover instance, definition missing",
				"instance_id", inst.ID, "definition_id", inst.WorkflowID, "error", err)
			continue
		}
		e.logger.Info("recovering instance",
			"instance_id", inst.ID, "node_id", inst.CurrentNodeID)
		go e.driveDetached(def, inst)
	}
	return nil
}

// driveDetached runs the drive loop outside the request context. Errors
// are already reflected in persisted instance state and events, so they
// are only logged here.
func (e *Engine) driveDetached(def *models.GraphDefinition, inst *models.WorkflowInstance) {
	ctx := context.Background()
	if err := e.drive(ctx, def, inst); err != nil {
		e.logger.Error("detached drive stopped",
			"instance_id", inst.ID, "error", err)
	}
}
