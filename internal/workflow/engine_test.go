package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/internal/services"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// stubExecutor counts calls per goal and delegates to fn when set.
type stubExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(goal string, inputs map[string]any) (*services.TaskResult, error)
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{calls: make(map[string]int)}
}

func (s *stubExecutor) ExecuteNode(_ context.Context, goal string, inputs map[string]any, _ []string) (*services.TaskResult, error) {
	s.mu.Lock()
	s.calls[goal]++
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(goal, inputs)
	}
	return &services.TaskResult{Data: "done:" + goal}, nil
}

func (s *stubExecutor) callCount(goal string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[goal]
}

// captureEmitter records every event in order.
type captureEmitter struct {
	mu     sync.Mutex
	events []*models.WorkflowEvent
}

func (c *captureEmitter) Emit(_ context.Context, evt *models.WorkflowEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) types() []models.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EventType, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Type
	}
	return out
}

func newTestEngine(exec services.TaskExecutor, opts Options) (*Engine, *Registry, repository.Store, *captureEmitter) {
	store := repository.NewMemoryStore()
	registry := NewRegistry(store)
	emitter := &captureEmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(store, registry, exec, emitter, logger, opts)
	return engine, registry, store, emitter
}

func fastOptions() Options {
	return Options{MaxSteps: 50, MaxRetries: 3, RetryInitialInterval: time.Millisecond}
}

func linearDefinition() *models.GraphDefinition {
	return &models.GraphDefinition{
		Name:      "linear",
		EntryNode: "fetch",
		InputSchema: map[string]models.FieldSpec{
			"topic": {Type: models.FieldTypeString, Required: true},
		},
		Nodes: map[string]models.NodeDefinition{
			"fetch":     {ID: "fetch", Name: "Fetch", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "fetch", InputFields: []string{"topic"}, OutputField: "fetched"}},
			"summarize": {ID: "summarize", Name: "Summarize", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "summarize", InputFields: []string{"fetched"}, OutputField: "summary"}},
		},
		Edges: []models.EdgeDefinition{
			{From: "fetch", To: "summarize"},
		},
	}
}

// reviewDefinition is draft -> review checkpoint, then publish on
// anything but reject, revise on reject.
func reviewDefinition(actions ...models.CheckpointAction) *models.GraphDefinition {
	if len(actions) == 0 {
		actions = []models.CheckpointAction{models.ActionApprove, models.ActionEdit, models.ActionReject, models.ActionSkip}
	}
	return &models.GraphDefinition{
		Name:      "review",
		EntryNode: "draft",
		Nodes: map[string]models.NodeDefinition{
			"draft": {ID: "draft", Name: "Draft", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "draft", OutputField: "draft_text"}},
			"review": {ID: "review", Name: "Review", Kind: models.NodeKindCheckpoint, Checkpoint: &models.CheckpointSpec{
				Title:          "Review the draft",
				AllowedActions: actions,
				EditableFields: []string{"draft_text"},
			}},
			"publish": {ID: "publish", Name: "Publish", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "publish", InputFields: []string{"draft_text"}, OutputField: "published"}},
			"revise":  {ID: "revise", Name: "Revise", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "revise", OutputField: "revised"}},
		},
		Edges: []models.EdgeDefinition{
			{From: "draft", To: "review"},
			{From: "review", To: "revise", ConditionExpr: `last_action == "reject"`},
			{From: "review", To: "publish"},
		},
	}
}

func mustRegister(t *testing.T, registry *Registry, def *models.GraphDefinition) *models.GraphDefinition {
	t.Helper()
	published, err := registry.Register(context.Background(), def)
	require.NoError(t, err)
	return published
}

func TestStartRunsLinearGraphToCompletion(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, _, emitter := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	inst, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Empty(t, inst.CurrentNodeID)
	assert.Equal(t, "done:fetch", inst.StepData["fetched"])
	assert.Equal(t, "done:summarize", inst.StepData["summary"])
	assert.NotNil(t, inst.CompletedAt)
	assert.Equal(t, 1, inst.NodeState("fetch").ExecutionCount)
	assert.Equal(t, 1, inst.NodeState("summarize").ExecutionCount)

	assert.Equal(t, []models.EventType{
		models.EventStepStart, models.EventStepComplete,
		models.EventStepStart, models.EventStepComplete,
		models.EventComplete,
	}, emitter.types())
}

func TestStartRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	engine, registry, store, _ := newTestEngine(newStubExecutor(), fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	_, err := engine.Start(ctx, def.ID, map[string]any{"topic": 42}, nil)
	var verr *models.SchemaValidationError
	require.ErrorAs(t, err, &verr)

	instances, err := store.ListInstances(ctx, repository.InstanceListOpts{})
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestStartSuspendsAtCheckpoint(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, _, emitter := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	inst, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusWaiting, inst.Status)
	assert.Equal(t, "review", inst.CurrentNodeID)
	assert.Equal(t, models.NodeWaiting, inst.NodeState("review").Status)
	assert.Equal(t, 0, exec.callCount("publish"))

	types := emitter.types()
	require.NotEmpty(t, types)
	assert.Equal(t, models.EventCheckpoint, types[len(types)-1])
}

func TestResumeApprove(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	inst, err := engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionApprove})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, "approve", inst.StepData[models.StepDataLastAction])
	assert.Equal(t, 1, exec.callCount("publish"))
	assert.Equal(t, 0, exec.callCount("revise"))
	assert.Equal(t, 0, inst.NodeState("revise").ExecutionCount)
}

func TestResumeRejectTakesRejectEdge(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	inst, err := engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionReject})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, 1, inst.NodeState("revise").ExecutionCount)
	assert.Equal(t, 0, inst.NodeState("publish").ExecutionCount)
	assert.Equal(t, 0, exec.callCount("publish"))
}

func TestResumeEditMergesOnlyEditableFields(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()

	var publishInputs map[string]any
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		if goal == "publish" {
			publishInputs = inputs
		}
		return &services.TaskResult{Data: "done:" + goal}, nil
	}

	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	inst, err := engine.Resume(ctx, started.ID, models.ResumeRequest{
		Action: models.ActionEdit,
		UserData: map[string]any{
			"draft_text": "edited text",
			"rogue":      "ignored",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, "edited text", inst.StepData["draft_text"])
	assert.NotContains(t, inst.StepData, "rogue")
	require.NotNil(t, publishInputs)
	assert.Equal(t, "edited text", publishInputs["draft_text"])
}

func TestResumeSkipMarksNodeSkipped(t *testing.T) {
	ctx := context.Background()
	engine, registry, _, _ := newTestEngine(newStubExecutor(), fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	inst, err := engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionSkip})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, models.NodeSkipped, inst.NodeState("review").Status)
}

func TestResumeDisallowedActionLeavesInstanceWaiting(t *testing.T) {
	ctx := context.Background()
	engine, registry, _, _ := newTestEngine(newStubExecutor(), fastOptions())
	def := mustRegister(t, registry, reviewDefinition(models.ActionApprove, models.ActionReject))

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	_, err = engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionSkip})
	assert.ErrorIs(t, err, models.ErrInvalidAction)

	current, err := engine.State(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, current.Status)
	assert.Equal(t, started.Version, current.Version)
}

func TestResumeIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, registry, _, _ := newTestEngine(newStubExecutor(), fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	_, err = engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionApprove})
	require.NoError(t, err)

	_, err = engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionApprove})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestCancelledInstanceCannotBeResumed(t *testing.T) {
	ctx := context.Background()
	engine, registry, _, emitter := newTestEngine(newStubExecutor(), fastOptions())
	def := mustRegister(t, registry, reviewDefinition())

	started, err := engine.Start(ctx, def.ID, nil, nil)
	require.NoError(t, err)

	cancelled, err := engine.Cancel(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.CurrentNodeID)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.Contains(t, emitter.types(), models.EventCancelled)

	_, err = engine.Resume(ctx, started.ID, models.ResumeRequest{Action: models.ActionApprove})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// Cancelling again is rejected too.
	_, err = engine.Cancel(ctx, started.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestCancelDuringExecuteDiscardsLateWriteBack(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, store, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	// The executor cancels the instance mid-node, like an operator
	// hitting cancel while the task runs. The node's write-back must
	// lose to the cancellation.
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		running, lerr := store.ListInstances(ctx, repository.InstanceListOpts{Status: models.StatusRunning})
		if lerr == nil && len(running) == 1 {
			if _, cerr := engine.Cancel(ctx, running[0].ID); cerr != nil {
				return nil, cerr
			}
		}
		return &services.TaskResult{Data: "late result"}, nil
	}

	started, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.NoError(t, err)

	final, err := engine.State(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, final.Status)
	assert.NotContains(t, final.StepData, "fetched")
	assert.Equal(t, 1, exec.callCount("fetch"))
	assert.Equal(t, 0, exec.callCount("summarize"))
}

func TestPauseAndContinue(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, store, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	paused := false
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		if goal == "fetch" && !paused {
			paused = true
			running, lerr := store.ListInstances(ctx, repository.InstanceListOpts{Status: models.StatusRunning})
			if lerr == nil && len(running) == 1 {
				if _, perr := engine.Pause(ctx, running[0].ID); perr != nil {
					return nil, perr
				}
			}
		}
		return &services.TaskResult{Data: "done:" + goal}, nil
	}

	started, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.NoError(t, err)

	mid, err := engine.State(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, mid.Status)
	assert.NotContains(t, mid.StepData, "fetched")

	final, err := engine.Continue(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, "done:fetch", final.StepData["fetched"])
	// The interrupted node ran again, execute nodes are at-least-once.
	assert.Equal(t, 2, exec.callCount("fetch"))
}

func TestTransientFailuresAreRetried(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	attempts := 0
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		if goal == "fetch" {
			attempts++
			if attempts < 3 {
				return nil, &services.TransientError{Err: errors.New("executor overloaded")}
			}
		}
		return &services.TaskResult{Data: "done:" + goal}, nil
	}

	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	inst, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, 3, attempts)
	// One logical execution regardless of retries.
	assert.Equal(t, 1, inst.NodeState("fetch").ExecutionCount)
}

func TestPermanentFailureFailsInstance(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		return nil, errors.New("bad goal")
	}

	engine, registry, _, emitter := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	inst, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.Error(t, err)

	assert.Equal(t, models.StatusFailed, inst.Status)
	assert.Empty(t, inst.CurrentNodeID)
	assert.Contains(t, inst.Error, "bad goal")
	assert.Equal(t, models.NodeFailed, inst.NodeState("fetch").Status)
	assert.Equal(t, 1, exec.callCount("fetch"))
	assert.Contains(t, emitter.types(), models.EventError)
}

func TestErrorRecoveryEdge(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		if goal == "fragile" {
			return nil, errors.New("boom")
		}
		return &services.TaskResult{Data: "done:" + goal}, nil
	}

	def := &models.GraphDefinition{
		Name:      "recovery",
		EntryNode: "fragile",
		Nodes: map[string]models.NodeDefinition{
			"fragile": {ID: "fragile", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "fragile", OutputField: "out"}},
			"cleanup": {ID: "cleanup", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "cleanup", OutputField: "cleaned"}},
			"finish":  {ID: "finish", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "finish", OutputField: "finished"}},
		},
		Edges: []models.EdgeDefinition{
			{From: "fragile", To: "cleanup", ConditionExpr: `last_error != nil`},
			{From: "fragile", To: "finish"},
		},
	}

	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	published := mustRegister(t, registry, def)

	inst, err := engine.Start(ctx, published.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, models.NodeFailed, inst.NodeState("fragile").Status)
	assert.Equal(t, "done:cleanup", inst.StepData["cleaned"])
	assert.Equal(t, 0, exec.callCount("finish"))
}

func TestRecoveryCycleIsBoundedByStepGuard(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		if goal == "flaky" {
			return nil, errors.New("boom")
		}
		return &services.TaskResult{Data: "done:" + goal}, nil
	}

	// The recovery edge loops back through cleanup to the failing node,
	// so every pass burns steps without ever reaching the fallback.
	def := &models.GraphDefinition{
		Name:      "recovery-loop",
		EntryNode: "flaky",
		Nodes: map[string]models.NodeDefinition{
			"flaky":   {ID: "flaky", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "flaky", OutputField: "out"}},
			"cleanup": {ID: "cleanup", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "cleanup", OutputField: "cleaned"}},
			"done":    {ID: "done", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "done", OutputField: "finished"}},
		},
		Edges: []models.EdgeDefinition{
			{From: "flaky", To: "cleanup", ConditionExpr: `last_error != nil`},
			{From: "flaky", To: "done"},
			{From: "cleanup", To: "flaky"},
		},
	}

	opts := fastOptions()
	opts.MaxSteps = 5

	engine, registry, _, _ := newTestEngine(exec, opts)
	published := mustRegister(t, registry, def)

	inst, err := engine.Start(ctx, published.ID, nil, nil)
	require.Error(t, err)

	var designErr *models.GraphDesignError
	assert.ErrorAs(t, err, &designErr)
	assert.Equal(t, models.StatusFailed, inst.Status)
	assert.LessOrEqual(t, exec.callCount("flaky"), opts.MaxSteps)
	assert.LessOrEqual(t, exec.callCount("cleanup"), opts.MaxSteps)
	assert.Equal(t, 0, exec.callCount("done"))
}

func TestAutoProceedCheckpoint(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	def := reviewDefinition()
	node := def.Nodes["review"]
	node.Checkpoint.AutoProceed = true
	def.Nodes["review"] = node

	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	published := mustRegister(t, registry, def)

	inst, err := engine.Start(ctx, published.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, inst.Status)
	assert.Equal(t, "approve", inst.StepData[models.StepDataLastAction])
	assert.Equal(t, 1, exec.callCount("publish"))
}

func TestRunawayGraphIsCutOff(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()

	// An auto-approved checkpoint looping back to the execute node spins
	// forever without the step guard.
	def := &models.GraphDefinition{
		Name:      "runaway",
		EntryNode: "work",
		Nodes: map[string]models.NodeDefinition{
			"work": {ID: "work", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "work", OutputField: "out"}},
			"gate": {ID: "gate", Kind: models.NodeKindCheckpoint, Checkpoint: &models.CheckpointSpec{
				Title:          "gate",
				AllowedActions: []models.CheckpointAction{models.ActionApprove},
				AutoProceed:    true,
			}},
		},
		Edges: []models.EdgeDefinition{
			{From: "work", To: "gate"},
			{From: "gate", To: "work"},
		},
	}

	opts := fastOptions()
	opts.MaxSteps = 10

	engine, registry, _, _ := newTestEngine(exec, opts)
	published := mustRegister(t, registry, def)

	inst, err := engine.Start(ctx, published.ID, nil, nil)
	require.Error(t, err)

	var designErr *models.GraphDesignError
	assert.ErrorAs(t, err, &designErr)
	assert.Equal(t, models.StatusFailed, inst.Status)
}

func TestRecoverPicksUpPendingInstances(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	engine, registry, store, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	// An instance persisted as pending by a process that died before its
	// drive goroutine ever ran.
	inst := models.NewInstance(def, map[string]any{"topic": "go"}, nil)
	inst.CurrentNodeID = def.EntryNode
	require.NoError(t, store.CreateInstance(ctx, inst))

	require.NoError(t, engine.Recover(ctx))

	require.Eventually(t, func() bool {
		current, err := engine.State(ctx, inst.ID)
		return err == nil && current.Status == models.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, exec.callCount("fetch"))
	assert.Equal(t, 1, exec.callCount("summarize"))
}

func TestExecutionIsDeterministic(t *testing.T) {
	ctx := context.Background()
	exec := newStubExecutor()
	exec.fn = func(goal string, inputs map[string]any) (*services.TaskResult, error) {
		return &services.TaskResult{Data: fmt.Sprintf("%s(%v)", goal, inputs["topic"])}, nil
	}

	engine, registry, _, _ := newTestEngine(exec, fastOptions())
	def := mustRegister(t, registry, linearDefinition())

	first, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.NoError(t, err)
	second, err := engine.Start(ctx, def.ID, map[string]any{"topic": "go"}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.StepData, second.StepData)
	assert.Equal(t, first.Status, second.Status)
}
