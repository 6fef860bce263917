package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/djangoreconciler"
	"github.com/thismatters/django-operator/internal/pathmap"
)

// statusKeyPrefix marks a step-return key as a direct DjangoStatus field
// (e.g. "status:migrationVersion", "status:version", "status:created")
// rather than an entry in the migration_pipeline accumulator. Every
// other key in a step's returned patch is folded into migration_pipeline.
const statusKeyPrefix = "status:"

// ReadyLabel and DoneLabel are the two reserved migration-step tokens
// flanking the ordered step list.
const (
	ReadyLabel = "ready"
	DoneLabel  = "done"
)

// Event is an emission request the caller turns into a
// record.EventRecorder call; the pipeline itself never touches the
// Kubernetes API.
type Event struct {
	Reason  string
	Message string
	Warning bool
}

// HandleResult is everything one Handle call produced: the status
// fields to patch, an optional new migration-step label, an optional
// reschedule delay (temporary outcome), and an optional event to emit.
//
// ResetContext requests that status.migration_pipeline be cleared
// before StatusPatch["migration_pipeline"] is applied. A JSON merge
// patch recursively merges object values rather than replacing them, so
// clearing a stale accumulator requires nulling the field in one PATCH
// call before setting its fresh value in the next — the same
// two-call-subresource discipline internal/k8sclient already uses for
// status-then-labels.
type HandleResult struct {
	StatusPatch  map[string]any
	Label        string
	Delay        *time.Duration
	Event        *Event
	ResetContext bool
}

// Pipeline is an ordered list of steps plus the engine that dispatches
// on the current migration-step label.
type Pipeline struct {
	steps []Step
}

// New builds a Pipeline over steps in execution order.
func New(steps []Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// FirstStepName is the label value handle_initiate sets to start a run.
func (p *Pipeline) FirstStepName() string {
	if len(p.steps) == 0 {
		return DoneLabel
	}
	return p.steps[0].Name()
}

func (p *Pipeline) nextLabel(current string) string {
	for i, s := range p.steps {
		if s.Name() == current {
			if i+1 < len(p.steps) {
				return p.steps[i+1].Name()
			}
			return DoneLabel
		}
	}
	return DoneLabel
}

func (p *Pipeline) findStep(name string) Step {
	for _, s := range p.steps {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Handle dispatches one event for django: ready starts a new migration
// if the diff touched anything beyond metadata, done finalizes (or
// restarts on spec drift, or degrades), and any step name runs that step
// and advances the label on a return outcome. retry is the caller's own
// per-key count of reschedules for the current key, threaded into the
// step's Context so
// Await/Timeout can enforce the iteration cap; it is ignored outside the
// step-dispatch branch.
func (p *Pipeline) Handle(ctx context.Context, r *djangoreconciler.DjangoReconciler, django *djangov1alpha.Django, diffTouchesSpec bool, retry int) (*HandleResult, error) {
	label := django.Labels[djangov1alpha.MigrationStepLabel]
	if label == "" {
		label = ReadyLabel
	}

	switch label {
	case ReadyLabel:
		return p.handleInitiate(django, diffTouchesSpec), nil
	case DoneLabel:
		return p.handleFinalize(django), nil
	default:
		return p.handleStep(ctx, r, django, label, retry)
	}
}

func (p *Pipeline) handleInitiate(django *djangov1alpha.Django, diffTouchesSpec bool) *HandleResult {
	if !diffTouchesSpec {
		return &HandleResult{}
	}
	snapshot := django.Spec
	return &HandleResult{
		StatusPatch: map[string]any{
			"pipelineSpec": &snapshot,
			"condition":    djangov1alpha.ConditionMigrating,
		},
		Label:        p.FirstStepName(),
		ResetContext: true,
		Event: &Event{
			Reason:  "Migrating",
			Message: fmt.Sprintf("migration to version %s initiated", django.Spec.Version),
		},
	}
}

func (p *Pipeline) handleFinalize(django *djangov1alpha.Django) *HandleResult {
	snapshot := django.Status.PipelineSpec
	if snapshot != nil && !reflect.DeepEqual(*snapshot, django.Spec) {
		liveSpec := django.Spec
		return &HandleResult{
			StatusPatch: map[string]any{
				"pipelineSpec": &liveSpec,
			},
			Label:        p.FirstStepName(),
			ResetContext: true,
			Event: &Event{
				Reason:  "Migrating",
				Message: "spec changed during migration, restarting",
			},
		}
	}

	complete, _ := django.Status.MigrationPipeline["migration_complete"].(bool)
	if complete {
		return &HandleResult{
			StatusPatch: map[string]any{
				"condition":    djangov1alpha.ConditionRunning,
				"version":      django.Spec.Version,
				"pipelineSpec": nil,
			},
			Label: ReadyLabel,
			Event: &Event{Reason: "Ready", Message: "migration complete"},
		}
	}

	return &HandleResult{
		StatusPatch: map[string]any{"condition": djangov1alpha.ConditionDegraded},
	}
}

func (p *Pipeline) handleStep(ctx context.Context, r *djangoreconciler.DjangoReconciler, django *djangov1alpha.Django, label string, retry int) (*HandleResult, error) {
	step := p.findStep(label)
	if step == nil {
		return nil, fmt.Errorf("no step named %q in pipeline", label)
	}

	spec := django.Spec
	if django.Status.PipelineSpec != nil {
		spec = *django.Status.PipelineSpec
	}

	pctx := &Context{
		Values:           django.Status.MigrationPipeline,
		Retry:            retry,
		Spec:             spec,
		MigrationVersion: django.Status.MigrationVersion,
		Reconciler:       r,
	}

	outcome := step.Handle(ctx, pctx)
	switch outcome.Kind {
	case OutcomeReturn:
		contextPatch := map[string]any{}
		statusPatch := map[string]any{}
		for k, v := range outcome.Patch {
			if rest, ok := strings.CutPrefix(k, statusKeyPrefix); ok {
				statusPatch[rest] = v
				continue
			}
			contextPatch[k] = v
		}
		merged, err := pathmap.Merge(orEmpty(pctx.Values), contextPatch)
		if err != nil {
			return nil, fmt.Errorf("merging %s step return into context: %w", label, err)
		}
		statusPatch["migration_pipeline"] = merged
		return &HandleResult{
			StatusPatch: statusPatch,
			Label:       p.nextLabel(label),
		}, nil
	case OutcomePermanent:
		return &HandleResult{
			StatusPatch: map[string]any{"condition": djangov1alpha.ConditionDegraded},
		}, outcome.Err
	case OutcomeTemporary:
		delay := outcome.Delay
		return &HandleResult{Delay: &delay}, nil
	default:
		return nil, fmt.Errorf("step %q returned unknown outcome kind %v", label, outcome.Kind)
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
