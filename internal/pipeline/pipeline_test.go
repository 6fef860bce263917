package pipeline

import (
	"context"
	"testing"
	"time"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
)

type fakeStep struct {
	name    string
	outcome Outcome
}

func (f fakeStep) Name() string                                { return f.name }
func (f fakeStep) Handle(context.Context, *Context) Outcome { return f.outcome }

func testDjango() *djangov1alpha.Django {
	return &djangov1alpha.Django{
		Spec: djangov1alpha.DjangoSpec{Version: "1.0.0"},
	}
}

func TestHandleInitiateSkipsWhenDiffDoesNotTouchSpec(t *testing.T) {
	p := New([]Step{fakeStep{name: "start-mgmt"}})
	django := testDjango()

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != "" || len(res.StatusPatch) != 0 {
		t.Errorf("expected no-op result, got %+v", res)
	}
}

func TestHandleInitiateStartsPipeline(t *testing.T) {
	p := New([]Step{fakeStep{name: "start-mgmt"}, fakeStep{name: "await-mgmt"}})
	django := testDjango()

	res, err := p.Handle(context.Background(), nil, django, true, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != "start-mgmt" {
		t.Errorf("expected label start-mgmt, got %s", res.Label)
	}
	if res.StatusPatch["condition"] != djangov1alpha.ConditionMigrating {
		t.Errorf("expected condition migrating, got %v", res.StatusPatch["condition"])
	}
	if !res.ResetContext {
		t.Errorf("expected ResetContext true")
	}
	if res.Event == nil || res.Event.Reason != "Migrating" {
		t.Errorf("expected Migrating event, got %+v", res.Event)
	}
}

func TestHandleStepReturnAdvancesLabel(t *testing.T) {
	p := New([]Step{
		fakeStep{name: "start-mgmt", outcome: Return(map[string]any{"mgmt_pod_name": "demo-migrate-1-0-0"})},
		fakeStep{name: "await-mgmt"},
	})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: "start-mgmt"}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != "await-mgmt" {
		t.Errorf("expected label await-mgmt, got %s", res.Label)
	}
	pipeline, ok := res.StatusPatch["migration_pipeline"].(map[string]any)
	if !ok || pipeline["mgmt_pod_name"] != "demo-migrate-1-0-0" {
		t.Errorf("expected mgmt_pod_name merged into migration_pipeline, got %v", res.StatusPatch)
	}
}

func TestHandleStepPromotesStatusPrefixedKeys(t *testing.T) {
	p := New([]Step{
		fakeStep{name: "await-mgmt", outcome: Return(map[string]any{"status:migrationVersion": "1.0.0"})},
		fakeStep{name: "start-app"},
	})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: "await-mgmt"}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusPatch["migrationVersion"] != "1.0.0" {
		t.Errorf("expected migrationVersion promoted to status patch, got %v", res.StatusPatch)
	}
	if _, present := res.StatusPatch["migration_pipeline"].(map[string]any)["migrationVersion"]; present {
		t.Errorf("migrationVersion must not also appear in migration_pipeline")
	}
}

func TestHandleStepTemporaryReturnsDelay(t *testing.T) {
	p := New([]Step{fakeStep{name: "await-mgmt", outcome: Temporary(5 * time.Second)}})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: "await-mgmt"}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Delay == nil || *res.Delay != 5*time.Second {
		t.Errorf("expected 5s delay, got %v", res.Delay)
	}
}

func TestHandleStepPermanentDegrades(t *testing.T) {
	p := New([]Step{fakeStep{name: "await-mgmt", outcome: Permanent(errBoom)}})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: "await-mgmt"}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err == nil {
		t.Fatalf("expected error propagated")
	}
	if res.StatusPatch["condition"] != djangov1alpha.ConditionDegraded {
		t.Errorf("expected degraded condition, got %v", res.StatusPatch)
	}
}

func TestHandleFinalizeRunningWhenComplete(t *testing.T) {
	p := New([]Step{fakeStep{name: "start-mgmt"}})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: DoneLabel}
	django.Status.PipelineSpec = &django.Spec
	django.Status.MigrationPipeline = map[string]any{"migration_complete": true}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != ReadyLabel {
		t.Errorf("expected label ready, got %s", res.Label)
	}
	if res.StatusPatch["condition"] != djangov1alpha.ConditionRunning {
		t.Errorf("expected running condition, got %v", res.StatusPatch)
	}
	if _, present := res.StatusPatch["pipelineSpec"]; !present || res.StatusPatch["pipelineSpec"] != nil {
		t.Errorf("expected pipelineSpec cleared to nil, got %v", res.StatusPatch["pipelineSpec"])
	}
}

func TestHandleFinalizeDegradesWhenIncomplete(t *testing.T) {
	p := New([]Step{fakeStep{name: "start-mgmt"}})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: DoneLabel}
	django.Status.PipelineSpec = &django.Spec
	django.Status.MigrationPipeline = map[string]any{"migration_complete": false}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusPatch["condition"] != djangov1alpha.ConditionDegraded {
		t.Errorf("expected degraded condition, got %v", res.StatusPatch)
	}
}

func TestHandleFinalizeRestartsOnSpecDrift(t *testing.T) {
	p := New([]Step{fakeStep{name: "start-mgmt"}})
	django := testDjango()
	django.Labels = map[string]string{djangov1alpha.MigrationStepLabel: DoneLabel}
	snapshot := djangov1alpha.DjangoSpec{Version: "0.9.0"}
	django.Status.PipelineSpec = &snapshot
	django.Status.MigrationPipeline = map[string]any{"migration_complete": true}

	res, err := p.Handle(context.Background(), nil, django, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != "start-mgmt" {
		t.Errorf("expected restart to first step, got %s", res.Label)
	}
	if !res.ResetContext {
		t.Errorf("expected ResetContext true on restart")
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
