package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/events"
	"github.com/thismatters/django-operator/internal/k8sclient"
	"github.com/thismatters/django-operator/internal/pipeline"
	"github.com/thismatters/django-operator/internal/pipeline/steps"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unstructuredDjango(name, namespace string, created map[string]map[string]string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion(djangov1alpha.Group + "/" + djangov1alpha.Version)
	u.SetKind(djangov1alpha.Kind)
	u.SetName(name)
	u.SetNamespace(namespace)
	u.SetLabels(map[string]string{djangov1alpha.MigrationStepLabel: pipeline.ReadyLabel})

	status := map[string]any{}
	if created != nil {
		createdAny := map[string]any{}
		for kind, byPurpose := range created {
			inner := map[string]any{}
			for purpose, name := range byPurpose {
				inner[purpose] = name
			}
			createdAny[kind] = inner
		}
		status["created"] = createdAny
	}
	u.Object["status"] = status
	return u
}

func newDaemon(t *testing.T, djangoObjs []runtime.Object, k8sObjs []runtime.Object) (*Daemon, *dynamicfake.FakeDynamicClient) {
	t.Helper()
	scheme := runtime.NewScheme()
	dynClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
		map[schema.GroupVersionResource]string{
			k8sclient.DjangoGVR: djangov1alpha.ListKind,
		},
		djangoObjs...,
	)
	k8sClient := k8sfake.NewSimpleClientset(k8sObjs...)

	d := &Daemon{
		Client:    k8sclient.NewDjangoClient(dynClient),
		Resources: resourceservice.New(k8sClient, testLogger()),
		Pipeline:  pipeline.New(steps.All()),
		Events:    events.New(k8sClient, testLogger()),
		Interval:  time.Second,
		Logger:    testLogger(),
	}
	return d, dynClient
}

func deployment(name, namespace string) *appsv1.Deployment {
	return &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace}}
}

func TestSweepNoDriftWhenAllResourcesPresent(t *testing.T) {
	created := map[string]map[string]string{"deployment": {"app": "demo-app-1-0-0"}}
	django := unstructuredDjango("demo", "ns", created)
	d, _ := newDaemon(t, []runtime.Object{django}, []runtime.Object{deployment("demo-app-1-0-0", "ns")})

	drifted, err := d.sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drifted {
		t.Error("expected no drift when every inventoried resource is present")
	}
}

func TestSweepDetectsDriftOnMissingResource(t *testing.T) {
	created := map[string]map[string]string{"deployment": {"app": "demo-app-1-0-0"}}
	django := unstructuredDjango("demo", "ns", created)
	d, dynClient := newDaemon(t, []runtime.Object{django}, nil)

	drifted, err := d.sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drifted {
		t.Fatal("expected drift when an inventoried deployment is missing")
	}

	updated, err := k8sclient.NewDjangoClient(dynClient).Get(context.Background(), "ns", "demo")
	if err != nil {
		t.Fatalf("fetching updated django: %v", err)
	}
	if updated.Labels[djangov1alpha.MigrationStepLabel] == pipeline.ReadyLabel {
		t.Error("expected migration-step label to advance off ready after re-initiate")
	}
	if updated.Status.Condition != djangov1alpha.ConditionMigrating {
		t.Errorf("expected condition migrating, got %s", updated.Status.Condition)
	}
}

func TestSweepDetectsDriftOnDeletionTimestamp(t *testing.T) {
	created := map[string]map[string]string{"deployment": {"app": "demo-app-1-0-0"}}
	django := unstructuredDjango("demo", "ns", created)
	dep := deployment("demo-app-1-0-0", "ns")
	now := metav1.NewTime(metav1.Now().Time)
	dep.DeletionTimestamp = &now
	dep.Finalizers = []string{djangov1alpha.ProtectorFinalizer}
	d, _ := newDaemon(t, []runtime.Object{django}, []runtime.Object{dep})

	drifted, err := d.sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drifted {
		t.Fatal("expected drift when an inventoried deployment carries a deletionTimestamp")
	}
}

func TestSweepIgnoresDjangoWithEmptyInventory(t *testing.T) {
	django := unstructuredDjango("demo", "ns", nil)
	d, _ := newDaemon(t, []runtime.Object{django}, nil)

	drifted, err := d.sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drifted {
		t.Error("expected no drift for a django with nothing inventoried yet")
	}
}
