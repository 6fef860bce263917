package resourceservice

import (
	"context"
	"io"
	"log/slog"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOwner() *djangov1alpha.Django {
	return &djangov1alpha.Django{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "blog",
			Namespace: "apps",
			UID:       "abc-123",
			Labels:    map[string]string{"app": "blog", djangov1alpha.MigrationStepLabel: "await-app"},
		},
	}
}

func deploymentBody(name string) map[string]any {
	return map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   map[string]any{"name": name},
		"spec": map[string]any{
			"replicas": float64(1),
			"template": map[string]any{
				"spec": map[string]any{
					"containers": []any{
						map[string]any{"name": "app", "image": "blog:1"},
					},
				},
			},
		},
	}
}

func TestEnsureCreatesWhenAbsent(t *testing.T) {
	client := k8sfake.NewSimpleClientset()
	svc := New(client, testLogger())
	owner := testOwner()

	obj, err := svc.Ensure(context.Background(), EnsureOptions{
		Kind:   KindDeployment,
		Name:   "blog-app",
		Owner:  owner,
		Body:   deploymentBody("blog-app"),
		Labels: map[string]string{"purpose": "app"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dep, ok := obj.(*appsv1.Deployment)
	if !ok {
		t.Fatalf("expected *appsv1.Deployment, got %T", obj)
	}
	if dep.Labels["purpose"] != "app" {
		t.Errorf("expected purpose label stamped, got %v", dep.Labels)
	}
	if dep.Labels["app"] != "blog" {
		t.Errorf("expected owner label propagated, got %v", dep.Labels)
	}
	if _, present := dep.Labels[djangov1alpha.MigrationStepLabel]; present {
		t.Errorf("migration-step label must not propagate to children, got %v", dep.Labels)
	}
	if len(dep.OwnerReferences) != 1 || dep.OwnerReferences[0].Name != "blog" {
		t.Errorf("expected owner reference to blog, got %v", dep.OwnerReferences)
	}
	found := false
	for _, f := range dep.Finalizers {
		if f == djangov1alpha.ProtectorFinalizer {
			found = true
		}
	}
	if !found {
		t.Errorf("expected protector finalizer, got %v", dep.Finalizers)
	}
}

func TestEnsurePatchesWhenPresent(t *testing.T) {
	owner := testOwner()
	existing := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "blog-app", Namespace: "apps"},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(1),
		},
	}
	client := k8sfake.NewSimpleClientset(existing)
	svc := New(client, testLogger())

	body := deploymentBody("blog-app")
	body["spec"].(map[string]any)["replicas"] = float64(3)

	obj, err := svc.Ensure(context.Background(), EnsureOptions{
		Kind:  KindDeployment,
		Name:  "blog-app",
		Owner: owner,
		Body:  body,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dep := obj.(*appsv1.Deployment)
	if dep.Spec.Replicas == nil || *dep.Spec.Replicas != 3 {
		t.Errorf("expected replicas patched to 3, got %v", dep.Spec.Replicas)
	}
}

func TestEnsureDeleteStripsFinalizerAndDeletes(t *testing.T) {
	owner := testOwner()
	existing := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:       "blog-app",
			Namespace:  "apps",
			Finalizers: []string{djangov1alpha.ProtectorFinalizer},
		},
	}
	client := k8sfake.NewSimpleClientset(existing)
	svc := New(client, testLogger())

	obj, err := svc.Ensure(context.Background(), EnsureOptions{
		Kind:   KindDeployment,
		Name:   "blog-app",
		Owner:  owner,
		Delete: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj != nil {
		t.Errorf("expected nil object on delete, got %v", obj)
	}
	if _, err := client.AppsV1().Deployments("apps").Get(context.Background(), "blog-app", metav1.GetOptions{}); err == nil {
		t.Errorf("expected deployment to be gone")
	}
}

func TestEnsureDeleteNoOpWhenAbsent(t *testing.T) {
	client := k8sfake.NewSimpleClientset()
	svc := New(client, testLogger())
	owner := testOwner()

	obj, err := svc.Ensure(context.Background(), EnsureOptions{
		Kind:   KindDeployment,
		Name:   "blog-app",
		Owner:  owner,
		Delete: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj != nil {
		t.Errorf("expected nil object for no-op delete, got %v", obj)
	}
}

func TestEnsureNoBodyAndNoExistingErrors(t *testing.T) {
	client := k8sfake.NewSimpleClientset()
	svc := New(client, testLogger())
	owner := testOwner()

	_, err := svc.Ensure(context.Background(), EnsureOptions{
		Kind:  KindDeployment,
		Name:  "blog-app",
		Owner: owner,
	})
	if err == nil {
		t.Fatalf("expected error when neither body nor existing object is available")
	}
}

func TestStripFinalizerRemovesOnlyProtector(t *testing.T) {
	existing := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:       "blog-app",
			Namespace:  "apps",
			Finalizers: []string{"kubernetes.io/other-thing", djangov1alpha.ProtectorFinalizer},
		},
	}
	client := k8sfake.NewSimpleClientset(existing)
	svc := New(client, testLogger())

	if err := svc.StripFinalizer(context.Background(), KindDeployment, "apps", "blog-app"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := client.AppsV1().Deployments("apps").Get(context.Background(), "blog-app", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching updated deployment: %v", err)
	}
	if len(updated.Finalizers) != 1 || updated.Finalizers[0] != "kubernetes.io/other-thing" {
		t.Errorf("expected only the protector finalizer removed, got %v", updated.Finalizers)
	}
}

func TestStripFinalizerNoOpWhenAbsent(t *testing.T) {
	client := k8sfake.NewSimpleClientset()
	svc := New(client, testLogger())

	if err := svc.StripFinalizer(context.Background(), KindDeployment, "apps", "blog-app"); err != nil {
		t.Errorf("expected no error stripping finalizer from a missing object, got %v", err)
	}
}

func int32Ptr(i int32) *int32 { return &i }
