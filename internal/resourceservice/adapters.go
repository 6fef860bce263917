package resourceservice

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// adapter is the five-verb surface (read, read-status, create, patch,
// delete) ResourceService.ensure dispatches through, one per Kind. It is
// a table of typed-clientset wrappers rather than a single reflective
// client, so each kind's verbs stay ordinary compiled method calls.
type adapter interface {
	Get(ctx context.Context, namespace, name string) (runtime.Object, error)
	Create(ctx context.Context, namespace string, obj runtime.Object) (runtime.Object, error)
	Patch(ctx context.Context, namespace, name string, mergePatch []byte) (runtime.Object, error)
	Delete(ctx context.Context, namespace, name string) error
	Empty() runtime.Object
}

func adapterFor(kind Kind, client kubernetes.Interface) (adapter, error) {
	switch kind {
	case KindDeployment:
		return deploymentAdapter{client}, nil
	case KindService:
		return serviceAdapter{client}, nil
	case KindIngress:
		return ingressAdapter{client}, nil
	case KindPod:
		return podAdapter{client}, nil
	case KindJob:
		return jobAdapter{client}, nil
	case KindHPA:
		return hpaAdapter{client}, nil
	default:
		return nil, fmt.Errorf("no adapter registered for kind %v", kind)
	}
}

type deploymentAdapter struct{ c kubernetes.Interface }

func (a deploymentAdapter) Get(ctx context.Context, ns, name string) (runtime.Object, error) {
	return a.c.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
}
func (a deploymentAdapter) Create(ctx context.Context, ns string, obj runtime.Object) (runtime.Object, error) {
	return a.c.AppsV1().Deployments(ns).Create(ctx, obj.(*appsv1.Deployment), metav1.CreateOptions{})
}
func (a deploymentAdapter) Patch(ctx context.Context, ns, name string, patch []byte) (runtime.Object, error) {
	return a.c.AppsV1().Deployments(ns).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
}
func (a deploymentAdapter) Delete(ctx context.Context, ns, name string) error {
	return a.c.AppsV1().Deployments(ns).Delete(ctx, name, metav1.DeleteOptions{})
}
func (a deploymentAdapter) Empty() runtime.Object { return &appsv1.Deployment{} }

type serviceAdapter struct{ c kubernetes.Interface }

func (a serviceAdapter) Get(ctx context.Context, ns, name string) (runtime.Object, error) {
	return a.c.CoreV1().Services(ns).Get(ctx, name, metav1.GetOptions{})
}
func (a serviceAdapter) Create(ctx context.Context, ns string, obj runtime.Object) (runtime.Object, error) {
	return a.c.CoreV1().Services(ns).Create(ctx, obj.(*corev1.Service), metav1.CreateOptions{})
}
func (a serviceAdapter) Patch(ctx context.Context, ns, name string, patch []byte) (runtime.Object, error) {
	return a.c.CoreV1().Services(ns).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
}
func (a serviceAdapter) Delete(ctx context.Context, ns, name string) error {
	return a.c.CoreV1().Services(ns).Delete(ctx, name, metav1.DeleteOptions{})
}
func (a serviceAdapter) Empty() runtime.Object { return &corev1.Service{} }

type ingressAdapter struct{ c kubernetes.Interface }

func (a ingressAdapter) Get(ctx context.Context, ns, name string) (runtime.Object, error) {
	return a.c.NetworkingV1().Ingresses(ns).Get(ctx, name, metav1.GetOptions{})
}
func (a ingressAdapter) Create(ctx context.Context, ns string, obj runtime.Object) (runtime.Object, error) {
	return a.c.NetworkingV1().Ingresses(ns).Create(ctx, obj.(*networkingv1.Ingress), metav1.CreateOptions{})
}
func (a ingressAdapter) Patch(ctx context.Context, ns, name string, patch []byte) (runtime.Object, error) {
	return a.c.NetworkingV1().Ingresses(ns).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
}
func (a ingressAdapter) Delete(ctx context.Context, ns, name string) error {
	return a.c.NetworkingV1().Ingresses(ns).Delete(ctx, name, metav1.DeleteOptions{})
}
func (a ingressAdapter) Empty() runtime.Object { return &networkingv1.Ingress{} }

type podAdapter struct{ c kubernetes.Interface }

func (a podAdapter) Get(ctx context.Context, ns, name string) (runtime.Object, error) {
	return a.c.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
}
func (a podAdapter) Create(ctx context.Context, ns string, obj runtime.Object) (runtime.Object, error) {
	return a.c.CoreV1().Pods(ns).Create(ctx, obj.(*corev1.Pod), metav1.CreateOptions{})
}
func (a podAdapter) Patch(ctx context.Context, ns, name string, patch []byte) (runtime.Object, error) {
	return a.c.CoreV1().Pods(ns).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
}
func (a podAdapter) Delete(ctx context.Context, ns, name string) error {
	return a.c.CoreV1().Pods(ns).Delete(ctx, name, metav1.DeleteOptions{})
}
func (a podAdapter) Empty() runtime.Object { return &corev1.Pod{} }

type jobAdapter struct{ c kubernetes.Interface }

func (a jobAdapter) Get(ctx context.Context, ns, name string) (runtime.Object, error) {
	return a.c.BatchV1().Jobs(ns).Get(ctx, name, metav1.GetOptions{})
}
func (a jobAdapter) Create(ctx context.Context, ns string, obj runtime.Object) (runtime.Object, error) {
	return a.c.BatchV1().Jobs(ns).Create(ctx, obj.(*batchv1.Job), metav1.CreateOptions{})
}
func (a jobAdapter) Patch(ctx context.Context, ns, name string, patch []byte) (runtime.Object, error) {
	return a.c.BatchV1().Jobs(ns).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
}
func (a jobAdapter) Delete(ctx context.Context, ns, name string) error {
	return a.c.BatchV1().Jobs(ns).Delete(ctx, name, metav1.DeleteOptions{})
}
func (a jobAdapter) Empty() runtime.Object { return &batchv1.Job{} }

type hpaAdapter struct{ c kubernetes.Interface }

func (a hpaAdapter) Get(ctx context.Context, ns, name string) (runtime.Object, error) {
	return a.c.AutoscalingV2().HorizontalPodAutoscalers(ns).Get(ctx, name, metav1.GetOptions{})
}
func (a hpaAdapter) Create(ctx context.Context, ns string, obj runtime.Object) (runtime.Object, error) {
	return a.c.AutoscalingV2().HorizontalPodAutoscalers(ns).Create(ctx, obj.(*autoscalingv2.HorizontalPodAutoscaler), metav1.CreateOptions{})
}
func (a hpaAdapter) Patch(ctx context.Context, ns, name string, patch []byte) (runtime.Object, error) {
	return a.c.AutoscalingV2().HorizontalPodAutoscalers(ns).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
}
func (a hpaAdapter) Delete(ctx context.Context, ns, name string) error {
	return a.c.AutoscalingV2().HorizontalPodAutoscalers(ns).Delete(ctx, name, metav1.DeleteOptions{})
}
func (a hpaAdapter) Empty() runtime.Object { return &autoscalingv2.HorizontalPodAutoscaler{} }
