// Package events turns pipeline.Event values into real Kubernetes
// Events against the Django object that produced them.
package events

import (
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/tools/record"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
)

const component = "django-operator"

// Recorder wraps a client-go EventRecorder broadcasting against the
// typed clientset's Events sink.
type Recorder struct {
	recorder record.EventRecorder
}

// New builds a Recorder, also logging every event at Info level so
// operators without event-watching tooling still see activity.
func New(client kubernetes.Interface, logger *slog.Logger) *Recorder {
	broadcaster := record.NewBroadcaster()
	broadcaster.StartLogging(func(format string, args ...any) {
		logger.Info("event", "message", fmt.Sprintf(format, args...))
	})
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: client.CoreV1().Events("")})
	return &Recorder{recorder: broadcaster.NewRecorder(scheme.Scheme, corev1.EventSource{Component: component})}
}

// Emit records an event with reason and message against django, as a
// Warning event when warning is set, Normal otherwise.
func (r *Recorder) Emit(django *djangov1alpha.Django, reason, message string, warning bool) {
	eventType := corev1.EventTypeNormal
	if warning {
		eventType = corev1.EventTypeWarning
	}
	r.recorder.Event(reference(django), eventType, reason, message)
}

func reference(django *djangov1alpha.Django) *corev1.ObjectReference {
	return &corev1.ObjectReference{
		Kind:       "Django",
		APIVersion: djangov1alpha.Group + "/" + djangov1alpha.Version,
		Namespace:  django.Namespace,
		Name:       django.Name,
		UID:        django.UID,
	}
}
