// Package v1alpha holds the Go data model for the Django custom resource
// (group thismatters.github, version v1alpha, plural djangos). There is
// no generated clientset or scheme registration here: the operator talks
// to the djangos CRD through the dynamic client and converts to/from
// these structs with runtime.DefaultUnstructuredConverter, the same way
// it would talk to any CRD it didn't author a clientset for.
package v1alpha

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	Group    = "thismatters.github"
	Version  = "v1alpha"
	Plural   = "djangos"
	Kind     = "Django"
	ListKind = "DjangoList"
)

// ProtectorFinalizer is carried by every object the operator creates and
// stripped by the operator itself before a deliberate delete.
const ProtectorFinalizer = "django.thismatters.github/protector"

// MigrationStepLabel is the controller-owned label recording pipeline
// state on the Django object.
const MigrationStepLabel = "migration-step"

// Condition values for status.condition.
const (
	ConditionMigrating = "migrating"
	ConditionRunning   = "running"
	ConditionDegraded  = "degraded"
)

// Django is the desired-deployment custom resource this operator
// reconciles.
type Django struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DjangoSpec   `json:"spec"`
	Status DjangoStatus `json:"status,omitempty"`
}

// DjangoList is a list of Django resources, for listing/watching.
type DjangoList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Django `json:"items"`
}

// PortsSpec names the container ports the app and redis listen on.
type PortsSpec struct {
	App   int32 `json:"app,omitempty"`
	Redis int32 `json:"redis,omitempty"`
}

// CommandSpec is the entrypoint for one purpose's container (app, worker,
// beat). A missing Command is fatal for that purpose.
type CommandSpec struct {
	Command []string `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// TimeoutSpec bounds a polling loop: wait up to Iterations times, Period
// apart.
type TimeoutSpec struct {
	Iterations int `json:"iterations,omitempty"`
	Period     int `json:"period,omitempty"` // seconds
}

// ResourceRequestSpec is a per-purpose compute request.
type ResourceRequestSpec struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// AutoscalerSpec configures an optional HorizontalPodAutoscaler for the
// app or worker purpose. The controller only creates/updates this
// object; it never computes replica counts itself.
type AutoscalerSpec struct {
	Enabled                 bool       `json:"enabled,omitempty"`
	CPUUtilizationThreshold int32      `json:"cpuUtilizationThreshold,omitempty"`
	Replicas                ReplicasMM `json:"replicas,omitempty"`
}

// ReplicasMM bounds an autoscaler's replica range.
type ReplicasMM struct {
	Minimum int32 `json:"minimum,omitempty"`
	Maximum int32 `json:"maximum,omitempty"`
}

// DjangoSpec is the user-provided desired state. Fields the controller
// only passes through into rendered manifests are left as opaque
// map[string]any / []any rather than given rigid Go types, mirroring the
// spec's "opaque" annotations.
type DjangoSpec struct {
	Host          string `json:"host"`
	Image         string `json:"image"`
	Version       string `json:"version"`
	ClusterIssuer string `json:"clusterIssuer"`

	Ports PortsSpec `json:"ports,omitempty"`

	Commands map[string]CommandSpec `json:"commands,omitempty"`

	InitManageCommands [][]string  `json:"initManageCommands,omitempty"`
	InitManageTimeouts TimeoutSpec `json:"initManageTimeouts,omitempty"`

	AppProbeSpec map[string]any `json:"appProbeSpec,omitempty"`

	Env                  []corev1.EnvVar                `json:"env,omitempty"`
	EnvFromConfigMapRefs []string                        `json:"envFromConfigMapRefs,omitempty"`
	EnvFromSecretRefs    []string                        `json:"envFromSecretRefs,omitempty"`
	Volumes              []corev1.Volume                 `json:"volumes,omitempty"`
	VolumeMounts         []corev1.VolumeMount             `json:"volumeMounts,omitempty"`
	ImagePullSecrets     []corev1.LocalObjectReference     `json:"imagePullSecrets,omitempty"`
	Strategy             map[string]any                  `json:"strategy,omitempty"`

	ResourceRequests map[string]ResourceRequestSpec `json:"resourceRequests,omitempty"`
	Autoscalers      map[string]AutoscalerSpec       `json:"autoscalers,omitempty"`

	AlwaysRunMigrations bool `json:"alwaysRunMigrations,omitempty"`
}

// DjangoStatus is entirely controller-owned.
type DjangoStatus struct {
	Condition        string `json:"condition,omitempty"`
	Version          string `json:"version,omitempty"`
	MigrationVersion string `json:"migrationVersion,omitempty"`

	// PipelineSpec is the spec snapshot captured when the current
	// migration was initiated; absent at steady state.
	PipelineSpec *DjangoSpec `json:"pipelineSpec,omitempty"`

	// MigrationPipeline accumulates the outputs of individual pipeline
	// steps across one migration run (mgmt_pod_name, blue_app, created,
	// migration_complete, ...).
	MigrationPipeline map[string]any `json:"migration_pipeline,omitempty"`

	// Created inventories objects the operator owns, keyed by kind then
	// purpose: created["deployment"]["app"] = "demo-app-1-0-0".
	Created map[string]map[string]string `json:"created,omitempty"`
}

// RequiredFieldsSet returns the names of the fields in the small fixed
// required-field set (host, image, version, clusterIssuer) that are
// empty; an empty result means all of them are populated.
func (s DjangoSpec) RequiredFieldsSet() (missing []string) {
	if s.Host == "" {
		missing = append(missing, "host")
	}
	if s.Image == "" {
		missing = append(missing, "image")
	}
	if s.Version == "" {
		missing = append(missing, "version")
	}
	if s.ClusterIssuer == "" {
		missing = append(missing, "clusterIssuer")
	}
	return missing
}
