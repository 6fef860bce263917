// Package k8sclient builds the typed and dynamic Kubernetes clients the
// rest of the operator is wired against, and provides the dynamic-client
// accessor for the djangos CRD itself (which has no generated clientset
// in this repository).
package k8sclient

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients bundles the clients the controller needs: a typed clientset
// for the six owned workload kinds, and a dynamic client for the djangos
// CRD.
type Clients struct {
	Typed   kubernetes.Interface
	Dynamic dynamic.Interface
	Config  *rest.Config
}

// Build constructs Clients from a kubeconfig path, or from in-cluster
// config when kubeconfigPath is empty.
func Build(kubeconfigPath string) (*Clients, error) {
	cfg, err := restConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("building rest config: %w", err)
	}

	typed, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building typed client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building dynamic client: %w", err)
	}

	return &Clients{Typed: typed, Dynamic: dyn, Config: cfg}, nil
}

func restConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}
	// Fall back to the default loading rules (KUBECONFIG env var, then
	// ~/.kube/config) so the controller binary also runs comfortably
	// outside a cluster during development.
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{},
	).ClientConfig()
}
