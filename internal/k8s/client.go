// Package k8s reads payment switch logs straight from pods.
package k8s

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Client reads pod logs in a default namespace.
type Client struct {
	cs kubernetes.Interface
	ns string
}

// NewClient loads the kubeconfig the way kubectl does (KUBECONFIG, then
// ~/.kube/config, then in-cluster). An empty namespace means the current
// context's namespace.
func NewClient(namespace string) (*Client, error) {
	overrides := &clientcmd.ConfigOverrides{}
	overrides.Context.Namespace = namespace
	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(), overrides)

	ns, _, err := loader.Namespace()
	if err != nil {
		return nil, fmt.Errorf("kube namespace: %w", err)
	}
	rc, err := loader.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("kubeconfig: %w", err)
	}
	rc.UserAgent = "logmedic"
	cs, err := kubernetes.NewForConfig(rc)
	if err != nil {
		return nil, fmt.Errorf("kube client: %w", err)
	}
	return &Client{cs: cs, ns: ns}, nil
}

// NewClientFromInterface wraps an existing clientset, typically a fake.
func NewClientFromInterface(cs kubernetes.Interface, namespace string) *Client {
	return &Client{cs: cs, ns: namespace}
}

// Namespace is the namespace used when a reference names none.
func (c *Client) Namespace() string { return c.ns }
