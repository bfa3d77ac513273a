package k8s

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrPodNotFound is returned when the referenced pod or container does
// not exist.
var ErrPodNotFound = errors.New("pod not found")

// defaultContainerAnnotation names the container kubectl logs picks when
// none is given.
const defaultContainerAnnotation = "kubectl.kubernetes.io/default-container"

// PodRef identifies a container's log stream.
type PodRef struct {
	Namespace string
	Pod       string
	Container string
}

// ParsePodRef parses "namespace/pod[/container]" (the part after k8s://).
// An empty namespace segment is allowed and resolves to the client default.
func ParsePodRef(s string) (PodRef, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return PodRef{}, fmt.Errorf("empty pod reference")
		}
		return PodRef{Pod: parts[0]}, nil
	case 2:
		return PodRef{Namespace: parts[0], Pod: parts[1]}, nil
	case 3:
		return PodRef{Namespace: parts[0], Pod: parts[1], Container: parts[2]}, nil
	}
	return PodRef{}, fmt.Errorf("invalid pod reference %q: want namespace/pod[/container]", s)
}

func (r PodRef) String() string {
	s := r.Namespace + "/" + r.Pod
	if r.Container != "" {
		s += "/" + r.Container
	}
	return s
}

// LogOptions controls which part of a pod's log is fetched.
type LogOptions struct {
	Since    time.Duration
	Previous bool
}

// PodLogs returns the log stream of a pod container. Without a container
// name the pod's default container is used: the one named by the kubectl
// default-container annotation, else the first. The caller closes the
// stream.
func (c *Client) PodLogs(ctx context.Context, ref PodRef, opts LogOptions) (io.ReadCloser, error) {
	ns := ref.Namespace
	if ns == "" {
		ns = c.ns
	}
	pods := c.cs.CoreV1().Pods(ns)

	pod, err := pods.Get(ctx, ref.Pod, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrPodNotFound, ns, ref.Pod)
	}
	if err != nil {
		return nil, fmt.Errorf("get pod %s/%s: %w", ns, ref.Pod, err)
	}
	container, err := pickContainer(pod, ref.Container)
	if err != nil {
		return nil, err
	}

	podOpts := &corev1.PodLogOptions{Container: container, Previous: opts.Previous}
	if opts.Since > 0 {
		secs := int64(opts.Since.Seconds())
		podOpts.SinceSeconds = &secs
	}
	stream, err := pods.GetLogs(ref.Pod, podOpts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream logs %s/%s/%s: %w", ns, ref.Pod, container, err)
	}
	return stream, nil
}

func pickContainer(pod *corev1.Pod, want string) (string, error) {
	names := make([]string, len(pod.Spec.Containers))
	for i, ct := range pod.Spec.Containers {
		names[i] = ct.Name
	}
	if want != "" {
		for _, n := range names {
			if n == want {
				return want, nil
			}
		}
		if len(names) == 0 {
			return want, nil
		}
		return "", fmt.Errorf("%w: container %q not in %s (have %s)", ErrPodNotFound, want, pod.Name, strings.Join(names, ", "))
	}
	if def := pod.Annotations[defaultContainerAnnotation]; def != "" {
		return def, nil
	}
	if len(names) > 0 {
		return names[0], nil
	}
	return "", nil
}
