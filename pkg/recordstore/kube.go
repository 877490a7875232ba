package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/types"
)

// stateDataKey is the ConfigMap data field holding the serialized state
const stateDataKey = "state"

// eventSource identifies this driver in emitted cluster events
const eventSource = "nlcache-csi"

// KubeStore implements Store over the Kubernetes API. Each volume state is a
// ConfigMap in the driver's namespace; the ConfigMap resourceVersion is the
// CAS token, cluster membership comes from the Node inventory, and audit
// events are core Events attached to the ConfigMap.
type KubeStore struct {
	client    kubernetes.Interface
	namespace string
	logger    zerolog.Logger
}

// NewKubeStore creates a store backed by an existing clientset
func NewKubeStore(client kubernetes.Interface, namespace string) *KubeStore {
	return &KubeStore{
		client:    client,
		namespace: namespace,
		logger:    log.WithComponent("recordstore"),
	}
}

// Connect builds a clientset from the in-cluster service account, falling
// back to KUBECONFIG for out-of-cluster runs
func Connect(namespace string) (*KubeStore, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			return nil, fmt.Errorf("not in cluster and KUBECONFIG unset: %w", err)
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
		}
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewKubeStore(client, namespace), nil
}

// Get returns the record for key, or ErrNotFound
func (s *KubeStore) Get(ctx context.Context, key string) (*Record, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, key, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return s.fromConfigMap(cm)
}

// Create inserts a new record
func (s *KubeStore) Create(ctx context.Context, key string, lbls map[string]string, state *types.VolumeState) (*Record, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state for %s: %w", key, err)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      key,
			Namespace: s.namespace,
			Labels:    lbls,
		},
		Data: map[string]string{stateDataKey: string(data)},
	}

	created, err := s.client.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil, fmt.Errorf("create %s: %w", key, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create %s: %w", key, err)
	}
	return s.fromConfigMap(created)
}

// Replace overwrites the record with a resourceVersion precondition
func (s *KubeStore) Replace(ctx context.Context, rec *Record) (*Record, error) {
	data, err := json.Marshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("marshal state for %s: %w", rec.Key, err)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:            rec.Key,
			Namespace:       s.namespace,
			Labels:          rec.Labels,
			ResourceVersion: rec.Version,
		},
		Data: map[string]string{stateDataKey: string(data)},
	}

	updated, err := s.client.CoreV1().ConfigMaps(s.namespace).Update(ctx, cm, metav1.UpdateOptions{})
	if err != nil {
		switch {
		case apierrors.IsConflict(err):
			return nil, fmt.Errorf("replace %s: %w", rec.Key, ErrConflict)
		case apierrors.IsNotFound(err):
			return nil, fmt.Errorf("replace %s: %w", rec.Key, ErrNotFound)
		default:
			return nil, fmt.Errorf("replace %s: %w", rec.Key, err)
		}
	}
	return s.fromConfigMap(updated)
}

// Delete removes the record
func (s *KubeStore) Delete(ctx context.Context, key string) error {
	err := s.client.CoreV1().ConfigMaps(s.namespace).Delete(ctx, key, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("delete %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns all records matching the label selector. Records whose body
// cannot be parsed are logged and skipped; a corrupt record must not take
// down a whole control loop tick.
func (s *KubeStore) List(ctx context.Context, selector map[string]string) ([]*Record, error) {
	opts := metav1.ListOptions{LabelSelector: labels.Set(selector).String()}
	cms, err := s.client.CoreV1().ConfigMaps(s.namespace).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]*Record, 0, len(cms.Items))
	for i := range cms.Items {
		rec, err := s.fromConfigMap(&cms.Items[i])
		if err != nil {
			s.logger.Warn().Err(err).Str("record", cms.Items[i].Name).
				Msg("Skipping malformed volume state record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ClusterMembers returns the current node names
func (s *KubeStore) ClusterMembers(ctx context.Context) ([]string, error) {
	nodes, err := s.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list cluster nodes: %w", err)
	}

	names := make([]string, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		names = append(names, node.Name)
	}
	return names, nil
}

// EmitEvent creates a cluster Event attached to the record's ConfigMap.
// Failures are logged only.
func (s *KubeStore) EmitEvent(ctx context.Context, key, reason, message string, severity EventSeverity) {
	now := metav1.NewTime(time.Now())
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s.%x", key, now.UnixNano()),
			Namespace: s.namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			Kind:      "ConfigMap",
			Namespace: s.namespace,
			Name:      key,
		},
		Reason:         reason,
		Message:        message,
		Type:           string(severity),
		Source:         corev1.EventSource{Component: eventSource},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}

	if _, err := s.client.CoreV1().Events(s.namespace).Create(ctx, event, metav1.CreateOptions{}); err != nil {
		s.logger.Debug().Err(err).Str("record", key).Str("reason", reason).
			Msg("Failed to emit cluster event")
	}
}

// Ping verifies API server reachability
func (s *KubeStore) Ping(ctx context.Context) error {
	opts := metav1.ListOptions{Limit: 1}
	if _, err := s.client.CoreV1().ConfigMaps(s.namespace).List(ctx, opts); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close is a no-op for the Kubernetes client
func (s *KubeStore) Close() error {
	return nil
}

func (s *KubeStore) fromConfigMap(cm *corev1.ConfigMap) (*Record, error) {
	body, ok := cm.Data[stateDataKey]
	if !ok {
		return nil, fmt.Errorf("record %s has no %q data field", cm.Name, stateDataKey)
	}

	var state types.VolumeState
	if err := json.Unmarshal([]byte(body), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state for %s: %w", cm.Name, err)
	}

	return &Record{
		Key:     cm.Name,
		State:   &state,
		Version: cm.ResourceVersion,
		Labels:  cm.Labels,
	}, nil
}
