package recordstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/nlcache/nlcache/pkg/types"
)

func TestKubeStoreCreateGetRoundTrip(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := NewKubeStore(client, "nlcache")
	ctx := context.Background()

	state := types.NewVolumeState("nlc-v1", time.Now().UTC())
	state.AddNode("node1")

	_, err := store.Create(ctx, RecordName("nlc-v1"), PhaseLabels(state), state)
	require.NoError(t, err)

	got, err := store.Get(ctx, RecordName("nlc-v1"))
	require.NoError(t, err)
	assert.Equal(t, "nlc-v1", got.State.VolumeID)
	assert.True(t, got.State.HasNode("node1"))
	assert.Equal(t, types.PhaseActive, got.Labels[types.LabelPhase])
}

func TestKubeStoreGetMissing(t *testing.T) {
	store := NewKubeStore(fake.NewSimpleClientset(), "nlcache")

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKubeStoreCreateExisting(t *testing.T) {
	store := NewKubeStore(fake.NewSimpleClientset(), "nlcache")
	ctx := context.Background()

	state := types.NewVolumeState("nlc-v1", time.Now())
	_, err := store.Create(ctx, "k", nil, state)
	require.NoError(t, err)

	_, err = store.Create(ctx, "k", nil, state)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestKubeStoreReplaceConflict(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := NewKubeStore(client, "nlcache")
	ctx := context.Background()

	state := types.NewVolumeState("nlc-v1", time.Now())
	rec, err := store.Create(ctx, "k", PhaseLabels(state), state)
	require.NoError(t, err)

	// The fake clientset does not enforce resourceVersion preconditions, so
	// simulate the API server's 409 with a reactor.
	gr := schema.GroupResource{Resource: "configmaps"}
	client.PrependReactor("update", "configmaps",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, apierrors.NewConflict(gr, "k", errors.New("object has been modified"))
		})

	rec.State.AddNode("node1")
	_, err = store.Replace(ctx, rec)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestKubeStoreReplaceMissing(t *testing.T) {
	store := NewKubeStore(fake.NewSimpleClientset(), "nlcache")

	rec := &Record{Key: "missing", State: types.NewVolumeState("v", time.Now()), Version: "1"}
	_, err := store.Replace(context.Background(), rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKubeStoreListSkipsMalformed(t *testing.T) {
	good := types.NewVolumeState("nlc-good", time.Now())
	goodCM := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      RecordName("nlc-good"),
			Namespace: "nlcache",
			Labels:    PhaseLabels(good),
		},
		Data: map[string]string{stateDataKey: `{"volume_id":"nlc-good","created_at":"2025-01-01T00:00:00Z"}`},
	}
	badCM := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      RecordName("nlc-bad"),
			Namespace: "nlcache",
			Labels:    map[string]string{types.LabelPhase: types.PhaseActive},
		},
		Data: map[string]string{stateDataKey: "not json"},
	}

	store := NewKubeStore(fake.NewSimpleClientset(goodCM, badCM), "nlcache")

	records, err := store.List(context.Background(), map[string]string{types.LabelPhase: types.PhaseActive})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "nlc-good", records[0].State.VolumeID)
}

func TestKubeStoreClusterMembers(t *testing.T) {
	node1 := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node1"}}
	node2 := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node2"}}
	store := NewKubeStore(fake.NewSimpleClientset(node1, node2), "nlcache")

	members, err := store.ClusterMembers(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"node1", "node2"}, members)
}

func TestKubeStoreEmitEvent(t *testing.T) {
	client := fake.NewSimpleClientset()
	store := NewKubeStore(client, "nlcache")
	ctx := context.Background()

	store.EmitEvent(ctx, "nlc-vol-v1", "CleanupRequested", "cleanup requested", SeverityWarning)

	events, err := client.CoreV1().Events("nlcache").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, events.Items, 1)
	assert.Equal(t, "CleanupRequested", events.Items[0].Reason)
	assert.Equal(t, "Warning", events.Items[0].Type)
	assert.Equal(t, "nlc-vol-v1", events.Items[0].InvolvedObject.Name)
}
