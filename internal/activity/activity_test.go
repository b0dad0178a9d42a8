package activity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bumpcontrol/internal/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListPaginates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &models.ActivityLog{OwnerID: "alice", WalletIndex: i, Status: models.ActivitySuccess}))
	}
	require.NoError(t, store.Append(ctx, &models.ActivityLog{OwnerID: "bob", Status: models.ActivityFailed}))

	page1, total, err := store.List(ctx, "alice", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.Equal(t, 4, page1[0].WalletIndex, "newest first")
	assert.Equal(t, 3, page1[1].WalletIndex)

	page3, _, err := store.List(ctx, "alice", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, 0, page3[0].WalletIndex)

	empty, _, err := store.List(ctx, "alice", 9, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

type failingSink struct{ calls int }

func (f *failingSink) Append(context.Context, *models.ActivityLog) error {
	f.calls++
	return errors.New("sink down")
}

func TestFanoutKeepsGoingPastFailures(t *testing.T) {
	bad := &failingSink{}
	store := NewMemoryStore()
	fan := NewFanout(bad, nil, store)

	err := fan.Append(context.Background(), &models.ActivityLog{OwnerID: "alice", Status: models.ActivitySkipped})
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, 1, bad.calls)

	logs, total, err := store.List(context.Background(), "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.ActivitySkipped, logs[0].Status)

	assert.NoError(t, NewFanout().Append(context.Background(), &models.ActivityLog{}))
}

type recordingPublisher struct {
	queue string
	msg   interface{}
}

func (r *recordingPublisher) Publish(_ context.Context, queue string, msg interface{}) error {
	r.queue, r.msg = queue, msg
	return nil
}

func TestBusSinkPublishesEntry(t *testing.T) {
	pub := &recordingPublisher{}
	entry := &models.ActivityLog{OwnerID: "alice", Status: models.ActivityFunded, Amount: decimal.NewFromInt(20)}

	require.NoError(t, NewBusSink(pub, "").Append(context.Background(), entry))
	assert.Equal(t, DefaultQueue, pub.queue)
	assert.Same(t, entry, pub.msg)
}

func TestHubBroadcastsByOwner(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	all, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer all.Close()
	alice, _, err := websocket.DefaultDialer.Dial(wsURL+"?owner=alice", nil)
	require.NoError(t, err)
	defer alice.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Append(ctx, &models.ActivityLog{OwnerID: "bob", Status: models.ActivityFailed}))
	require.NoError(t, hub.Append(ctx, &models.ActivityLog{OwnerID: "alice", Status: models.ActivitySuccess, TxRef: "sig1"}))

	var got models.ActivityLog
	all.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "bob", got.OwnerID)
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "alice", got.OwnerID)

	alice.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, "sig1", got.TxRef)

	all.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
}
