package notification

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryOfflineStoreAppendDrain(t *testing.T) {
	store := NewMemoryOfflineStore(10)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "user-1", []byte("primeira")))
	require.NoError(t, store.Append(ctx, "user-1", []byte("segunda")))
	require.NoError(t, store.Append(ctx, "user-2", []byte("outra")))

	msgs, err := store.Drain(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// 最新的在前
	require.Equal(t, "segunda", string(msgs[0]))
	require.Equal(t, "primeira", string(msgs[1]))

	// Drain 清空队列
	msgs, err = store.Drain(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = store.Drain(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestMemoryOfflineStoreLimit(t *testing.T) {
	store := NewMemoryOfflineStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "user-1", []byte(fmt.Sprintf("msg-%d", i))))
	}

	msgs, err := store.Drain(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	// 只保留最新的三条
	require.Equal(t, "msg-4", string(msgs[0]))
	require.Equal(t, "msg-2", string(msgs[2]))
}

func TestHubOfflineDelivery(t *testing.T) {
	store := NewMemoryOfflineStore(10)
	hub := NewWebSocketHub(WithOfflineStore(store), WithKeepAliveInterval(0))

	// 用户不在线则消息进入离线存储
	require.NoError(t, hub.SendToUser("user-1", &Message{Type: TypePendingApproval, WorkflowID: "wf-1"}))
	require.Zero(t, hub.ConnectedCount("user-1"))

	msgs, err := store.Drain(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Contains(t, string(msgs[0]), TypePendingApproval)
	require.Contains(t, string(msgs[0]), "wf-1")
}
