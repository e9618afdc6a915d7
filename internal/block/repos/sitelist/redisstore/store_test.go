package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
)

// redisAddr returns the test server address or skips the test.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("BLOCK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BLOCK_TEST_REDIS_ADDR not set; skipping redis integration test")
	}
	return addr
}

func newTestStore(t *testing.T, addr, key, channel string) sitelist.Store {
	t.Helper()
	st, err := New(context.Background(), Options{Addr: addr, Key: key, Channel: channel, Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func uniqueNames(t *testing.T) (string, string) {
	suffix := fmt.Sprintf("%s:%d", t.Name(), time.Now().UnixNano())
	return "rr-block-test:sites:" + suffix, "rr-block-test:changed:" + suffix
}

func TestNew_RequiresKeyAndChannel(t *testing.T) {
	_, err := New(context.Background(), Options{Addr: "127.0.0.1:6379"})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{Key: "k", Channel: "c"})
	assert.Error(t, err)
}

func TestHandleMessage_IgnoresMalformedPayload(t *testing.T) {
	s := &store{logger: log.NewNoopLogger(), notifier: sitelist.NewNotifier()}
	calls := 0
	s.notifier.Subscribe(func(sitelist.Change) { calls++ })

	s.handleMessage(&redis.Message{Channel: "c", Payload: "{broken"})
	s.notifier.Wait()
	assert.Equal(t, 0, calls)
}

func TestStore_RoundTripAndLocalNotification(t *testing.T) {
	addr := redisAddr(t)
	key, channel := uniqueNames(t)
	st := newTestStore(t, addr, key, channel)

	_, ok, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	changes := make(chan sitelist.Change, 1)
	st.Subscribe(func(c sitelist.Change) { changes <- c })

	require.NoError(t, st.Set(context.Background(), []string{"a.com", "b.com"}))
	sites, ok, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a.com", "b.com"}, sites)

	select {
	case c := <-changes:
		assert.Equal(t, []string{"a.com", "b.com"}, c.Sites)
	case <-time.After(2 * time.Second):
		t.Fatal("expected announcement to reach local observer")
	}
}

func TestStore_RemoteWritePropagates(t *testing.T) {
	addr := redisAddr(t)
	key, channel := uniqueNames(t)
	writer := newTestStore(t, addr, key, channel)
	reader := newTestStore(t, addr, key, channel)

	changes := make(chan sitelist.Change, 1)
	reader.Subscribe(func(c sitelist.Change) { changes <- c })

	require.NoError(t, writer.Set(context.Background(), []string{"synced.org"}))
	select {
	case c := <-changes:
		assert.Equal(t, []string{"synced.org"}, c.Sites)
	case <-time.After(2 * time.Second):
		t.Fatal("expected write from another instance to propagate")
	}
}
