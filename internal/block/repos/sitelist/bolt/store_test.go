package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sites.db")
}

func TestBoltStore_MissingKeyThenRoundTrip(t *testing.T) {
	st, err := New(tempDB(t), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sites, ok, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "fresh database should have no sites key")
	assert.Nil(t, sites)

	require.NoError(t, st.Set(context.Background(), []string{"a.com", "b.com", "a.com"}))
	sites, ok, err = st.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a.com", "b.com", "a.com"}, sites, "order and multiplicity are preserved")
}

func TestBoltStore_EmptyListIsPresent(t *testing.T) {
	st, err := New(tempDB(t), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Set(context.Background(), nil))
	sites, ok, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{}, sites)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := tempDB(t)
	st, err := New(path, Options{})
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), []string{"persist.me"}))
	require.NoError(t, st.Close())

	st, err = New(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	sites, ok, err := st.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"persist.me"}, sites)
}

func TestBoltStore_NotifiesObservers(t *testing.T) {
	st, err := New(tempDB(t), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	changes := make(chan sitelist.Change, 1)
	st.Subscribe(func(c sitelist.Change) { changes <- c })
	require.NoError(t, st.Set(context.Background(), []string{"x.org"}))

	select {
	case c := <-changes:
		assert.Equal(t, []string{"x.org"}, c.Sites)
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
}

func TestBoltStore_CorruptValue(t *testing.T) {
	path := tempDB(t)
	st, err := New(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bs := st.(*boltStore)
	require.NoError(t, bs.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStorage).Put(keySites, []byte("{not json"))
	}))
	_, _, err = st.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
}

func TestBoltStore_ClosedDatabase(t *testing.T) {
	st, err := New(tempDB(t), Options{})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, _, err = st.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, st.Set(context.Background(), []string{"a.com"}), domain.ErrStorageUnavailable)
}

func TestBoltStore_OpenFails(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "sites.db"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

type fakeBucketCreator struct{ err error }

func (f fakeBucketCreator) CreateBucketIfNotExists([]byte) (*bbolt.Bucket, error) {
	return nil, f.err
}

func TestNew_EnsureBucketsError(t *testing.T) {
	old := ensureBucketsFn
	ensureBucketsFn = func(bucketCreator) error {
		return ensureBuckets(fakeBucketCreator{err: errors.New("disk full")})
	}
	defer func() { ensureBucketsFn = old }()

	st, err := New(tempDB(t), Options{})
	require.Error(t, err)
	assert.Nil(t, st)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "disk full")
}

func TestBoltStore_CanceledContext(t *testing.T) {
	st, err := New(tempDB(t), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = st.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
