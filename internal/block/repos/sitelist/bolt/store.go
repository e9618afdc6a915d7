package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
)

const backend = "bolt"

var (
	bucketStorage = []byte("storage")
	keySites      = []byte(domain.SitesKey)
)

// Options configures a bolt store. Zero values pick the real clock and
// private metrics.
type Options struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// boltStore implements sitelist.Store on a single bbolt bucket.
type boltStore struct {
	db       *bbolt.DB
	clock    clock.Clock
	metrics  *metrics.Metrics
	notifier *sitelist.Notifier
}

// bucketCreator is the slice of *bbolt.Tx needed to prepare buckets.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

func ensureBuckets(tx bucketCreator) error {
	_, err := tx.CreateBucketIfNotExists(bucketStorage)
	return err
}

// ensureBucketsFn is swapped in tests to exercise bucket creation failures.
var ensureBucketsFn = ensureBuckets

// New opens (or creates) a Bolt database at path and ensures the storage
// bucket exists.
func New(path string, opts Options) (sitelist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStorageUnavailable, path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create bucket: %v", domain.ErrStorageUnavailable, err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &boltStore{db: db, clock: opts.Clock, metrics: opts.Metrics, notifier: sitelist.NewNotifier()}, nil
}

func (s *boltStore) Get(ctx context.Context) ([]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStorage)
		if b == nil {
			return errors.New("storage bucket missing")
		}
		if v := b.Get(keySites); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	sites, err := sitelist.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return sites, true, nil
}

func (s *boltStore) Set(ctx context.Context, sites []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := sitelist.Encode(sites)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStorage)
		if b == nil {
			return errors.New("storage bucket missing")
		}
		return b.Put(keySites, raw)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	s.metrics.ListWrites.WithLabelValues(backend).Inc()
	s.notifier.Publish(sitelist.Change{Sites: sites, At: s.clock.Now()})
	return nil
}

func (s *boltStore) Subscribe(o sitelist.Observer) func() {
	return s.notifier.Subscribe(o)
}

// Close waits for in-flight change deliveries, then closes the database.
func (s *boltStore) Close() error {
	s.notifier.Close()
	return s.db.Close()
}

var _ sitelist.Store = (*boltStore)(nil)
