// Package redisstore keeps the blocklist in Redis and announces every write
// on a pub/sub channel. Every instance subscribed to the channel notifies its
// observers, so an edit made through one instance reaches all of them.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
)

const backend = "redis"

// Options configures the store. Either Client or Addr must be set.
type Options struct {
	Client  redis.UniversalClient
	Addr    string
	Key     string
	Channel string
	Clock   clock.Clock
	Logger  log.Logger
	Metrics *metrics.Metrics
}

type store struct {
	client   redis.UniversalClient
	key      string
	channel  string
	clock    clock.Clock
	logger   log.Logger
	metrics  *metrics.Metrics
	notifier *sitelist.Notifier

	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// New connects, subscribes to the change channel and starts relaying
// announcements to observers. The subscription is confirmed before New
// returns, so the store's own writes are never missed.
func New(ctx context.Context, opts Options) (sitelist.Store, error) {
	if opts.Key == "" || opts.Channel == "" {
		return nil, errors.New("redis store requires a key and a channel")
	}
	client := opts.Client
	if client == nil {
		if opts.Addr == "" {
			return nil, errors.New("redis store requires an address or a client")
		}
		client = redis.NewClient(&redis.Options{Addr: opts.Addr})
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}

	ps := client.Subscribe(ctx, opts.Channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrStorageUnavailable, opts.Channel, err)
	}

	s := &store{
		client:   client,
		key:      opts.Key,
		channel:  opts.Channel,
		clock:    opts.Clock,
		logger:   log.WithComponent(opts.Logger, "redisstore"),
		metrics:  opts.Metrics,
		notifier: sitelist.NewNotifier(),
		pubsub:   ps,
		done:     make(chan struct{}),
	}
	go s.relay(ps.Channel())
	return s, nil
}

func (s *store) relay(ch <-chan *redis.Message) {
	defer close(s.done)
	for msg := range ch {
		s.handleMessage(msg)
	}
}

func (s *store) handleMessage(msg *redis.Message) {
	sites, err := sitelist.Decode([]byte(msg.Payload))
	if err != nil {
		s.logger.Warn(map[string]any{"channel": msg.Channel, "error": err}, "Ignoring malformed list announcement")
		return
	}
	s.logger.Debug(map[string]any{"sites": len(sites)}, "List change announced")
	s.notifier.Publish(sitelist.Change{Sites: sites, At: s.clock.Now()})
}

func (s *store) Get(ctx context.Context) ([]string, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", domain.ErrStorageUnavailable, s.key, err)
	}
	sites, err := sitelist.Decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return sites, true, nil
}

// Set writes the list and publishes it in one MULTI/EXEC. Observers are
// notified when the announcement comes back through the subscription.
func (s *store) Set(ctx context.Context, sites []string) error {
	raw, err := sitelist.Encode(sites)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key, raw, 0)
		p.Publish(ctx, s.channel, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStorageUnavailable, s.key, err)
	}
	s.metrics.ListWrites.WithLabelValues(backend).Inc()
	return nil
}

func (s *store) Subscribe(o sitelist.Observer) func() {
	return s.notifier.Subscribe(o)
}

// Close stops the relay, waits for in-flight deliveries and closes the client.
func (s *store) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
		s.notifier.Close()
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

var _ sitelist.Store = (*store)(nil)
