package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTradeLogSize caps the trade list kept per symbol
const DefaultTradeLogSize = 1000

// ErrNoSnapshot is returned when no snapshot is cached for a symbol
var ErrNoSnapshot = errors.New("no snapshot cached for symbol")

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client and checks that the server answers
func NewClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisBackend mirrors committed engine events into Redis. The latest
// snapshot of each book is cached under a key with a TTL, executed trades are
// appended to a capped list and the event itself is published on a per-symbol
// channel so other processes can follow the book without talking to the
// engine.
type RedisBackend struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	tradeLog int64
	logger   *zap.Logger
}

// NewRedisBackend creates a new instance of RedisBackend
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		tradeLog: DefaultTradeLogSize,
		logger:   logger,
	}
}

// SetTradeLogSize changes how many trades are kept per symbol
func (b *RedisBackend) SetTradeLogSize(n int) {
	if n > 0 {
		b.tradeLog = int64(n)
	}
}

func (b *RedisBackend) snapshotKey(symbol string) string {
	return fmt.Sprintf("%s:%s:snapshot", b.prefix, symbol)
}

func (b *RedisBackend) tradesKey(symbol string) string {
	return fmt.Sprintf("%s:%s:trades", b.prefix, symbol)
}

func (b *RedisBackend) booksKey() string {
	return fmt.Sprintf("%s:books", b.prefix)
}

// Channel is the pub/sub channel carrying the events of symbol
func (b *RedisBackend) Channel(symbol string) string {
	return fmt.Sprintf("%s:%s:events", b.prefix, symbol)
}

// Publish implements core.Publisher
func (b *RedisBackend) Publish(ctx context.Context, event core.Event) error {
	msg := api.FromEvent(event)
	data, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	trades := make([]interface{}, 0, len(msg.Trades))
	for i := range msg.Trades {
		t, err := json.Marshal(&msg.Trades[i])
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		trades = append(trades, t)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.snapshotKey(msg.Symbol), data, b.ttl)
		pipe.SAdd(ctx, b.booksKey(), msg.Symbol)
		if len(trades) > 0 {
			key := b.tradesKey(msg.Symbol)
			pipe.RPush(ctx, key, trades...)
			pipe.LTrim(ctx, key, -b.tradeLog, -1)
		}
		pipe.Publish(ctx, b.Channel(msg.Symbol), data)
		return nil
	})
	if err != nil {
		b.logger.Error("failed to publish event",
			zap.String("symbol", msg.Symbol),
			zap.Uint64("sequence", msg.Sequence),
			zap.Error(err))
		return fmt.Errorf("redis publish %s#%d: %w", msg.Symbol, msg.Sequence, err)
	}
	return nil
}

// Snapshot returns the last event cached for symbol
func (b *RedisBackend) Snapshot(ctx context.Context, symbol string) (*api.Event, error) {
	data, err := b.client.Get(ctx, b.snapshotKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		b.logger.Error("failed to get snapshot",
			zap.String("symbol", symbol),
			zap.Error(err))
		return nil, err
	}

	var event api.Event
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Error("failed to unmarshal snapshot",
			zap.String("symbol", symbol),
			zap.Error(err))
		return nil, err
	}
	return &event, nil
}

// RecentTrades returns up to limit of the latest trades, oldest first.
// A non-positive limit returns the whole capped log.
func (b *RedisBackend) RecentTrades(ctx context.Context, symbol string, limit int) ([]api.Trade, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	items, err := b.client.LRange(ctx, b.tradesKey(symbol), start, -1).Result()
	if err != nil {
		return nil, err
	}

	trades := make([]api.Trade, 0, len(items))
	for _, item := range items {
		var t api.Trade
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			b.logger.Warn("skipping malformed trade",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Symbols lists every book that has published at least once
func (b *RedisBackend) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := b.client.SMembers(ctx, b.booksKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Subscribe follows the events of symbol until ctx is done. The returned
// channel is closed when the subscription ends.
func (b *RedisBackend) Subscribe(ctx context.Context, symbol string) (<-chan *api.Event, error) {
	sub := b.client.Subscribe(ctx, b.Channel(symbol))
	// wait for the confirmation so no event published after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", symbol, err)
	}

	out := make(chan *api.Event, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event api.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed event",
						zap.String("channel", msg.Channel),
						zap.Error(err))
					continue
				}
				select {
				case out <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ core.Publisher = (*RedisBackend)(nil)
