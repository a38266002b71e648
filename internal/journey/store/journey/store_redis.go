package journey

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/sentinel"
)

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

const (
	defaultRedisPrefix     = "memberportal:journey:"
	defaultRedisMaxRetries = 3
)

// RedisStore keeps one JSON snapshot per journey key. Two indexes back the
// listing and purge operations:
//
//	<prefix>group:<bg>:<type>   set of reference numbers
//	<prefix>expiry:<type>       sorted set of journey keys scored by expiration
//
// Snapshot keys carry a Redis expiry matching the journey expiration date.
type RedisStore[T models.Payload] struct {
	client      *redis.Client
	prefix      string
	maxRetries  int
	journeyType id.JourneyType
}

type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix     string
	maxRetries int
}

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// WithRedisMaxRetries sets how often Execute retries after a WATCH conflict.
func WithRedisMaxRetries(n int) RedisOption {
	return func(c *redisConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

func NewRedis[T models.Payload](client *redis.Client, opts ...RedisOption) *RedisStore[T] {
	cfg := redisConfig{prefix: defaultRedisPrefix, maxRetries: defaultRedisMaxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}
	var zero T
	return &RedisStore[T]{
		client:      client,
		prefix:      cfg.prefix,
		maxRetries:  cfg.maxRetries,
		journeyType: zero.JourneyType(),
	}
}

func (s *RedisStore[T]) key(key id.JourneyKey) string {
	return s.prefix + key.String()
}

func (s *RedisStore[T]) groupKey(bg id.BusinessGroup) string {
	return s.prefix + "group:" + bg.String() + ":" + s.journeyType.String()
}

func (s *RedisStore[T]) expiryKey() string {
	return s.prefix + "expiry:" + s.journeyType.String()
}

// Create stores a new journey at version 1 unless the key is taken.
func (s *RedisStore[T]) Create(ctx context.Context, j *models.Journey[T]) error {
	j.SetVersion(1)
	raw, err := encodeSnapshot(j)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(j.Key()), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("create journey: %w", err)
	}
	if !ok {
		return fmt.Errorf("journey %s: %w", j.Key(), sentinel.ErrAlreadyUsed)
	}

	pipe := s.client.TxPipeline()
	s.index(ctx, pipe, j)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index journey: %w", err)
	}
	return nil
}

func (s *RedisStore[T]) FindByKey(ctx context.Context, key id.JourneyKey) (*models.Journey[T], error) {
	return s.get(ctx, s.client, key)
}

// Save writes j when its version matches the stored one and bumps it.
func (s *RedisStore[T]) Save(ctx context.Context, j *models.Journey[T]) error {
	key := j.Key()
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Version() != j.Version() {
			return fmt.Errorf("journey %s at version %d, have %d: %w", key, current.Version(), j.Version(), sentinel.ErrConflict)
		}
		return s.commit(ctx, tx, j)
	}, s.key(key))
	return s.translate(err)
}

func (s *RedisStore[T]) Delete(ctx context.Context, key id.JourneyKey) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(key))
	pipe.SRem(ctx, s.groupKey(key.Member.BusinessGroup), key.Member.ReferenceNumber.String())
	pipe.ZRem(ctx, s.expiryKey(), key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete journey: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
	}
	return nil
}

// Execute runs load, fn and save under WATCH. A concurrent write to the same
// key aborts the transaction; it is retried up to the configured limit and
// then reported as sentinel.ErrConflict.
func (s *RedisStore[T]) Execute(ctx context.Context, key id.JourneyKey, fn Mutation[T]) (*models.Journey[T], error) {
	var out *models.Journey[T]
	txf := func(tx *redis.Tx) error {
		j, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(j); err != nil {
			return err
		}
		if err := s.commit(ctx, tx, j); err != nil {
			return err
		}
		out = j
		return nil
	}

	var err error
	for range s.maxRetries {
		err = s.client.Watch(ctx, txf, s.key(key))
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, s.translate(err)
	}
	return out, nil
}

// ListByBusinessGroup returns the group's journeys ordered by reference
// number. Index entries whose snapshot already expired are skipped.
func (s *RedisStore[T]) ListByBusinessGroup(ctx context.Context, bg id.BusinessGroup) ([]*models.Journey[T], error) {
	refs, err := s.client.SMembers(ctx, s.groupKey(bg)).Result()
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	slices.Sort(refs)

	out := make([]*models.Journey[T], 0, len(refs))
	for _, ref := range refs {
		key := id.NewJourneyKey(id.Member{BusinessGroup: bg, ReferenceNumber: id.ReferenceNumber(ref)}, s.journeyType)
		j, err := s.get(ctx, s.client, key)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// DeleteExpired removes journeys whose expiration date is at or before now
// together with their index entries.
func (s *RedisStore[T]) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("find expired journeys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, s.prefix+k)
		if key, err := id.ParseJourneyKey(k); err == nil {
			pipe.SRem(ctx, s.groupKey(key.Member.BusinessGroup), key.Member.ReferenceNumber.String())
		}
		pipe.ZRem(ctx, s.expiryKey(), k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired journeys: %w", err)
	}
	return len(keys), nil
}

func (s *RedisStore[T]) get(ctx context.Context, c stringGetter, key id.JourneyKey) (*models.Journey[T], error) {
	raw, err := c.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find journey: %w", err)
	}
	return decodeSnapshot[T](key, raw)
}

func (s *RedisStore[T]) commit(ctx context.Context, tx *redis.Tx, j *models.Journey[T]) error {
	expected := j.Version()
	j.SetVersion(expected + 1)
	raw, err := encodeSnapshot(j)
	if err != nil {
		j.SetVersion(expected)
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(j.Key()), raw, 0)
		s.index(ctx, pipe, j)
		return nil
	})
	if err != nil {
		j.SetVersion(expected)
		return err
	}
	return nil
}

func (s *RedisStore[T]) index(ctx context.Context, pipe redis.Pipeliner, j *models.Journey[T]) {
	key := j.Key()
	pipe.SAdd(ctx, s.groupKey(key.Member.BusinessGroup), key.Member.ReferenceNumber.String())
	if exp := j.ExpirationDate(); !exp.IsZero() {
		pipe.ExpireAt(ctx, s.key(key), exp)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(exp.Unix()), Member: key.String()})
		return
	}
	pipe.ZRem(ctx, s.expiryKey(), key.String())
}

func (s *RedisStore[T]) translate(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	}
	return err
}
