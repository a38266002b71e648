package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"memberportal/internal/ratelimit/models"
	"memberportal/pkg/requestcontext"
)

type bucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	Reset(ctx context.Context, key string) error
}

// bucketSuite is shared by both stores. Time is driven through the request
// clock so windows can be crossed without sleeping.
type bucketSuite struct {
	suite.Suite
	newStore func() bucketStore
	store    bucketStore
	start    time.Time
}

func (s *bucketSuite) SetupTest() {
	s.store = s.newStore()
	s.start = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
}

func (s *bucketSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.start.Add(offset))
}

func (s *bucketSuite) TestAllowsUpToLimit() {
	for i := range 3 {
		res, err := s.store.Allow(s.at(time.Duration(i)*time.Second), "member:RBS/1", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(3, res.Limit)
		s.Equal(2-i, res.Remaining)
		s.True(s.start.Add(time.Minute).Equal(res.ResetAt), "window resets one minute after the oldest request")
	}

	res, err := s.store.Allow(s.at(10*time.Second), "member:RBS/1", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(50, res.RetryAfter)
}

func (s *bucketSuite) TestWindowSlides() {
	for i := range 2 {
		_, err := s.store.Allow(s.at(time.Duration(i)*30*time.Second), "k", 2, time.Minute)
		s.Require().NoError(err)
	}
	res, err := s.store.Allow(s.at(45*time.Second), "k", 2, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)

	res, err = s.store.Allow(s.at(time.Minute), "k", 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed, "the first request left the window")
	s.Equal(0, res.Remaining)
}

func (s *bucketSuite) TestRejectedRequestsDoNotCount() {
	_, err := s.store.Allow(s.at(0), "k", 1, time.Minute)
	s.Require().NoError(err)
	for i := 1; i <= 5; i++ {
		res, err := s.store.Allow(s.at(time.Duration(i)*time.Second), "k", 1, time.Minute)
		s.Require().NoError(err)
		s.False(res.Allowed)
	}
	res, err := s.store.Allow(s.at(time.Minute+time.Second), "k", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *bucketSuite) TestKeysAreIndependentAndResettable() {
	_, err := s.store.Allow(s.at(0), "a", 1, time.Minute)
	s.Require().NoError(err)

	res, err := s.store.Allow(s.at(0), "b", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)

	s.Require().NoError(s.store.Reset(context.Background(), "a"))
	res, err = s.store.Allow(s.at(time.Second), "a", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func TestInMemoryBucketStore(t *testing.T) {
	s := new(bucketSuite)
	s.newStore = func() bucketStore { return NewInMemoryBucketStore() }
	suite.Run(t, s)
}

func TestRedisBucketStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := new(bucketSuite)
	s.newStore = func() bucketStore {
		mr.FlushAll()
		return NewRedisBucketStore(client)
	}
	suite.Run(t, s)
}
