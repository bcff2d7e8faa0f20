package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingDirectory struct {
	known map[string]bool
	calls int
	err   error
}

func (d *countingDirectory) Exists(ctx context.Context, tenant, ref string) (bool, error) {
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	return d.known[tenant+"/"+ref], nil
}

func setup(t *testing.T, dir *countingDirectory) (*EngagementCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewEngagementCache(client, dir, time.Minute, nil), s
}

func TestEngagementCacheCachesHits(t *testing.T) {
	dir := &countingDirectory{known: map[string]bool{"acme/eng-1": true}}
	c, s := setup(t, dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.Exists(ctx, "acme", "eng-1")
		if err != nil || !ok {
			t.Fatalf("Exists = %v, %v", ok, err)
		}
	}
	if dir.calls != 1 {
		t.Fatalf("backing directory called %d times", dir.calls)
	}
	if !s.Exists("engagement:acme:eng-1") {
		t.Fatal("key not written")
	}

	s.FastForward(2 * time.Minute)
	_, _ = c.Exists(ctx, "acme", "eng-1")
	if dir.calls != 2 {
		t.Fatalf("expected refetch after ttl, calls=%d", dir.calls)
	}
}

func TestEngagementCacheDoesNotCacheMisses(t *testing.T) {
	dir := &countingDirectory{known: map[string]bool{}}
	c, _ := setup(t, dir)
	ctx := context.Background()

	ok, _ := c.Exists(ctx, "acme", "eng-2")
	if ok {
		t.Fatal("unknown engagement reported as existing")
	}
	dir.known["acme/eng-2"] = true
	ok, _ = c.Exists(ctx, "acme", "eng-2")
	if !ok {
		t.Fatal("newly registered engagement hidden by cached miss")
	}
}

func TestEngagementCacheFallsThroughWhenRedisDown(t *testing.T) {
	dir := &countingDirectory{known: map[string]bool{"acme/eng-1": true}}
	c, s := setup(t, dir)
	s.Close()

	ok, err := c.Exists(context.Background(), "acme", "eng-1")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}

func TestEngagementCachePropagatesDirectoryErrors(t *testing.T) {
	boom := errors.New("db down")
	c, _ := setup(t, &countingDirectory{err: boom})
	if _, err := c.Exists(context.Background(), "acme", "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRedisChecker(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	chk := RedisChecker{Client: client}
	if err := chk.Check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	s.Close()
	if err := chk.Check(context.Background()); err == nil {
		t.Fatal("expected failure after close")
	}
}
