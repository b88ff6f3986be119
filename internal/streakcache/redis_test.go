package streakcache

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestKeyPrefix(t *testing.T) {
	c := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	defer c.Close()
	if got := c.key("h1"); got != "daystreak:streak:h1" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestDialRejectsBadURL(t *testing.T) {
	if _, err := Dial(context.Background(), "not a url"); err == nil {
		t.Error("expected error for invalid url")
	}
}

// Requires DAYSTREAK_TEST_REDIS, e.g. redis://localhost:6379/15
func TestRaiseIsHighWaterMark(t *testing.T) {
	url := os.Getenv("DAYSTREAK_TEST_REDIS")
	if url == "" {
		t.Skip("DAYSTREAK_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	id := uuid.New().String()
	defer c.Delete(ctx, id)

	cur, longest, err := c.Raise(ctx, id, 5, 5)
	if err != nil || cur != 5 || longest != 5 {
		t.Fatalf("Raise = (%d, %d, %v)", cur, longest, err)
	}
	cur, longest, err = c.Raise(ctx, id, 3, 4)
	if err != nil || cur != 5 || longest != 5 {
		t.Errorf("lower values must not win: (%d, %d, %v)", cur, longest, err)
	}
	if err := c.Set(ctx, id, 2, 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	cur, _, _ = c.Raise(ctx, id, 0, 0)
	if cur != 2 {
		t.Errorf("expected Set to lower current to 2, got %d", cur)
	}
}
