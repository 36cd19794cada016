package captcha

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"admincore.org/internal/cache"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(cache.NewRedis(client), opts...), mr
}

func TestIssueStoresLowercaseAnswer(t *testing.T) {
	store, mr := newTestStore(t)

	ch, err := store.Issue(context.Background(), KindRaw, 0, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if ch.ID == "" {
		t.Fatal("expected challenge id")
	}
	if ch.Data == "" {
		t.Fatal("expected rendered challenge")
	}
	if strings.HasPrefix(ch.Data, "data:image/png;base64,") {
		t.Fatal("raw kind must not return a data URL")
	}

	answer, err := mr.Get(keyPrefix + ch.ID)
	if err != nil {
		t.Fatalf("stored answer missing: %v", err)
	}
	if answer != strings.ToLower(answer) {
		t.Fatalf("answer %q not normalized to lowercase", answer)
	}
	if ttl := mr.TTL(keyPrefix + ch.ID); ttl != DefaultTTL {
		t.Fatalf("TTL=%v, want %v", ttl, DefaultTTL)
	}
}

func TestIssueBase64Kind(t *testing.T) {
	store, _ := newTestStore(t)

	ch, err := store.Issue(context.Background(), KindBase64, 200, 80)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(ch.Data, "data:image/png;base64,") {
		t.Fatalf("expected data URL, got %q", ch.Data[:min(len(ch.Data), 40)])
	}
}

func TestValidateCaseInsensitiveAndSingleUse(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set(keyPrefix+"c1", "7gkq")

	ok, err := store.Validate(ctx, "c1", "7GKQ")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Fatal("case-insensitive match must succeed")
	}

	// The first success consumes the challenge.
	ok, err = store.Validate(ctx, "c1", "7GKQ")
	if err != nil {
		t.Fatalf("Validate second: %v", err)
	}
	if ok {
		t.Fatal("challenge must be single-use")
	}
}

func TestValidateRejections(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set(keyPrefix+"c2", "1234")

	cases := []struct {
		name  string
		id    string
		value string
	}{
		{"empty value", "c2", ""},
		{"whitespace value", "c2", "   "},
		{"wrong value", "c2", "9999"},
		{"unknown id", "missing", "1234"},
		{"empty id", "", "1234"},
	}
	for _, tc := range cases {
		ok, err := store.Validate(ctx, tc.id, tc.value)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ok {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}

	// Failed attempts must not consume the challenge.
	ok, err := store.Validate(ctx, "c2", "1234")
	if err != nil {
		t.Fatalf("Validate after failures: %v", err)
	}
	if !ok {
		t.Fatal("challenge should survive failed attempts")
	}
}

func TestValidateExpiredChallenge(t *testing.T) {
	store, mr := newTestStore(t, WithTTL(time.Second))
	ctx := context.Background()

	ch, err := store.Issue(ctx, KindRaw, 0, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	answer, err := mr.Get(keyPrefix + ch.ID)
	if err != nil {
		t.Fatalf("stored answer: %v", err)
	}

	mr.FastForward(2 * time.Second)

	ok, err := store.Validate(ctx, ch.ID, answer)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("expired challenge must not validate")
	}
}
