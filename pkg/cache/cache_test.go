package cache_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/JaimeStill/headcount/pkg/cache"
	"github.com/JaimeStill/headcount/pkg/lifecycle"
)

func newCache(t *testing.T) (cache.System, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)

	cfg := &cache.Config{URL: "redis://" + srv.Addr() + "/0"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	c, err := cache.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c, srv
}

func TestGetMiss(t *testing.T) {
	c, _ := newCache(t)

	_, err := c.Get(context.Background(), "absent")
	if !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Get(absent) error = %v, want ErrMiss", err)
	}
}

func TestSetGet(t *testing.T) {
	c, srv := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "current_count", "7", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get(ctx, "current_count")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "7" {
		t.Errorf("get: got %q, want 7", got)
	}
	if v, _ := srv.Get("current_count"); v != "7" {
		t.Errorf("server value: got %q, want 7", v)
	}
}

func TestSetTTL(t *testing.T) {
	c, srv := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	srv.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("expired key error = %v, want ErrMiss", err)
	}
}

func TestServerDown(t *testing.T) {
	c, srv := newCache(t)
	srv.Close()

	_, err := c.Get(context.Background(), "k")
	if err == nil || errors.Is(err, cache.ErrMiss) {
		t.Errorf("Get with server down = %v, want connection error", err)
	}
}

func TestStartLifecycle(t *testing.T) {
	c, _ := newCache(t)
	lc := lifecycle.New()

	if err := c.Start(lc); err != nil {
		t.Fatalf("start: %v", err)
	}
	lc.WaitForStartup()

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestConfigFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     cache.Config
		wantErr bool
	}{
		{name: "defaults", cfg: cache.Config{}},
		{name: "bad url", cfg: cache.Config{URL: "http://nope"}, wantErr: true},
		{name: "bad timeout", cfg: cache.Config{OpTimeout: "soon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("Finalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("TEST_CACHE_URL", "redis://cache:6380/2")

	cfg := &cache.Config{}
	if err := cfg.Finalize(&cache.Env{URL: "TEST_CACHE_URL"}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Errorf("options: got addr %s db %d", opts.Addr, opts.DB)
	}
}
