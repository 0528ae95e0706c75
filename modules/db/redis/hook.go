package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidishook"
)

// WithSlowLog wraps client so every command slower than threshold is logged.
// The window-store Lua call sits on the hot path of every request; a slow
// Redis surfaces here before it surfaces as fallback churn.
func WithSlowLog(client rueidis.Client, threshold time.Duration) rueidis.Client {
	return rueidishook.WithHook(client, &slowLogHook{threshold: threshold})
}

type slowLogHook struct {
	threshold time.Duration
}

var _ rueidishook.Hook = (*slowLogHook)(nil)

func (h *slowLogHook) observe(ctx context.Context, start time.Time, cmds ...string) {
	elapsed := time.Since(start)
	if elapsed < h.threshold {
		return
	}
	slog.WarnContext(ctx, "slow redis command",
		slog.Any("command", cmds),
		slog.Duration("elapsed", elapsed),
		slog.Duration("threshold", h.threshold),
	)
}

func firstToken(cmd rueidis.Completed) string {
	if tokens := cmd.Commands(); len(tokens) > 0 {
		return tokens[0]
	}
	return ""
}

func (h *slowLogHook) Do(client rueidis.Client, ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	start := time.Now()
	resp := client.Do(ctx, cmd)
	h.observe(ctx, start, firstToken(cmd))
	return resp
}

func (h *slowLogHook) DoMulti(client rueidis.Client, ctx context.Context, multi ...rueidis.Completed) []rueidis.RedisResult {
	start := time.Now()
	resps := client.DoMulti(ctx, multi...)
	names := make([]string, 0, len(multi))
	for _, cmd := range multi {
		names = append(names, firstToken(cmd))
	}
	h.observe(ctx, start, names...)
	return resps
}

func (h *slowLogHook) DoCache(client rueidis.Client, ctx context.Context, cmd rueidis.Cacheable, ttl time.Duration) rueidis.RedisResult {
	start := time.Now()
	resp := client.DoCache(ctx, cmd, ttl)
	h.observe(ctx, start, "cached")
	return resp
}

func (h *slowLogHook) DoMultiCache(client rueidis.Client, ctx context.Context, multi ...rueidis.CacheableTTL) []rueidis.RedisResult {
	start := time.Now()
	resps := client.DoMultiCache(ctx, multi...)
	h.observe(ctx, start, "multi-cached")
	return resps
}

func (h *slowLogHook) Receive(client rueidis.Client, ctx context.Context, subscribe rueidis.Completed, fn func(msg rueidis.PubSubMessage)) error {
	start := time.Now()
	err := client.Receive(ctx, subscribe, fn)
	h.observe(ctx, start, firstToken(subscribe))
	return err
}

func (h *slowLogHook) DoStream(client rueidis.Client, ctx context.Context, cmd rueidis.Completed) rueidis.RedisResultStream {
	start := time.Now()
	resp := client.DoStream(ctx, cmd)
	h.observe(ctx, start, firstToken(cmd))
	return resp
}

func (h *slowLogHook) DoMultiStream(client rueidis.Client, ctx context.Context, multi ...rueidis.Completed) rueidis.MultiRedisResultStream {
	start := time.Now()
	resp := client.DoMultiStream(ctx, multi...)
	names := make([]string, 0, len(multi))
	for _, cmd := range multi {
		names = append(names, firstToken(cmd))
	}
	h.observe(ctx, start, names...)
	return resp
}
