// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err() //nolint:wrapcheck // wrapped by ConnectRedis
}

// ConnectRedis opens a Redis client from a redis:// or rediss:// URL and
// pings it with the same backoff as Connect.
func ConnectRedis(ctx context.Context, redisURL string, opts ConnectOptions) (*goredis.Client, error) {
	ropts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}

	client := goredis.NewClient(ropts)
	if err := waitForPing(ctx, redisPinger{client: client}, opts); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", ropts.Addr).
			With("attempts", opts.Attempts).
			Wrap(err)
	}
	return client, nil
}
