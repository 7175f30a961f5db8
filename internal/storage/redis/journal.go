// Package redis keeps the local order journal in Redis so that demo orders
// and cancel markers survive restarts and are shared between replicas.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/cartd/internal/domain/checkout"
)

const keyPrefix = "cartd:"

var _ checkout.Journal = (*Journal)(nil)

// Journal implements checkout.Journal. Orders are kept in a list per owner,
// cancel markers in a set per owner.
type Journal struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

// NewClient parses a redis:// URL and connects.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewJournal returns a Journal. Keys of an owner expire ttl after the last
// write; zero keeps them forever.
func NewJournal(rdb goredis.Cmdable, ttl time.Duration) *Journal {
	return &Journal{rdb: rdb, ttl: ttl}
}

func ordersKey(owner string) string    { return keyPrefix + "orders:" + owner }
func cancelledKey(owner string) string { return keyPrefix + "cancelled:" + owner }

// Append records a local order.
func (j *Journal) Append(ctx context.Context, owner string, o checkout.Order) error {
	key := ordersKey(owner)
	_, err := j.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, key, encodeOrder(o))
		if j.ttl > 0 {
			p.Expire(ctx, key, j.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending order %q: %w", o.ID, err)
	}
	return nil
}

// List returns the local orders of owner in insertion order.
func (j *Journal) List(ctx context.Context, owner string) ([]checkout.Order, error) {
	raw, err := j.rdb.LRange(ctx, ordersKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	out := make([]checkout.Order, 0, len(raw))
	for _, s := range raw {
		o, err := decodeOrder([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// MarkCancelled adds a cancel marker for orderID.
func (j *Journal) MarkCancelled(ctx context.Context, owner, orderID string) error {
	key := cancelledKey(owner)
	_, err := j.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SAdd(ctx, key, orderID)
		if j.ttl > 0 {
			p.Expire(ctx, key, j.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("marking order %q cancelled: %w", orderID, err)
	}
	return nil
}

// Cancelled returns the ids carrying a cancel marker.
func (j *Journal) Cancelled(ctx context.Context, owner string) ([]string, error) {
	ids, err := j.rdb.SMembers(ctx, cancelledKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing cancel markers: %w", err)
	}
	return ids, nil
}
