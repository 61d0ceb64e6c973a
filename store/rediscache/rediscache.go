// Package rediscache puts a Redis read-through cache in front of the
// department directory. Approval routing walks the hierarchy on every
// submit, approve and escalate; the tree changes rarely.
//
// Cache failures never fail a read: the call falls through to the wrapped
// directory and the error is logged. Writes go to the wrapped directory
// first and then drop every cached department and hierarchy, so a stale
// chain lives at most until the next write or the TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

const (
	DefaultTTL    = 10 * time.Minute
	DefaultPrefix = "incentive:"
)

var _ incentive.Directory = (*Directory)(nil)

// Directory decorates an incentive.Directory. Employees and plans pass
// through untouched.
type Directory struct {
	incentive.Directory

	client redis.Cmdable
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

type Option func(*Directory)

func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(d *Directory) { d.prefix = prefix }
}

func WithLogger(log logger.Logger) Option {
	return func(d *Directory) { d.log = log }
}

func New(next incentive.Directory, client redis.Cmdable, opts ...Option) *Directory {
	d := &Directory{
		Directory: next,
		client:    client,
		ttl:       DefaultTTL,
		prefix:    DefaultPrefix,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("rediscache")
	return d
}

// Connect dials addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (d *Directory) GetDepartment(ctx context.Context, id incentive.DepartmentID) (*incentive.Department, error) {
	key := d.departmentKey(id)
	var cached incentive.Department
	if d.load(ctx, key, &cached) {
		return &cached, nil
	}

	dept, err := d.Directory.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, dept)
	return dept, nil
}

func (d *Directory) GetHierarchy(ctx context.Context, id incentive.DepartmentID) ([]incentive.Department, error) {
	key := d.hierarchyKey(id)
	var cached []incentive.Department
	if d.load(ctx, key, &cached) {
		return cached, nil
	}

	chain, err := d.Directory.GetHierarchy(ctx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, chain)
	return chain, nil
}

// PutDepartment writes through and invalidates. A moved department changes
// the chain of every descendant, so all hierarchy keys go.
func (d *Directory) PutDepartment(ctx context.Context, dept incentive.Department) error {
	if err := d.Directory.PutDepartment(ctx, dept); err != nil {
		return err
	}
	if err := d.Invalidate(ctx); err != nil {
		d.log.Warn(ctx, "cache invalidation failed",
			logger.String("department_id", string(dept.ID)), logger.Error(err))
	}
	return nil
}

// Invalidate drops every cached department and hierarchy.
func (d *Directory) Invalidate(ctx context.Context) error {
	for _, pattern := range []string{d.prefix + "dept:*", d.prefix + "hierarchy:*"} {
		iter := d.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := d.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Directory) departmentKey(id incentive.DepartmentID) string {
	return d.prefix + "dept:" + string(id)
}

func (d *Directory) hierarchyKey(id incentive.DepartmentID) string {
	return d.prefix + "hierarchy:" + string(id)
}

func (d *Directory) load(ctx context.Context, key string, dst any) bool {
	raw, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		d.log.Warn(ctx, "cache read failed", logger.String("key", key), logger.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		d.log.Warn(ctx, "cache entry unreadable", logger.String("key", key), logger.Error(err))
		return false
	}
	return true
}

func (d *Directory) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.client.Set(ctx, key, raw, d.ttl).Err(); err != nil {
		d.log.Warn(ctx, "cache write failed", logger.String("key", key), logger.Error(err))
	}
}
