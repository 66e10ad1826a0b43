// Package redis implements the product read cache on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/product"
)

const keyPrefix = "kart:product:"

// Config configures the Redis connection.
type Config struct {
	Addr     string `default:"" usage:"Redis address, empty disables the product cache"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
	// TTL bounds how long an entry can outlive a missed invalidation.
	TTL time.Duration `default:"5m" usage:"Product cache entry lifetime"`
	// InvalidateRepeat is the delay of the second invalidation after a
	// stock mutation. It bounds the staleness left by a read that raced
	// the mutation.
	InvalidateRepeat time.Duration `default:"500ms" usage:"Delay before repeating a product cache invalidation, 0 disables"`
}

var _ product.Cache = (*ProductCache)(nil)

// ProductCache stores product records as JSON documents with a TTL.
type ProductCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// NewProductCache returns a cache on client. A non-positive ttl keeps
// entries until invalidated.
func NewProductCache(client redis.UniversalClient, ttl time.Duration) *ProductCache {
	if ttl < 0 {
		ttl = 0
	}
	return &ProductCache{client: client, ttl: ttl}
}

func key(id string) string { return keyPrefix + id }

// Get returns the cached product. The second result is false on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (*product.Product, bool, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get product %q", id)
	}

	p, err := decodeProduct(data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode product %q", id)
	}
	return p, true, nil
}

// Set stores p under its id.
func (c *ProductCache) Set(ctx context.Context, p *product.Product) error {
	if err := c.client.Set(ctx, key(p.ID), encodeProduct(p), c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set product %q", p.ID)
	}
	return nil
}

// Invalidate removes the given products.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "delete products")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func encodeProduct(p *product.Product) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.FieldStart("created_at")
	e.Int64(p.CreatedAt.UnixNano())
	e.FieldStart("updated_at")
	e.Int64(p.UpdatedAt.UnixNano())
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func decodeProduct(data []byte) (*product.Product, error) {
	var p product.Product
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, k string) error {
		var err error
		switch k {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "quantity":
			p.Quantity, err = d.Int()
		case "created_at":
			var n int64
			if n, err = d.Int64(); err == nil {
				p.CreatedAt = time.Unix(0, n).UTC()
			}
		case "updated_at":
			var n int64
			if n, err = d.Int64(); err == nil {
				p.UpdatedAt = time.Unix(0, n).UTC()
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", k)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &p, nil
}
