package main

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/handler"
)

// Seed is the content of a seed file.
type Seed struct {
	Products []SeedProduct `yaml:"products"`
	APIKeys  []SeedAPIKey  `yaml:"api_keys"`
}

// SeedProduct is a catalog entry.
type SeedProduct struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Quantity    int    `yaml:"quantity"`
}

// SeedAPIKey is a plaintext API key bound to a user.
type SeedAPIKey struct {
	ID     string `yaml:"id"`
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	UserID string `yaml:"user_id"`
	Role   string `yaml:"role"`
}

// Target receives seeded records.
type Target struct {
	Products product.Writer
	APIKeys  interface {
		Upsert(ctx context.Context, k *auth.APIKeyInfo) error
	}
}

// WithCache returns t with product writes invalidating cache.
func (t Target) WithCache(cache product.Cache) Target {
	t.Products = product.NewInvalidatingWriter(t.Products, cache)
	return t
}

// LoadSeed reads and parses the seed file at path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parse seed file")
	}
	return &s, nil
}

// Apply validates every record before upserting any of them.
func Apply(ctx context.Context, lg *zap.Logger, t Target, s *Seed, pepper []byte) error {
	products := make([]*product.Product, 0, len(s.Products))
	for _, sp := range s.Products {
		p, err := sp.product()
		if err != nil {
			return err
		}
		products = append(products, p)
	}
	keys := make([]*auth.APIKeyInfo, 0, len(s.APIKeys))
	for _, sk := range s.APIKeys {
		k, err := sk.apiKey(pepper)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}

	for _, p := range products {
		if err := t.Products.Upsert(ctx, p); err != nil {
			return err
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	for _, k := range keys {
		if err := t.APIKeys.Upsert(ctx, k); err != nil {
			return err
		}
		lg.Info("Upserted API key", zap.String("id", k.ID), zap.String("user_id", k.UserID), zap.String("role", string(k.Role)))
	}
	return nil
}

func (sp SeedProduct) product() (*product.Product, error) {
	if sp.ID == "" || sp.Name == "" {
		return nil, errors.Errorf("product %q: id and name are required", sp.ID)
	}
	price, err := decimal.NewFromString(sp.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "product %q price", sp.ID)
	}
	if price.IsNegative() {
		return nil, errors.Errorf("product %q: negative price", sp.ID)
	}
	if sp.Quantity < 0 {
		return nil, errors.Errorf("product %q: negative quantity", sp.ID)
	}
	return &product.Product{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		Price:       price,
		Quantity:    sp.Quantity,
	}, nil
}

func (sk SeedAPIKey) apiKey(pepper []byte) (*auth.APIKeyInfo, error) {
	if sk.ID == "" || sk.Key == "" || sk.UserID == "" {
		return nil, errors.Errorf("api key %q: id, key and user_id are required", sk.ID)
	}
	role, err := auth.ParseRole(sk.Role)
	if err != nil {
		return nil, errors.Wrapf(err, "api key %q", sk.ID)
	}
	return &auth.APIKeyInfo{
		ID:      sk.ID,
		KeyHash: handler.HashAPIKey(pepper, sk.Key),
		Name:    sk.Name,
		UserID:  sk.UserID,
		Role:    role,
	}, nil
}
