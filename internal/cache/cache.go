package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"cedra_storefront/internal/models"
)

const ProductCacheTTL = 10 * time.Minute

// ProductCache garde les fiches produit en Redis.
// Un client nil désactive le cache sans erreur.
type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ProductCacheTTL}
}

func productKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// Get retourne le produit en cache; ok=false si absent ou illisible
func (c *ProductCache) Get(ctx context.Context, id int64) (*models.Product, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		return nil, false
	}

	var p models.Product
	if json.Unmarshal(data, &p) != nil {
		return nil, false
	}
	return &p, true
}

func (c *ProductCache) Set(ctx context.Context, p *models.Product) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(p.ID), data, c.ttl).Err()
}

// Invalidate supprime la fiche après une écriture admin
func (c *ProductCache) Invalidate(ctx context.Context, id int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	err := c.rdb.Del(ctx, productKey(id)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
