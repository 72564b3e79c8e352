package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter compte les requêtes et les échecs dans Redis.
// Sans client Redis, tout est autorisé.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.rdb != nil
}

// Allow incrémente le compteur de la fenêtre et indique si la requête passe.
// remaining est le nombre de requêtes restantes après celle-ci.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (allowed bool, remaining int, err error) {
	if !l.Enabled() {
		return true, max, nil
	}

	k := "rate:" + key
	// la fenêtre démarre à la première requête; NX ne repousse pas l'échéance
	// mais pose un TTL sur un compteur qui n'en aurait pas
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, max, fmt.Errorf("rate limit %s: %w", key, err)
	}

	n := int(incr.Val())
	if n > max {
		return false, 0, nil
	}
	return true, max - n, nil
}

// Cooldown retourne la durée de blocage restante (0 si non bloqué)
func (l *Limiter) Cooldown(ctx context.Context, key string) (time.Duration, error) {
	if !l.Enabled() {
		return 0, nil
	}
	ttl, err := l.rdb.TTL(ctx, "cooldown:"+key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure compte un échec; au-delà de max, la clé passe en cooldown.
// Retourne le nombre d'essais restants.
func (l *Limiter) RecordFailure(ctx context.Context, key string, max int, cooldown time.Duration) (int, error) {
	if !l.Enabled() {
		return max, nil
	}

	k := "failures:" + key
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, cooldown)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	n := int(incr.Val())
	if n >= max {
		if err := l.rdb.Set(ctx, "cooldown:"+key, "1", cooldown).Err(); err != nil {
			return 0, err
		}
		l.rdb.Del(ctx, k)
		return 0, nil
	}
	return max - n, nil
}

// Reset efface échecs et cooldown, après un succès
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if !l.Enabled() {
		return nil
	}
	return l.rdb.Del(ctx, "failures:"+key, "cooldown:"+key).Err()
}
