package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/config"
)

// Clients regroupe les connexions partagées par toute l'application.
// Seul Postgres est obligatoire, les autres restent nil si non configurés.
type Clients struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Elastic  *elasticsearch.Client
	MinIO    *minio.Client
	Scylla   *gocql.Session
}

// Connect initialise toutes les connexions
func Connect(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Clients, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clients := &Clients{}

	// 1. Postgres (catalogue, comptes, commandes)
	db, err := OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	clients.Postgres = db
	log.Info("✅ Connecté à Postgres")

	if err := RunMigrations(db); err != nil {
		clients.Close()
		return nil, err
	}
	log.Info("✅ Migrations appliquées")

	// 2. Redis
	if cfg.RedisHost != "" {
		if clients.Redis, err = connectRedis(ctx, cfg); err != nil {
			clients.Close()
			return nil, err
		}
		log.Info("✅ Connecté à Redis")
	} else {
		log.Warn("⚠️ REDIS_HOST absent: cache et rate limiting désactivés")
	}

	// 3. Elasticsearch
	if cfg.ElasticURL != "" {
		if clients.Elastic, err = connectElastic(cfg); err != nil {
			clients.Close()
			return nil, err
		}
		log.Info("✅ Connecté à Elasticsearch")
	} else {
		log.Warn("⚠️ ELASTIC_URL absent: recherche plein texte via Postgres uniquement")
	}

	// 4. MinIO
	if cfg.MinIOEndpoint != "" {
		if clients.MinIO, err = connectMinIO(ctx, cfg, log); err != nil {
			clients.Close()
			return nil, err
		}
		log.WithField("endpoint", cfg.MinIOEndpoint).Info("✅ Connecté à MinIO")
	} else {
		log.WithField("dir", cfg.UploadDir).Warn("⚠️ MINIO_ENDPOINT absent: images stockées localement")
	}

	// 5. ScyllaDB (journal d'audit)
	if len(cfg.ScyllaHosts) > 0 && cfg.ScyllaAuditKeyspace != "" {
		if clients.Scylla, err = connectScylla(cfg); err != nil {
			clients.Close()
			return nil, err
		}
		log.WithField("keyspace", cfg.ScyllaAuditKeyspace).Info("✅ Session ScyllaDB ouverte")
	} else {
		log.Warn("⚠️ ScyllaDB non configuré: journal d'audit désactivé")
	}

	return clients, nil
}

// OpenPostgres ouvre le pool de connexions Postgres
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ouverture postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisHost,
		Password:     cfg.RedisPassword,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connexion redis: %w", err)
	}
	return client, nil
}

func connectElastic(cfg config.Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ElasticURL},
		Username:  cfg.ElasticUser,
		Password:  cfg.ElasticPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("création client elasticsearch: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connexion elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("connexion elasticsearch: %s", res.Status())
	}

	return client, nil
}

func connectMinIO(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*minio.Client, error) {
	client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connexion minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinIOBucket)
	if err != nil {
		return nil, fmt.Errorf("vérification bucket minio: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("création bucket minio: %w", err)
		}
		log.WithField("bucket", cfg.MinIOBucket).Info("🪣 Bucket créé")
	}

	return client, nil
}

// Close ferme toutes les connexions ouvertes
func (c *Clients) Close() {
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		c.Redis.Close()
	}
	if c.Scylla != nil {
		c.Scylla.Close()
	}
}
