package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config regroupe toute la configuration lue depuis l'environnement
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string

	SessionSecret string
	CookieSecure  bool
	JWTSecret     string
	JWTTTL        time.Duration
	CORSOrigins   []string

	RedisHost     string
	RedisPassword string

	ElasticURL      string
	ElasticUser     string
	ElasticPassword string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	UploadDir      string

	ScyllaHosts         []string
	ScyllaAuditKeyspace string
	ScyllaAuditRole     string
	ScyllaAuditPassword string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	ChatTimeout   time.Duration

	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// Load charge le fichier .env s'il existe. Son absence n'est pas une erreur.
func Load(log logrus.FieldLogger) {
	if err := godotenv.Load(".env"); err != nil {
		log.Info("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
		return
	}
	log.Info("✅ Fichier .env chargé avec succès")
}

// FromEnv construit la configuration typée à partir des variables d'environnement
func FromEnv() (Config, error) {
	cfg := Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		CORSOrigins:   splitList(os.Getenv("CORS_ORIGINS")),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ElasticURL:      os.Getenv("ELASTIC_URL"),
		ElasticUser:     os.Getenv("ELASTIC_USER"),
		ElasticPassword: os.Getenv("ELASTIC_PASSWORD"),

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "cedra-images"),
		UploadDir:      getEnv("UPLOAD_DIR", "static/uploads"),

		ScyllaHosts:         splitList(os.Getenv("SCYLLA_HOSTS")),
		ScyllaAuditKeyspace: os.Getenv("SCYLLA_KS_AUDIT_KEYSPACE"),
		ScyllaAuditRole:     os.Getenv("SCYLLA_KS_AUDIT_ROLE"),
		ScyllaAuditPassword: os.Getenv("SCYLLA_KS_AUDIT_PASSWORD"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "noreply@cedra.local"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	var err error
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", false); err != nil {
		return cfg, err
	}
	if cfg.MinIOUseSSL, err = getBool("MINIO_USE_SSL", false); err != nil {
		return cfg, err
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return cfg, err
	}
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.ChatTimeout, err = getDuration("CHAT_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate vérifie les valeurs obligatoires
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL manquant"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET manquant"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET manquant"))
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL et ADMIN_PASSWORD doivent être fournis ensemble"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s invalide: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s invalide: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s invalide: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
