package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const (
	MaxImageSize   = 5 << 20
	SignedURLTTL   = time.Hour
	imageKeyPrefix = "products/"
	localURLPrefix = "/uploads/"
)

var (
	ErrImageTooLarge   = errors.New("image trop volumineuse (5 Mo max)")
	ErrImageType       = errors.New("format d'image non supporté")
	ErrInvalidImageKey = errors.New("clé d'image invalide")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore stocke les images produit et fournit l'URL pour les afficher
type ImageStore interface {
	Save(ctx context.Context, file *multipart.FileHeader) (string, error)
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// newImageKey valide le fichier et génère une clé unique products/<uuid>.<ext>
func newImageKey(file *multipart.FileHeader) (string, string, error) {
	if file.Size > MaxImageSize {
		return "", "", ErrImageTooLarge
	}
	contentType := strings.ToLower(file.Header.Get("Content-Type"))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", ErrImageType
	}
	return imageKeyPrefix + uuid.NewString() + ext, contentType, nil
}

func validKey(key string) bool {
	return strings.HasPrefix(key, imageKeyPrefix) && path.Clean(key) == key && !strings.Contains(key, "..")
}

// MinIOImageStore stocke dans un bucket et sert via URL signée
type MinIOImageStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOImageStore(client *minio.Client, bucket string) *MinIOImageStore {
	return &MinIOImageStore{client: client, bucket: bucket}
}

func (s *MinIOImageStore) Save(ctx context.Context, file *multipart.FileHeader) (string, error) {
	key, contentType, err := newImageKey(file)
	if err != nil {
		return "", err
	}

	f, err := file.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, s.bucket, key, f, file.Size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload minio: %w", err)
	}
	return key, nil
}

func (s *MinIOImageStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidImageKey
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// URL génère une URL signée valable une heure
func (s *MinIOImageStore) URL(ctx context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidImageKey
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, SignedURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("url signée: %w", err)
	}
	return u.String(), nil
}

// LocalImageStore écrit sur disque quand MinIO n'est pas configuré;
// le routeur sert le dossier sous /uploads/.
type LocalImageStore struct {
	dir string
}

func NewLocalImageStore(dir string) *LocalImageStore {
	return &LocalImageStore{dir: dir}
}

func (s *LocalImageStore) Dir() string { return s.dir }

func (s *LocalImageStore) Save(_ context.Context, file *multipart.FileHeader) (string, error) {
	key, _, err := newImageKey(file)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	return key, out.Close()
}

func (s *LocalImageStore) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidImageKey
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalImageStore) URL(_ context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidImageKey
	}
	return localURLPrefix + key, nil
}
