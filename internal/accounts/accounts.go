// Package accounts regroupe l'inscription, l'authentification et le
// provisionnement de l'administrateur.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/models"
	"cedra_storefront/internal/repository"
	"cedra_storefront/internal/utils"
)

var (
	ErrInvalidCredentials  = errors.New("identifiants invalides")
	ErrNotAdmin            = errors.New("accès administrateur requis")
	ErrAdminNotProvisioned = errors.New("aucun administrateur: définissez ADMIN_EMAIL et ADMIN_PASSWORD")
)

const (
	minPasswordLen = 6
	maxNameLen     = 100
)

// ValidationError associe un champ du formulaire à son message
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "formulaire invalide (" + strings.Join(parts, ", ") + ")"
}

type Store interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	CountAdmins(ctx context.Context) (int, error)
}

type Registration struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}

type Service struct {
	users Store
	log   logrus.FieldLogger
}

func NewService(users Store, log logrus.FieldLogger) *Service {
	return &Service{users: users, log: log}
}

// Validate contrôle le formulaire d'inscription
func (r Registration) Validate() error {
	fields := map[string]string{}

	name := strings.TrimSpace(r.Name)
	switch {
	case name == "":
		fields["name"] = "nom requis"
	case utf8.RuneCountInString(name) > maxNameLen:
		fields["name"] = fmt.Sprintf("%d caractères maximum", maxNameLen)
	}

	if addr, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil || addr.Address != strings.TrimSpace(r.Email) {
		fields["email"] = "email invalide"
	}

	if utf8.RuneCountInString(r.Password) < minPasswordLen {
		fields["password"] = fmt.Sprintf("%d caractères minimum", minPasswordLen)
	}
	if r.Confirm != r.Password {
		fields["confirm"] = "les mots de passe ne correspondent pas"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Register crée un compte client
func (s *Service) Register(ctx context.Context, r Registration) (*models.User, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash mot de passe: %w", err)
	}

	u := &models.User{
		Name:         strings.TrimSpace(r.Name),
		Email:        r.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &ValidationError{Fields: map[string]string{"email": "un compte avec cet email existe déjà"}}
		}
		return nil, err
	}

	s.log.WithField("user_id", u.ID).Info("✅ Compte créé")
	return u, nil
}

// Authenticate vérifie email + mot de passe. Un email inconnu et un mauvais
// mot de passe renvoient la même erreur.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := utils.VerifyPassword(password, u.PasswordHash)
	if err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("⚠️ Hash de mot de passe illisible")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) AuthenticateAdmin(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin {
		return nil, ErrNotAdmin
	}
	return u, nil
}

// EnsureAdmin garantit qu'au moins un administrateur existe au démarrage.
// Sans administrateur ni identifiants fournis, le démarrage doit échouer.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	n, err := s.users.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("comptage administrateurs: %w", err)
	}
	if n > 0 {
		return nil
	}
	if email == "" || password == "" {
		return ErrAdminNotProvisioned
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash mot de passe admin: %w", err)
	}
	if name == "" {
		name = "Admin"
	}

	admin := &models.User{Name: name, Email: email, PasswordHash: hash, IsAdmin: true}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("création administrateur: %w", err)
	}

	s.log.WithField("email", admin.Email).Info("👑 Administrateur initial créé")
	return nil
}
