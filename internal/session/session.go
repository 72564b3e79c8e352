// Package session encapsule le cookie signé qui porte le panier et l'utilisateur connecté.
package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	Name      = "cedra_session"
	userIDKey = "user_id"
	maxAge    = 7 * 24 * 3600
)

func NewStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Get retourne la session de la requête. Un cookie invalide (secret changé)
// donne une session neuve plutôt qu'une erreur.
func Get(c *gin.Context, store sessions.Store) *sessions.Session {
	s, err := store.Get(c.Request, Name)
	if err != nil && s == nil {
		s = sessions.NewSession(store, Name)
	}
	return s
}

func Save(c *gin.Context, s *sessions.Session) error {
	return s.Save(c.Request, c.Writer)
}

func UserID(s *sessions.Session) int64 {
	id, _ := s.Values[userIDKey].(int64)
	return id
}

func SetUserID(s *sessions.Session, id int64) {
	s.Values[userIDKey] = id
}

// ClearUser déconnecte l'utilisateur; le panier reste dans la session
func ClearUser(s *sessions.Session) {
	delete(s.Values, userIDKey)
}
