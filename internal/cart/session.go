package cart

import (
	"encoding/gob"

	"github.com/gorilla/sessions"
)

const sessionKey = "cart"

func init() {
	// le CookieStore encode les valeurs avec gob
	gob.Register(map[string]int{})
}

// Load lit le panier de la session; une valeur absente ou corrompue donne un panier vide
func Load(s *sessions.Session) *Cart {
	m, _ := s.Values[sessionKey].(map[string]int)
	return FromMap(m)
}

// Save écrit le panier dans la session. L'appelant doit ensuite appeler s.Save.
func Save(s *sessions.Session, c *Cart) {
	if c.IsEmpty() {
		delete(s.Values, sessionKey)
		return
	}
	s.Values[sessionKey] = c.Map()
}
