package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity est l'utilisateur authentifié attaché à une requête
type Identity struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin}
}
