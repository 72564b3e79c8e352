package repository

import "errors"

var (
	ErrNotFound       = errors.New("introuvable")
	ErrDuplicateEmail = errors.New("email déjà utilisé")
)

// uniqueViolation est le code SQLSTATE renvoyé par Postgres sur une contrainte UNIQUE
const uniqueViolation = "23505"
