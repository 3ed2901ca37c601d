package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")

	// ErrInvalidToken indicates the token failed validation. It is always
	// fatal to the request or connection attempt and never retried.
	ErrInvalidToken = errors.New("auth: invalid token")
)
