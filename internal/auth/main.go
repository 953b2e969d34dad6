package auth

import (
	"net/http"

	"shadowcal.xdoubleu.com/internal/models"
)

// Service guards operator endpoints. Access stores the signed in
// models.User under constants.UserContextKey before calling next.
type Service interface {
	Access(next http.HandlerFunc) http.HandlerFunc
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// IdentityProvider is the subset of the identity backend the admin
// sign-in needs.
type IdentityProvider interface {
	SignIn(email string, password string) (*Tokens, error)
	Refresh(refreshToken string) (*Tokens, error)
	GetUser(accessToken string) (*models.User, error)
	SignOut(accessToken string) error
}
