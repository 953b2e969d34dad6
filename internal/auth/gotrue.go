package auth

import (
	"errors"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"shadowcal.xdoubleu.com/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type goTrueIdentity struct {
	client gotrue.Client
}

func NewGoTrueIdentity(client gotrue.Client) IdentityProvider {
	return goTrueIdentity{client: client}
}

func (identity goTrueIdentity) SignIn(email string, password string) (*Tokens, error) {
	//nolint:exhaustruct //don't need other fields
	response, err := identity.client.Token(types.TokenRequest{
		GrantType: "password",
		Email:     email,
		Password:  password,
	})
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Tokens{
		AccessToken:  response.AccessToken,
		RefreshToken: response.RefreshToken,
	}, nil
}

func (identity goTrueIdentity) Refresh(refreshToken string) (*Tokens, error) {
	//nolint:exhaustruct //don't need other fields
	response, err := identity.client.Token(types.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
	if err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:  response.AccessToken,
		RefreshToken: response.RefreshToken,
	}, nil
}

func (identity goTrueIdentity) GetUser(accessToken string) (*models.User, error) {
	response, err := identity.client.WithToken(accessToken).GetUser()
	if err != nil {
		return nil, err
	}

	user := models.UserFromTypesUser(response.User)
	return &user, nil
}

func (identity goTrueIdentity) SignOut(accessToken string) error {
	return identity.client.WithToken(accessToken).Logout()
}
