package services

import (
	"github.com/xdoubleu/essentia/v2/pkg/config"
	"shadowcal.xdoubleu.com/internal/auth"
	cfg "shadowcal.xdoubleu.com/internal/config"
)

type Services struct {
	Auth *AuthService
}

func New(
	cfg cfg.Config,
	identity auth.IdentityProvider,
) *Services {
	return &Services{
		Auth: &AuthService{
			supabaseUserID:   cfg.SupabaseUserID,
			identity:         identity,
			useSecureCookies: cfg.Env == config.ProdEnv,
			accessExpiry:     cfg.AccessExpiry,
			refreshExpiry:    cfg.RefreshExpiry,
		},
	}
}
