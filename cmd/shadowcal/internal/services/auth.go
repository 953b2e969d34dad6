package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/xdoubleu/essentia/v2/pkg/communication/httptools"
	"github.com/xdoubleu/essentia/v2/pkg/errortools"
	"github.com/xhit/go-str2duration/v2"
	"shadowcal.xdoubleu.com/cmd/shadowcal/internal/dtos"
	"shadowcal.xdoubleu.com/internal/auth"
	"shadowcal.xdoubleu.com/internal/constants"
	"shadowcal.xdoubleu.com/internal/models"
)

var (
	ErrNotOperator = errors.New("user is not the operator")
	ErrNoSession   = errors.New("no valid session")
)

type AuthService struct {
	supabaseUserID   string
	identity         auth.IdentityProvider
	useSecureCookies bool
	accessExpiry     string
	refreshExpiry    string
}

// SignInWithEmail returns an errortools.UnauthorizedError for rejected
// credentials or a user other than the operator.
func (service *AuthService) SignInWithEmail(
	signInDto *dtos.SignInDto,
) (*auth.Tokens, error) {
	tokens, err := service.identity.SignIn(signInDto.Email, signInDto.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return nil, errortools.NewUnauthorizedError(err)
	}
	if err != nil {
		return nil, err
	}

	if _, err = service.GetUser(tokens.AccessToken); err != nil {
		return nil, errortools.NewUnauthorizedError(err)
	}

	return tokens, nil
}

// GetUser resolves the access token and rejects everyone but the configured
// operator when SUPABASE_USER_ID is set.
func (service *AuthService) GetUser(accessToken string) (*models.User, error) {
	user, err := service.identity.GetUser(accessToken)
	if err != nil {
		return nil, err
	}

	if service.supabaseUserID != "" && user.ID != service.supabaseUserID {
		return nil, ErrNotOperator
	}

	return user, nil
}

func (service *AuthService) SignOut(
	accessToken string,
) (*http.Cookie, *http.Cookie, error) {
	if err := service.identity.SignOut(accessToken); err != nil {
		return nil, nil, err
	}

	return service.deleteCookie(models.AccessScope),
		service.deleteCookie(models.RefreshScope),
		nil
}

func (service *AuthService) GetCookieName(scope models.Scope) string {
	switch scope {
	case models.AccessScope:
		return "accessToken"
	case models.RefreshScope:
		return "refreshToken"
	default:
		panic("invalid scope")
	}
}

func (service *AuthService) CreateCookie(
	scope models.Scope,
	token string,
) (*http.Cookie, error) {
	expiry := service.accessExpiry
	if scope == models.RefreshScope {
		expiry = service.refreshExpiry
	}

	ttl, err := str2duration.ParseDuration(expiry)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     service.GetCookieName(scope),
		Value:    token,
		Expires:  time.Now().Add(ttl),
		SameSite: http.SameSiteStrictMode,
		HttpOnly: true,
		Secure:   service.useSecureCookies,
		Path:     "/",
	}, nil
}

func (service *AuthService) deleteCookie(scope models.Scope) *http.Cookie {
	//nolint:exhaustruct //other fields are optional
	return &http.Cookie{
		Name:     service.GetCookieName(scope),
		Value:    "",
		MaxAge:   -1,
		SameSite: http.SameSiteStrictMode,
		HttpOnly: true,
		Secure:   service.useSecureCookies,
		Path:     "/",
	}
}

// Access lets a request through when its access token belongs to the
// operator. An expired access token is renewed from the refresh cookie.
func (service *AuthService) Access(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := service.currentUser(r)
		if user == nil {
			user = service.refreshTokens(w, r)
		}

		if user == nil {
			httptools.UnauthorizedResponse(
				w,
				r,
				errortools.NewUnauthorizedError(ErrNoSession),
			)
			return
		}

		next(w, r.WithContext(service.contextSetUser(r.Context(), *user)))
	}
}

func (service *AuthService) currentUser(r *http.Request) *models.User {
	accessToken, err := r.Cookie(service.GetCookieName(models.AccessScope))
	if err != nil {
		return nil
	}

	user, err := service.GetUser(accessToken.Value)
	if err != nil {
		return nil
	}

	return user
}

func (service *AuthService) refreshTokens(
	w http.ResponseWriter,
	r *http.Request,
) *models.User {
	refreshCookie, err := r.Cookie(service.GetCookieName(models.RefreshScope))
	if err != nil {
		return nil
	}

	tokens, err := service.identity.Refresh(refreshCookie.Value)
	if err != nil {
		return nil
	}

	user, err := service.GetUser(tokens.AccessToken)
	if err != nil {
		return nil
	}

	for scope, token := range map[models.Scope]string{
		models.AccessScope:  tokens.AccessToken,
		models.RefreshScope: tokens.RefreshToken,
	} {
		cookie, errCookie := service.CreateCookie(scope, token)
		if errCookie != nil {
			return nil
		}
		http.SetCookie(w, cookie)
	}

	return user
}

func (service *AuthService) contextSetUser(
	ctx context.Context,
	user models.User,
) context.Context {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		//nolint:exhaustruct //other fields are optional
		hub.Scope().SetUser(sentry.User{
			ID:    user.ID,
			Email: user.Email,
		})
	}

	return context.WithValue(ctx, constants.UserContextKey, user)
}
