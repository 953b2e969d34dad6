package main

import (
	"fmt"
	"net/http"

	"github.com/xdoubleu/essentia/v2/pkg/communication/httptools"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/cmd/shadowcal/internal/dtos"
	"shadowcal.xdoubleu.com/internal/models"
)

func (app *Application) authRoutes(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(fmt.Sprintf("POST /%s/auth/signin", prefix), app.signInHandler)
	mux.HandleFunc(
		fmt.Sprintf("GET /%s/auth/signout", prefix),
		app.services.Auth.Access(app.signOutHandler),
	)
}

func (app *Application) signInHandler(w http.ResponseWriter, r *http.Request) {
	var signInDto dtos.SignInDto

	err := httptools.ReadForm(r, &signInDto)
	if err != nil {
		httptools.RedirectWithError(w, r, "/", err)
		return
	}

	if ok, errs := signInDto.Validate(); !ok {
		httptools.FailedValidationResponse(w, r, errs)
		return
	}

	tokens, err := app.services.Auth.SignInWithEmail(&signInDto)
	if err != nil {
		app.logger.Debug("sign in rejected", logging.ErrAttr(err))
		httptools.HandleError(w, r, err)
		return
	}

	accessTokenCookie, err := app.services.Auth.CreateCookie(
		models.AccessScope,
		tokens.AccessToken,
	)
	if err != nil {
		httptools.RedirectWithError(w, r, "/", err)
		return
	}

	http.SetCookie(w, accessTokenCookie)

	if signInDto.RememberMe {
		refreshTokenCookie, errCookie := app.services.Auth.CreateCookie(
			models.RefreshScope,
			tokens.RefreshToken,
		)
		if errCookie != nil {
			httptools.RedirectWithError(w, r, "/", errCookie)
			return
		}

		http.SetCookie(w, refreshTokenCookie)
	}

	http.Redirect(w, r, "/shadowcal/api/status", http.StatusSeeOther)
}

func (app *Application) signOutHandler(w http.ResponseWriter, r *http.Request) {
	accessToken, err := r.Cookie("accessToken")
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	deleteAccessTokenCookie, deleteRefreshTokenCookie, err := app.services.Auth.SignOut(
		accessToken.Value,
	)
	if err != nil {
		app.logger.Warn("sign out failed", logging.ErrAttr(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, deleteAccessTokenCookie)

	if _, errRefresh := r.Cookie("refreshToken"); errRefresh == nil {
		http.SetCookie(w, deleteRefreshTokenCookie)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
