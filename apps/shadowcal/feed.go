package shadowcal

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xdoubleu/essentia/v2/pkg/communication/httptools"
	"github.com/xdoubleu/essentia/v2/pkg/errortools"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/parse"
)

func (app *ShadowCal) feedRoutes(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(fmt.Sprintf("GET /%s/feed/{token}", prefix), app.feedHandler)
}

func (app *ShadowCal) feedHandler(w http.ResponseWriter, r *http.Request) {
	token, err := parse.URLParam[string](r, "token", nil)
	if err != nil {
		httptools.BadRequestResponse(w, r, err)
		return
	}

	if !app.Services.Feed.Authorized(strings.TrimSuffix(token, ".ics")) {
		httptools.NotFoundResponse(
			w,
			r,
			errortools.NewNotFoundError("feed", token, "token"),
		)
		return
	}

	data, err := app.Services.Feed.Render(r.Context())
	if err != nil {
		app.logger.Error("failed to render feed", logging.ErrAttr(err))
		httptools.ErrorResponse(
			w,
			r,
			http.StatusBadGateway,
			"failed to fetch target calendar",
		)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, err = w.Write(data)
	if err != nil {
		app.logger.Error("failed to write feed", logging.ErrAttr(err))
	}
}
