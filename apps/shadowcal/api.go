package shadowcal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xdoubleu/essentia/v2/pkg/communication/httptools"
	"github.com/xdoubleu/essentia/v2/pkg/contexttools"
	"github.com/xdoubleu/essentia/v2/pkg/errortools"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/parse"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
	"shadowcal.xdoubleu.com/internal/constants"
	"shadowcal.xdoubleu.com/internal/models"
)

func (app *ShadowCal) channelsRoutes(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(
		fmt.Sprintf("GET %s/channels", prefix),
		app.Services.Auth.Access(app.listChannelsHandler),
	)
	mux.HandleFunc(
		fmt.Sprintf("POST %s/channels/{id}/ensure", prefix),
		app.Services.Auth.Access(app.ensureChannelHandler),
	)
}

func (app *ShadowCal) calendarsRoutes(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(
		fmt.Sprintf("POST %s/calendars/{id}/reconcile", prefix),
		app.Services.Auth.Access(app.reconcileHandler),
	)
	mux.HandleFunc(
		fmt.Sprintf("GET %s/status", prefix),
		app.Services.Auth.Access(app.statusHandler),
	)
}

func (app *ShadowCal) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := httptools.WriteJSON(w, status, data, nil); err != nil {
		app.logger.Error("failed to write response", logging.ErrAttr(err))
	}
}

func (app *ShadowCal) writeError(
	w http.ResponseWriter,
	r *http.Request,
	calendarID string,
	err error,
) {
	if errors.Is(err, services.ErrUnknownCalendar) {
		httptools.NotFoundResponse(
			w,
			r,
			errortools.NewNotFoundError("calendar", calendarID, "id"),
		)
		return
	}

	app.logger.Error(
		"operator request failed",
		slog.String("calendar", calendarID),
		logging.ErrAttr(err),
	)
	httptools.ServerErrorResponse(w, r, err)
}

func (app *ShadowCal) operator(r *http.Request) string {
	user := contexttools.GetValue[models.User](r.Context(), constants.UserContextKey)
	if user == nil {
		return ""
	}
	return user.Email
}

func (app *ShadowCal) listChannelsHandler(w http.ResponseWriter, r *http.Request) {
	statuses, err := app.Services.Subscriptions.ListAll(r.Context())
	if err != nil {
		app.writeError(w, r, "", err)
		return
	}

	app.writeJSON(w, http.StatusOK, statuses)
}

func (app *ShadowCal) ensureChannelHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parse.URLParam[string](r, "id", nil)
	if err != nil {
		httptools.BadRequestResponse(w, r, err)
		return
	}

	channel, renewed, err := app.Services.Subscriptions.Ensure(r.Context(), id)
	if err != nil {
		app.writeError(w, r, id, err)
		return
	}

	app.logger.Info(
		"channel ensured by operator",
		slog.String("calendar", id),
		slog.String("operator", app.operator(r)),
		slog.Bool("renewed", renewed),
	)

	app.writeJSON(w, http.StatusOK, channel)
}

func (app *ShadowCal) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parse.URLParam[string](r, "id", nil)
	if err != nil {
		httptools.BadRequestResponse(w, r, err)
		return
	}

	app.logger.Info(
		"manual reconciliation",
		slog.String("calendar", id),
		slog.String("operator", app.operator(r)),
	)

	result, err := app.Services.Reconcile.Reconcile(r.Context(), id)
	if err != nil {
		app.writeError(w, r, id, err)
		return
	}

	app.writeJSON(w, http.StatusOK, result)
}

func (app *ShadowCal) statusHandler(w http.ResponseWriter, r *http.Request) {
	statuses, err := app.Services.Status.Calendars(r.Context())
	if err != nil {
		app.writeError(w, r, "", err)
		return
	}

	app.writeJSON(w, http.StatusOK, statuses)
}
