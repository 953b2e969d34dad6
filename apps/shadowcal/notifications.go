package shadowcal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xdoubleu/essentia/v2/pkg/communication/httptools"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"shadowcal.xdoubleu.com/apps/shadowcal/internal/services"
)

func (app *ShadowCal) notificationsRoutes(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(
		fmt.Sprintf("POST /%s/notifications", prefix),
		app.notificationHandler,
	)
}

// notificationHandler acknowledges push notifications right away; the
// reconciliation they trigger runs later from the coalescer.
func (app *ShadowCal) notificationHandler(w http.ResponseWriter, r *http.Request) {
	notification := services.NotificationFromHeader(r.Header)

	_, err := app.Services.Notifications.Handle(r.Context(), notification)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			app.logger.Debug(
				"rejected notification",
				slog.String("channel", notification.ChannelID),
				slog.String("field", validationErr.Field),
				slog.String("message", validationErr.Message),
			)
			httptools.ErrorResponse(w, r, validationErr.Status, validationErr.Message)
			return
		}

		app.logger.Error("failed to handle notification", logging.ErrAttr(err))
		httptools.ServerErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
