package shadowcal

import (
	"fmt"
	"net/http"
)

func (app *ShadowCal) apiRoutes(prefix string, mux *http.ServeMux) {
	apiPrefix := fmt.Sprintf("/%s/api", prefix)
	app.channelsRoutes(apiPrefix, mux)
	app.calendarsRoutes(apiPrefix, mux)
}

func (app *ShadowCal) Routes(prefix string, mux *http.ServeMux) {
	app.notificationsRoutes(prefix, mux)
	app.feedRoutes(prefix, mux)
	mux.HandleFunc(fmt.Sprintf("GET /%s/ws", prefix), app.Services.WebSocket.Handler())
	app.apiRoutes(prefix, mux)
}
