package httpapi

import "net/http"

func NewMux(api *API) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.HandleHealthz)
	mux.HandleFunc("GET /api/v1/sensors", api.HandleSensors)
	mux.HandleFunc("GET /api/v1/sensors/{name}/readings", api.HandleReadings)
	return mux
}
