package httpserver

import "net/http"

// Routes defines HTTP endpoints. Auth wraps the operator-facing routes.
type Routes struct {
	Login   http.Handler
	Signup  http.Handler
	Run     http.Handler
	Results http.Handler
	Export  http.Handler
	Samples http.Handler
	Events  http.Handler
	Health  http.Handler
	Auth    func(http.Handler) http.Handler
}

// NewRouter sets up HTTP routing.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()

	protect := routes.Auth
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	if routes.Login != nil {
		mux.Handle("/api/login", method(http.MethodPost, routes.Login.ServeHTTP))
	}
	if routes.Signup != nil {
		mux.Handle("/api/signup", method(http.MethodPost, routes.Signup.ServeHTTP))
	}
	if routes.Run != nil {
		mux.Handle("/api/runs", protect(method(http.MethodPost, routes.Run.ServeHTTP)))
	}
	if routes.Results != nil {
		mux.Handle("/api/results/recent", protect(method(http.MethodGet, routes.Results.ServeHTTP)))
	}
	if routes.Export != nil {
		mux.Handle("/api/results/export", protect(method(http.MethodGet, routes.Export.ServeHTTP)))
	}
	if routes.Samples != nil {
		mux.Handle("/api/samples", protect(method(http.MethodGet, routes.Samples.ServeHTTP)))
	}
	if routes.Events != nil {
		mux.Handle("/api/runs/events", method(http.MethodGet, routes.Events.ServeHTTP))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health.ServeHTTP))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
