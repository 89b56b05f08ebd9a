package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"yuanyue-cms/internal/logger"
	"yuanyue-cms/internal/view"
)

// AppError represents a custom error type for the application.
// Message is what the client sees; Error is only logged.
type AppError struct {
	Error   error
	Message string
	Code    int
}

// AppHandler is a custom handler function type that returns an AppError.
type AppHandler func(http.ResponseWriter, *http.Request) *AppError

// errorBody is the JSON shape of every API error response.
type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// Error is a middleware that converts handler errors into JSON error responses.
// Panics become a generic 500.
func Error(log logger.Logger) func(AppHandler) http.Handler {
	return func(next AppHandler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					err, ok := rec.(error)
					if !ok {
						err = fmt.Errorf("%v", rec)
					}
					log.Error(err, "Panic recovered")
					WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
				}
			}()

			if err := next(w, r); err != nil {
				reqLog := log.With(map[string]interface{}{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": err.Code,
				})
				if err.Code >= http.StatusInternalServerError {
					reqLog.Error(err.Error, err.Message)
				} else {
					reqLog.Warn(err.Message)
				}
				WriteJSON(w, err.Code, errorBody{Error: err.Message})
			}
		})
	}
}

// ErrorPage is the HTML counterpart of Error for routes that render templates.
func ErrorPage(log logger.Logger, v *view.View) func(AppHandler) http.Handler {
	return func(next AppHandler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					err, ok := rec.(error)
					if !ok {
						err = fmt.Errorf("%v", rec)
					}
					log.Error(err, "Panic recovered")
					renderError(w, v, http.StatusInternalServerError, "Internal Server Error")
				}
			}()

			if err := next(w, r); err != nil {
				if err.Code >= http.StatusInternalServerError {
					log.Error(err.Error, err.Message)
				}
				renderError(w, v, err.Code, err.Message)
			}
		})
	}
}

func renderError(w http.ResponseWriter, v *view.View, code int, message string) {
	data := map[string]interface{}{
		"StatusCode": code,
		"StatusText": message,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := v.Render(w, "error.html", data); err != nil {
		fmt.Fprintf(w, "%d %s", code, message)
	}
}
