package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the "error" member of every non-2xx response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// JSONError writes {"error":{"code":..,"message":..}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// WriteError renders err. Internal and unclassified errors are reported as
// a bare INTERNAL; gateway detail is replaced with a retry hint.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := asAppError(err)
	if !ok || appErr.Kind == "" || appErr.Kind == KindInternal {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	msg := appErr.Message
	if appErr.Kind == KindGateway {
		msg = "payment gateway unavailable, retry later"
	}
	JSONError(w, appErr.status(), appErr.Code, msg, appErr.Details)
}
