package response

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/relaymesh/devicegate/internal/status"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, httpStatus int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, httpStatus int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message}, Meta: buildMeta(r)})
}

// Status renders a domain status: OK statuses carry data, everything else
// maps onto the matching HTTP error.
func Status(w http.ResponseWriter, r *http.Request, st status.Status, data any) {
	if st.IsOK() {
		JSON(w, r, http.StatusOK, data)
		return
	}
	Error(w, r, HTTPStatus(st.Code), errorCode(st.Code), st.Message)
}

func HTTPStatus(code status.Code) int {
	switch code {
	case status.Ok:
		return http.StatusOK
	case status.InvalidArgument:
		return http.StatusBadRequest
	case status.NotFound:
		return http.StatusNotFound
	case status.PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(code status.Code) string {
	switch code {
	case status.InvalidArgument:
		return "INVALID_ARGUMENT"
	case status.NotFound:
		return "NOT_FOUND"
	case status.PermissionDenied:
		return "PERMISSION_DENIED"
	default:
		return "INTERNAL"
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
