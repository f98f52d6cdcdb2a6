package server

// responses.go - JSON response helpers and the mapping from domain errors to
// HTTP status codes.
//
// Client-input failures (bad records, dangling references, failed
// verification) map to 400; keystore configuration and key resolution
// failures map to 503 since the service cannot sign until an operator
// intervenes; anything unclassified is a 500, logged server-side and not
// leaked to the client.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
	"github.com/information-sharing-networks/provenance-demo/internal/keystore"
	"github.com/information-sharing-networks/provenance-demo/internal/logger"
	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
	"github.com/information-sharing-networks/provenance-demo/internal/record"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	StatusCode           int    `json:"statusCode"`
	StatusCodeText       string `json:"statusCodeText"`
	ErrorCode            string `json:"errorCode"`
	Message              string `json:"message"`
	CorrelationReference string `json:"correlationReference,omitempty"`
	ErrorDateTime        string `json:"errorDateTime"`
}

// RespondWithJSON writes a JSON response body with the given status.
func RespondWithJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// RespondWithError maps a domain error to an HTTP error response and sends it.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	resp := MapErrorToResponse(err, r)

	if resp.StatusCode >= http.StatusInternalServerError {
		reqLogger := logger.ContextRequestLogger(r.Context())
		reqLogger.Error("request failed",
			slog.String("error", err.Error()),
			slog.Int("status", resp.StatusCode),
		)
	}

	RespondWithJSON(w, resp.StatusCode, resp)
}

// MapErrorToResponse establishes the HTTP status and sanitized error body for
// a domain error.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	statusCode := http.StatusInternalServerError
	errorCode := "internal"
	message := "An internal error occurred"

	var recordErr *provenance.RecordError
	var keystoreErr *keystore.KeystoreError
	var cryptoErr *crypto.CryptoError
	var requestErr *record.RequestError

	switch {
	case errors.As(err, &requestErr):
		statusCode = http.StatusBadRequest
		errorCode = "validation"
		message = requestErr.Error()

	case errors.As(err, &recordErr):
		errorCode = string(recordErr.Code())
		switch recordErr.Code() {
		case provenance.ErrCodeInternal:
			statusCode = http.StatusInternalServerError
		case provenance.ErrCodeStepNotFound:
			statusCode = http.StatusBadRequest
			message = recordErr.Error()
		default:
			// malformed, unverifiable or inconsistent record content
			statusCode = http.StatusBadRequest
			message = recordErr.Error()
		}

	case errors.As(err, &keystoreErr):
		errorCode = string(keystoreErr.Code())
		switch keystoreErr.Code() {
		case keystore.ErrCodeConfiguration, keystore.ErrCodeKeyNotFound,
			keystore.ErrCodeCertificateNotFound, keystore.ErrCodeCertificateParse:
			statusCode = http.StatusServiceUnavailable
			message = "Signing service is not properly configured. Please try again later."
		default:
			statusCode = http.StatusInternalServerError
		}

	case errors.As(err, &cryptoErr):
		errorCode = string(cryptoErr.Code())
		switch cryptoErr.Code() {
		case crypto.ErrCodeInternal:
			statusCode = http.StatusInternalServerError
		default:
			statusCode = http.StatusBadRequest
			message = cryptoErr.Error()
		}
	}

	return &ErrorResponse{
		StatusCode:           statusCode,
		StatusCodeText:       http.StatusText(statusCode),
		ErrorCode:            errorCode,
		Message:              message,
		CorrelationReference: requestID,
		ErrorDateTime:        time.Now().UTC().Format(time.RFC3339),
	}
}
