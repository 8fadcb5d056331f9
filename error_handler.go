package pkjwt

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pkjwt/pkjwt/core"
)

var (
	// ErrJWTMissing is returned when the request carries no bearer token.
	ErrJWTMissing = core.ErrJWTMissing

	// ErrJWTInvalid matches every token validation failure.
	ErrJWTInvalid = core.ErrJWTInvalid

	// ErrMalformedAuthHeader is returned by AuthHeaderTokenExtractor when the
	// Authorization header is present but not "Bearer <token>".
	ErrMalformedAuthHeader = errors.New("Authorization header format must be Bearer {token}")
)

// ErrorHandler writes the response when CheckJWT rejects a request.
//
// Handlers should distinguish ErrJWTMissing, ErrMalformedAuthHeader and
// ErrJWTInvalid from everything else; the last group covers provider key
// failures such as an unknown kid, which are server side problems.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorResponse is the JSON body written by DefaultErrorHandler.
type ErrorResponse struct {
	Message string `json:"message"`
}

// DefaultErrorHandler maps:
//
//   - ErrJWTMissing: 400 {"message":"JWT is missing."}
//   - ErrMalformedAuthHeader: 400 with the header format message
//   - ErrJWTInvalid: 401 {"message":"Token validation failed: <reason>"}
//   - anything else: 500
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status, body := ErrorResponseFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrorResponseFor returns the status and body DefaultErrorHandler writes for
// err. Adapters for other frameworks use it to respond identically.
func ErrorResponseFor(err error) (int, ErrorResponse) {
	var vErr *core.ValidationError
	switch {
	case errors.Is(err, ErrJWTMissing):
		return http.StatusBadRequest, ErrorResponse{Message: "JWT is missing."}
	case errors.Is(err, ErrMalformedAuthHeader):
		return http.StatusBadRequest, ErrorResponse{Message: ErrMalformedAuthHeader.Error()}
	case errors.As(err, &vErr):
		return http.StatusUnauthorized, ErrorResponse{Message: "Token validation failed: " + vErr.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Message: "Something went wrong while checking the JWT."}
	}
}
