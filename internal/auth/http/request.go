package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 16 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest reads a JSON body into dst and validates it. On failure it
// writes a validation_error response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		desc := "request body must be valid JSON"
		if errors.Is(err, io.EOF) {
			desc = "request body is empty"
		}
		authsdk.ErrValidation.WithDescription(desc).WriteError(w)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			authsdk.ErrValidation.WriteError(w)
			return false
		}
		apiErr := authsdk.ErrValidation.WithDescription("validation failed for some fields")
		apiErr.Details = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			apiErr.Details[fe.Field()] = fieldMessage(fe)
		}
		apiErr.WriteError(w)
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "numeric":
		return "must contain digits only"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}

// serviceErrors maps the service taxonomy onto wire errors. Token failures
// share one public code; the distinction is only logged.
var serviceErrors = []struct {
	target error
	api    *authsdk.APIError
}{
	{service.ErrValidation, authsdk.ErrValidation},
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrAccountDisabled, authsdk.ErrAccountDisabled},
	{service.ErrMFANotEnabled, authsdk.ErrMFANotEnabled},
	{service.ErrMFAAlreadyEnabled, authsdk.ErrMFAAlreadyEnabled},
	{service.ErrInvalidMFACode, authsdk.ErrInvalidMFACode},
	{service.ErrRateLimited, authsdk.ErrRateLimited},
	{service.ErrNotFound, authsdk.ErrNotFound},
	{service.ErrExpiredToken, authsdk.ErrInvalidToken},
	{service.ErrInvalidSignature, authsdk.ErrInvalidToken},
	{service.ErrMalformedToken, authsdk.ErrInvalidToken},
	{service.ErrStoreUnavailable, authsdk.ErrStoreUnavailable},
	{service.ErrBootstrapAlready, authsdk.ErrAlreadyBootstrapped},
	{service.ErrBootstrapUnauthorized, authsdk.ErrBootstrapUnauthorized},
}

// writeServiceError writes the wire form of a service error. Rate-limited
// responses carry Retry-After; anything unknown becomes server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, retryAfterSeconds int) {
	log := slogx.FromContext(r.Context())

	for _, m := range serviceErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		apiErr := m.api
		switch m.target {
		case service.ErrValidation:
			desc := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
			apiErr = apiErr.WithDescription(desc)
		case service.ErrRateLimited:
			apiErr = apiErr.WithRetryAfter(retryAfterSeconds)
		case service.ErrStoreUnavailable:
			log.Error("store unavailable", "err", err)
		}
		apiErr.WriteError(w)
		return
	}

	log.Error("unhandled service error", "err", err)
	authsdk.ErrServerError.WriteError(w)
}
