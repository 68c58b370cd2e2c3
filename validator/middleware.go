package validator

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vibecoding/magazine-backend/errors"
	"go.vocdoni.io/dvote/log"
)

// keys for storing models in context
type (
	ModelKey          struct{}
	ValidatedModelKey struct{}
)

// ValidationError represents an individual validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a slice of ValidationError.
type ValidationErrors []ValidationError

// Error returns a string representation of the validation errors.
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return sb.String()
}

// fieldMessages overrides the message of a field for the listed tags. The
// messages are shown to the user as they are.
var fieldMessages = map[string]map[string]string{
	"title": {
		"required": "제목을 입력해주세요.",
		"notblank": "제목을 입력해주세요.",
	},
	"category": {
		"required": "카테고리를 선택해주세요.",
		"category": "카테고리를 선택해주세요.",
	},
}

// AddModelMiddleware adds the provided model to the request context.
func (v *Validator) AddModelMiddleware(model interface{}) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ModelKey{}, model)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InputValidator validates the JSON request body against the model stored in the context.
// If successful, the validated instance is added to the context for downstream handlers.
// On failure the first field message becomes the error message and the full
// list is returned as data.
func (v *Validator) InputValidator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only validate for methods that may have a body.
		if r.Method == http.MethodGet || r.Method == http.MethodHead ||
			r.Method == http.MethodOptions || r.Method == http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		// Ensure the Content-Type header indicates JSON.
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			next.ServeHTTP(w, r)
			return
		}

		// Retrieve the model from context.
		model := r.Context().Value(ModelKey{})
		if model == nil {
			next.ServeHTTP(w, r)
			return
		}
		instance := reflect.New(reflect.TypeOf(model)).Interface()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			errors.ErrMalformedBody.Write(w)
			return
		}

		if err := json.Unmarshal(body, instance); err != nil {
			errors.ErrMalformedBody.Write(w)
			return
		}

		if validationErrors := v.Errors(instance); len(validationErrors) > 0 {
			log.Debugw("validation errors", "errors", validationErrors)
			errors.ErrValidationFailed.
				WithMessage(validationErrors[0].Message).
				WithData(validationErrors).
				Write(w)
			return
		}

		ctx := context.WithValue(r.Context(), ValidatedModelKey{}, instance)
		r.Body = io.NopCloser(bytes.NewBuffer(body))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Errors validates s and returns the failures as ValidationErrors, or nil.
func (v *Validator) Errors(s interface{}) ValidationErrors {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return ValidationErrors{{Message: err.Error()}}
	}
	validationErrors := make(ValidationErrors, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fieldErr.Field(),
			Message: getErrorMessage(fieldErr),
		})
	}
	return validationErrors
}

// GetValidatedModel retrieves the validated model from the context.
func GetValidatedModel(ctx context.Context) (interface{}, bool) {
	model := ctx.Value(ValidatedModelKey{})
	return model, model != nil
}

// getErrorMessage returns a human-readable error message for a validation error.
func getErrorMessage(err validator.FieldError) string {
	if msg, ok := fieldMessages[err.Field()][err.Tag()]; ok {
		return msg
	}
	switch err.Tag() {
	case "required", "notblank":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Must be at least %s characters long", err.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters long", err.Param())
	case "url":
		return "Invalid URL format"
	case "category":
		return "Unknown category"
	default:
		return fmt.Sprintf("Invalid value: %s", err.Tag())
	}
}
