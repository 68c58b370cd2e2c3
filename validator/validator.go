package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vibecoding/magazine-backend/db"
)

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a new Validator instance. Field errors are reported with the
// json name of the field.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	_ = v.RegisterValidation("category", validateCategory)
	_ = v.RegisterValidation("notblank", validateNotBlank)

	return &Validator{
		validator: v,
	}
}

// Validate validates a struct using the validator package.
func (v *Validator) Validate(s interface{}) error {
	return v.validator.Struct(s)
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// validateCategory checks the value is a known magazine category. Empty values
// are left to the required tag.
func validateCategory(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	return db.IsValidCategory(fl.Field().String())
}

// validateNotBlank rejects strings made only of whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
