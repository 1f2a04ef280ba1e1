package server

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/go-playground/validator/v10"
)

// ValidationError lists the request fields that failed validation, keyed by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return fmt.Sprintf("%v: %s", shared.ErrInvalidInput, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return shared.ErrInvalidInput }

// Validator wraps go-playground/validator and reports failures as [ValidationError].
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a validator that names fields by their JSON tags.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate checks s against its validate tags.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, e := range fieldErrs {
		fields[fieldPath(e)] = friendlyMessage(e)
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name from the namespace so nested fields read
// as "seeds[3].title".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func friendlyMessage(e validator.FieldError) string {
	collection := e.Kind() == reflect.Slice || e.Kind() == reflect.Array || e.Kind() == reflect.Map
	switch e.Tag() {
	case "required":
		return "is required"
	case "len":
		if collection {
			return fmt.Sprintf("must contain exactly %s items", e.Param())
		}
		return fmt.Sprintf("must be exactly %s characters", e.Param())
	case "max":
		if collection {
			return fmt.Sprintf("must not contain more than %s items", e.Param())
		}
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
