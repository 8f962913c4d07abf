package app

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"phone-resale/internal/core"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so messages match what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldErrors maps each failing field to the rule it broke.
func FieldErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// checkRequest runs struct validation and returns a core validation error.
// The validator's own error stays wrapped so FieldErrors can read it.
func checkRequest(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	fields := FieldErrors(err)
	if fields == nil {
		return fmt.Errorf("validate request: %w", err)
	}
	parts := make([]string, 0, len(fields))
	for f, tag := range fields {
		parts = append(parts, f+" ("+tag+")")
	}
	sort.Strings(parts)
	return &core.Error{
		Kind:    core.KindValidation,
		Message: "invalid request: " + strings.Join(parts, ", "),
		Err:     err,
	}
}
