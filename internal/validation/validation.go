// Package validation checks request inputs with struct tags and turns the
// first violation into a client-facing apperr.Validation.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tasknest/apiserver/internal/apperr"
)

// Messages maps "Field.tag" (for example "Password.min") to the message
// returned when that rule fails. A "Field" key covers every tag of the field.
type Messages map[string]string

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = instance.RegisterValidation("datetime_any", func(fl validator.FieldLevel) bool {
			_, err := ParseDate(fl.Field().String())
			return err == nil
		})
	})
	return instance
}

// Struct validates s and reports the first failing rule.
func Struct(s any, messages Messages) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Wrap(err, "invalid request")
	}

	first := fieldErrs[0]
	if msg, ok := messages[first.StructField()+"."+first.Tag()]; ok {
		return apperr.Validation(msg)
	}
	if msg, ok := messages[first.StructField()]; ok {
		return apperr.Validation(msg)
	}
	return apperr.Validation(fmt.Sprintf("%s is invalid", first.Field()))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseDate accepts a calendar date or an ISO-8601 timestamp.
// Dates without a zone are read as UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}
