package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mms-dairy/mms/internal/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate runs struct tag validation and reports the first failing field.
func Validate(target any) error {
	err := validate.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return shared.NewValidationError(fe.Field(), describe(fe))
	}
	return shared.NewValidationError("body", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// DecodeAndValidate decodes the body into target and validates it.
func DecodeAndValidate(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return Validate(target)
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter, returning 0 when absent or malformed.
func QueryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

// ParseListFilter reads product_id, from, to, after_id and limit from the query string.
// Malformed values fail with ValidationError rather than being ignored.
func ParseListFilter(r *http.Request) (shared.ListFilter, error) {
	q := r.URL.Query()
	var filter shared.ListFilter
	ints := []struct {
		name   string
		target *int64
	}{
		{"product_id", &filter.ProductID},
		{"after_id", &filter.AfterID},
	}
	for _, p := range ints {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return filter, shared.NewValidationError(p.name, "must be a non-negative integer")
		}
		*p.target = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return filter, shared.NewValidationError("limit", "must be a positive integer")
		}
		filter.Limit = v
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from"), false); err != nil {
		return filter, shared.NewValidationError("from", "must be RFC3339 or YYYY-MM-DD")
	}
	if filter.To, err = parseTimeParam(q.Get("to"), true); err != nil {
		return filter, shared.NewValidationError("to", "must be RFC3339 or YYYY-MM-DD")
	}
	return filter, nil
}

// parseTimeParam accepts RFC3339 timestamps or plain dates. A plain date used as the end
// of a range covers the whole day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// IdempotencyKeyHeader carries the client generated request key.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyKey returns the normalised UUID from the Idempotency-Key header, or "" when absent.
func IdempotencyKey(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", shared.NewValidationError(IdempotencyKeyHeader, "must be a UUID")
	}
	return id.String(), nil
}
