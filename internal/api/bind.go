package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// BindError carries per-field messages keyed by JSON field path.
type BindError struct {
	Message string
	Fields  map[string]string
}

func (e *BindError) Error() string {
	return e.Message
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Bind decodes the JSON body into out and validates it.
func Bind(r *http.Request, v *validator.Validate, out interface{}) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &BindError{Message: "request body is empty"}
		}
		return &BindError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}

	if err := v.Struct(out); err != nil {
		return &BindError{Message: "request validation failed", Fields: validationErrorsToMap(err)}
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		out[fieldPath(fe.Namespace())] = describe(fe)
	}
	return out
}

// fieldPath drops the root struct name: "completeRequest.items[0].quantity" -> "items[0].quantity".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// BindOrReject binds the request and writes a 400 validation_error response on failure.
func BindOrReject(w http.ResponseWriter, r *http.Request, v *validator.Validate, out interface{}) bool {
	err := Bind(r, v, out)
	if err == nil {
		return true
	}

	var bindErr *BindError
	if errors.As(err, &bindErr) {
		RespondWithCode(w, http.StatusBadRequest, CodeValidation, bindErr.Message, bindErr.Fields)
		return false
	}
	RespondWithCode(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	return false
}
