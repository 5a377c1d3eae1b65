// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Error responses always share one shape so API consumers know what to
// expect.
package response

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

// Response is the standard envelope returned for error cases.
//
//	{ "status": "error", "error": "field name is required" }
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// Order matters: Header() → WriteHeader() → body writes. Once WriteHeader
// is called, headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// NoContent writes a bodiless 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// GeneralError wraps any Go error into our standard Response shape.
func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

// DecodeError describes why a JSON request body could not be decoded.
// Syntax errors carry their byte offset and type mismatches name the
// offending JSON field; anything else is passed through unchanged.
func DecodeError(err error) Response {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	var msg string
	switch {
	case errors.Is(err, io.EOF):
		msg = "request body is empty"
	case errors.Is(err, io.ErrUnexpectedEOF):
		msg = "request body is malformed: unexpected EOF"
	case errors.As(err, &syntaxErr):
		msg = fmt.Sprintf("request body is malformed at offset %d: %s", syntaxErr.Offset, syntaxErr.Error())
	case errors.As(err, &typeErr) && typeErr.Field != "":
		msg = fmt.Sprintf("field %s must be %s, got %s", typeErr.Field, jsonKind(typeErr.Type), typeErr.Value)
	default:
		msg = err.Error()
	}

	return Response{Status: StatusError, Error: msg}
}

// jsonKind names a Go type the way a JSON client sees it.
func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Map, reflect.Struct:
		return "an object"
	default:
		return t.String()
	}
}

// ValidationError converts validator.FieldError values into a single
// human-readable Response, one sentence per failing field joined by ", ".
//
//	{ "status": "error", "error": "field name is required, field courses must have at least 1 item(s)" }
func ValidationError(errs validator.ValidationErrors) Response {
	errMessages := make([]string, 0, len(errs))
	for _, e := range errs {
		errMessages = append(errMessages, "field "+e.Field()+" "+fieldMessage(e))
	}

	return Response{
		Status: StatusError,
		Error:  strings.Join(errMessages, ", "),
	}
}

// fieldMessage phrases one failed tag. Element errors from dive
// ("courses[0]") read as "must not be empty" rather than "is required".
func fieldMessage(e validator.FieldError) string {
	switch e.ActualTag() {
	case "required":
		if strings.HasSuffix(e.Field(), "]") {
			return "must not be empty"
		}
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return bound("at least", e)
	case "max":
		return bound("at most", e)
	case "len":
		return bound("exactly", e)
	case "oneof":
		return "must be one of [" + e.Param() + "]"
	default:
		return "is invalid"
	}
}

func bound(qualifier string, e validator.FieldError) string {
	switch e.Kind() {
	case reflect.String:
		return fmt.Sprintf("must have %s %s character(s)", qualifier, e.Param())
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("must have %s %s item(s)", qualifier, e.Param())
	default:
		return fmt.Sprintf("must be %s %s", qualifier, e.Param())
	}
}
