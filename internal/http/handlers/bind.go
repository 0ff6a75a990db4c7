package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hospivibe/clinic/internal/validation"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body into out, answering 400 (or 413)
// itself when it returns false. The body is cached so it can be bound twice.
func BindJSON(ctx *gin.Context, out any) bool {
	if err := ctx.ShouldBindBodyWith(out, binding.JSON); err != nil {
		respondBindError(ctx, err)
		return false
	}
	return true
}

// BindJSONWithFields first checks that every required key is present in the
// body, answering "Missing required fields" with the absent keys, and then
// binds and validates out.
func BindJSONWithFields(ctx *gin.Context, out any, required ...string) bool {
	var raw map[string]json.RawMessage

	if err := ctx.ShouldBindBodyWith(&raw, binding.JSON); err != nil {
		respondBindError(ctx, err)
		return false
	}

	if missing := validation.MissingFields(raw, required...); len(missing) > 0 {
		RespondBadRequest(ctx, "Missing required fields", gin.H{"missing": missing})
		return false
	}

	return BindJSON(ctx, out)
}

// BindJSONKeys binds out like BindJSON and also returns the raw top-level
// values keyed by name, so callers can tell an explicit null from an absent key.
func BindJSONKeys(ctx *gin.Context, out any) (map[string]json.RawMessage, bool) {
	var raw map[string]json.RawMessage

	if err := ctx.ShouldBindBodyWith(&raw, binding.JSON); err != nil {
		respondBindError(ctx, err)
		return nil, false
	}
	if !BindJSON(ctx, out) {
		return nil, false
	}
	return raw, true
}

func isNull(v json.RawMessage) bool {
	return v != nil && bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func respondBindError(ctx *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large", gin.H{"limit": tooLarge.Limit})
		return
	}

	RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err))
}

func bindErrorDetails(err error) gin.H {
	var (
		invalid   validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &invalid):
		fields := make([]FieldError, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, FieldError{
				Field:   fieldPath(fe),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}

	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return gin.H{"json": "invalid_json_syntax"}

	case errors.Is(err, io.EOF):
		return gin.H{"json": "empty_body"}

	case errors.As(err, &typeErr):
		// encoding/json already reports the path in JSON key names
		field := typeErr.Field
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

// fieldPath drops the root struct name from the validator namespace, which
// carries JSON keys once validation.RegisterGinValidators has run.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "datetime":
		return "must be a date formatted as " + param
	case validation.TagEmail:
		return "Invalid email format"
	case validation.TagNotBlank:
		return "must not be blank"
	case validation.TagPassword:
		return "Password must be at least 8 characters long and contain at least one number and one letter"
	}

	if param != "" {
		return fmt.Sprintf("failed %s validation (%s)", rule, param)
	}
	return "failed " + rule + " validation"
}
