// Package validation holds the pure input checks shared by the HTTP layer.
package validation

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	TagEmail    = "clinic_email"
	TagPassword = "strong_password"
	TagNotBlank = "not_blank"

	MinPasswordLength = 8
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail reports whether s has the local@domain.tld shape.
func ValidateEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidatePassword requires at least 8 characters with one digit and one ASCII
// letter. Digits may come from any script.
func ValidatePassword(s string) bool {
	if len([]rune(s)) < MinPasswordLength {
		return false
	}

	var hasDigit, hasLetter bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
			hasLetter = true
		}
	}
	return hasDigit && hasLetter
}

// RequireFields reports whether every name is present as a key of payload.
func RequireFields[V any](payload map[string]V, names ...string) bool {
	return len(MissingFields(payload, names...)) == 0
}

// MissingFields lists the names absent from payload, in the order given.
func MissingFields[V any](payload map[string]V, names ...string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := payload[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

var registerOnce sync.Once

// RegisterGinValidators exposes the checks above as binding tags on gin's validator engine.
func RegisterGinValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		// report fields by their JSON key so error details match the request body
		v.RegisterTagNameFunc(JSONFieldName)

		_ = v.RegisterValidation(TagEmail, func(fl validator.FieldLevel) bool {
			return ValidateEmail(fl.Field().String())
		})
		_ = v.RegisterValidation(TagPassword, func(fl validator.FieldLevel) bool {
			return ValidatePassword(fl.Field().String())
		})
		_ = v.RegisterValidation(TagNotBlank, func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
}

// JSONFieldName is the key a struct field is decoded from; "" hides the field.
func JSONFieldName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return sf.Name
	}
	return name
}
