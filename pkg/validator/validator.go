package validator

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

const maxIdempotencyKeyLen = 100

var (
	// Validate is shared by all handlers, it caches struct metadata.
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("idemkey", validateIdempotencyKey)
}

// validateIdempotencyKey accepts up to 100 printable characters without spaces.
func validateIdempotencyKey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	if key == "" || len(key) > maxIdempotencyKeyLen {
		return false
	}
	for _, r := range key {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
