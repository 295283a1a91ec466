package validation

import (
	"fmt"
	"unicode/utf8"

	dErrors "didgate/pkg/domain-errors"
)

// Upload limits
const (
	// MaxImageBytes is the default cap on an identity image upload (5 MiB).
	MaxImageBytes = 5 << 20

	// MultipartOverhead is the allowance for multipart framing and text
	// fields on top of the image itself.
	MultipartOverhead = 64 << 10
)

// Identity field length limits, in characters.
const (
	// MaxNameLength is the maximum length of an identity name.
	MaxNameLength = 256

	// MaxEmailLength is the maximum length of an email address.
	MaxEmailLength = 320

	// MaxDescriptionLength is the maximum length of a free-text description.
	MaxDescriptionLength = 2048
)

// CheckStringLength fails with a validation error naming field when value is
// longer than max characters.
func CheckStringLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return dErrors.WithDetail(
			dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", field, max)),
			"field", field,
		)
	}
	return nil
}
