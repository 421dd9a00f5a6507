package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"

	"github.com/phillip/cobudget-go/apperrors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return ValidSlug(fl.Field().String())
	})
	return v
}

// ValidSlug reports whether s is lowercase words joined by single dashes.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// ValidateStruct checks s against its validate tags. The returned error is an
// apperrors VALIDATION_ERROR naming the first offending field.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var messages []string
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return apperrors.Validation(verrs[0].Field(), strings.Join(messages, ", "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + param + " characters"
	case "max":
		return field + " must be at most " + param + " characters"
	case "email":
		return field + " must be a valid email"
	case "len":
		return field + " must be exactly " + param + " characters"
	case "oneof":
		return field + " must be one of " + param
	case "slug":
		return field + " may only contain lowercase letters, digits and dashes"
	default:
		return field + " is invalid"
	}
}

// NormalizeEmail lowercases and trims email and checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return "", apperrors.Validation("email", email+" is not a valid email address")
	}
	return email, nil
}
