package auth

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

const (
	// MinPasswordStrength is the number of strength checks a new password must pass.
	MinPasswordStrength = 3
	// MinNameLength counts characters after trimming.
	MinNameLength = 2
	// maxPasswordBytes is bcrypt's input limit.
	maxPasswordBytes = 72
)

// Custom validation tags.
const (
	tagEmail            = "account_email"
	tagPasswordStrength = "password_strength"
	tagBcryptMax        = "bcrypt_max"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// fieldMessages is the message shown for any failing rule on a field.
var fieldMessages = map[string]string{
	"name":     "Name must be at least 2 characters",
	"email":    "Enter a valid email address",
	"password": "Password is too weak",
	"id":       "Must be a valid id",
}

// tagMessages overrides fieldMessages for specific rules.
var tagMessages = map[string]string{
	tagBcryptMax: "Password must be at most 72 bytes",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "params"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	mustRegister(v, tagEmail, func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	mustRegister(v, tagPasswordStrength, func(fl validator.FieldLevel) bool {
		return PasswordStrength(fl.Field().String()) >= MinPasswordStrength
	})
	mustRegister(v, tagBcryptMax, func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Registration is the sign-up input after trimming and email normalization.
type Registration struct {
	Name     string `json:"name" validate:"min=2"`
	Email    string `json:"email" validate:"required,account_email"`
	Password string `json:"password" validate:"required,bcrypt_max,password_strength"`
}

// PasswordCheck is one strength heuristic and whether the password passed it.
type PasswordCheck struct {
	Label string `json:"label"`
	Pass  bool   `json:"pass"`
}

// PasswordChecks evaluates the four strength heuristics shown on the sign-up form.
func PasswordChecks(password string) []PasswordCheck {
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
		default:
			symbol = true
		}
	}
	return []PasswordCheck{
		{Label: "At least 8 characters", Pass: utf8.RuneCountInString(password) >= 8},
		{Label: "Contains uppercase", Pass: upper},
		{Label: "Contains a number", Pass: digit},
		{Label: "Contains a symbol", Pass: symbol},
	}
}

// PasswordStrength returns how many heuristics the password satisfies, 0 to 4.
func PasswordStrength(password string) int {
	score := 0
	for _, check := range PasswordChecks(password) {
		if check.Pass {
			score++
		}
	}
	return score
}

// NormalizeEmail trims and lower-cases an email so lookups are exact on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email has the address shape the sign-up form accepts.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateStruct runs the struct's validate tags. Failures become a VALIDATION_FAILED error
// whose details map each failing field to one message.
func ValidateStruct(s any, message string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewInternalError(err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fieldMessage(fe)
	}
	return apperrors.NewValidationError(message, details)
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg
	}
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	return fe.Error()
}

// ValidateRegistration re-checks sign-up input server-side.
// Every failing field is reported in the error details.
func ValidateRegistration(name, email, password string) error {
	return ValidateStruct(Registration{
		Name:     strings.TrimSpace(name),
		Email:    email,
		Password: password,
	}, "invalid registration")
}
