package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bakubin-auth/internal/domain"
)

const minPasswordLength = 8

// RegisterInput es la entrada tipada del flujo de registro.
type RegisterInput struct {
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	Password        string  `json:"password" validate:"required,min=8"`
	ConfirmPassword *string `json:"confirmPassword"`
	Role            string  `json:"role"`
}

// LoginInput es la entrada tipada del flujo de login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateRegister devuelve la entrada normalizada o un *ValidationError.
func ValidateRegister(in RegisterInput) (RegisterInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	fields := structErrors(in)
	if in.ConfirmPassword != nil && *in.ConfirmPassword != in.Password {
		fields["confirmPassword"] = "passwords do not match"
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		fields["role"] = "must be one of USER, ADMIN"
	}
	if len(fields) > 0 {
		return RegisterInput{}, &ValidationError{Fields: fields}
	}

	in.Email = domain.NormalizeEmail(in.Email)
	in.Role = string(role)
	return in, nil
}

// ValidateLogin devuelve la entrada normalizada o un *ValidationError.
func ValidateLogin(in LoginInput) (LoginInput, error) {
	in.Email = strings.TrimSpace(in.Email)
	if fields := structErrors(in); len(fields) > 0 {
		return LoginInput{}, &ValidationError{Fields: fields}
	}
	in.Email = domain.NormalizeEmail(in.Email)
	return in, nil
}

func structErrors(in any) map[string]string {
	fields := make(map[string]string)
	err := validate.Struct(in)
	if err == nil {
		return fields
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = "invalid input"
		return fields
	}
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Field() == "password" {
			return fmt.Sprintf("must be at least %d characters", minPasswordLength)
		}
		return "must be at least " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
