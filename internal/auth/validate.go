package auth

import (
	"errors"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxNameLength bounds username, first and last name, in characters.
	MaxNameLength = 50
	// MinPasswordLength is the minimum password length, in characters.
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest password bcrypt will hash.
	MaxPasswordBytes = 72
)

// RegisterInput is the raw registration form.
type RegisterInput struct {
	Username string
	First    string
	Last     string
	Email    string
	Password string
}

// LoginInput is the raw login form.
type LoginInput struct {
	Username string
	Password string
}

type registerForm struct {
	Username string `form:"username" validate:"required,dbtext,max=50"`
	First    string `form:"first" validate:"dbtext,max=50"`
	Last     string `form:"last" validate:"dbtext,max=50"`
	Email    string `form:"email" validate:"required,dbtext,email"`
	Password string `form:"password" validate:"required,min=8,bcryptmax"`
}

type loginForm struct {
	Username string `form:"username" validate:"required,dbtext"`
	Password string `form:"password" validate:"required"`
}

var fieldMessages = map[string]string{
	"username.required":  "Username is required",
	"username.max":       "Username must be at most 50 characters",
	"username.dbtext":    "Username contains invalid characters",
	"first.max":          "First name must be at most 50 characters",
	"first.dbtext":       "First name contains invalid characters",
	"last.max":           "Last name must be at most 50 characters",
	"last.dbtext":        "Last name contains invalid characters",
	"email.required":     "Email is required",
	"email.dbtext":       "Email contains invalid characters",
	"email.email":        "Email must be a valid email address",
	"password.required":  "Password is required",
	"password.min":       "Password must be at least 8 characters long",
	"password.bcryptmax": "Password must be at most 72 bytes",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	_ = v.RegisterValidation("bcryptmax", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	})
	// dbtext accepts only what a PostgreSQL text column stores: valid UTF-8 without NUL.
	_ = v.RegisterValidation("dbtext", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
	})
	return v
}

// checkStruct runs v over form and converts failures into a *ValidationError.
func checkStruct(v *validator.Validate, form any) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		fields[fe.Field()] = msg
	}
	return &ValidationError{Fields: fields}
}

// normaliseRegistration trims and validates in and returns the canonical form.
func normaliseRegistration(v *validator.Validate, in RegisterInput) (registerForm, error) {
	form := registerForm{
		Username: normaliseUsername(in.Username),
		First:    strings.TrimSpace(in.First),
		Last:     strings.TrimSpace(in.Last),
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	}
	if err := checkStruct(v, form); err != nil {
		return registerForm{}, err
	}
	form.Email = NormaliseEmail(form.Email)
	return form, nil
}

func normaliseLogin(v *validator.Validate, in LoginInput) (loginForm, error) {
	form := loginForm{
		Username: normaliseUsername(in.Username),
		Password: in.Password,
	}
	if err := checkStruct(v, form); err != nil {
		return loginForm{}, err
	}
	return form, nil
}

func normaliseUsername(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// NormaliseEmail returns the canonical form of a syntactically valid address: the
// whole address lower-cased, and for Gmail the dots and +tag removed from the local
// part with googlemail.com folded into gmail.com.
func NormaliseEmail(email string) string {
	email = cases.Lower(language.Und).String(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if domain == "gmail.com" || domain == "googlemail.com" {
		if plus := strings.IndexByte(local, '+'); plus >= 0 {
			local = local[:plus]
		}
		local = strings.ReplaceAll(local, ".", "")
		domain = "gmail.com"
	}
	return local + "@" + domain
}
