package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = newValidator()

// newValidator возвращает валидатор, который называет поля по json-тегам
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate проверяет структуру по тегам validate и возвращает ValidationErrors
func Validate(v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var errs ValidationErrors
	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), ruleMessage(fe.Tag()))
	}
	return errs
}

// Validate проверяет данные нового клиента
func (in CustomerInput) Validate() error {
	return Validate(in)
}

// Validate проверяет данные абонемента
func (in SubscriptionInput) Validate() error {
	return Validate(in)
}

func ruleMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	default:
		return "failed on rule " + tag
	}
}
