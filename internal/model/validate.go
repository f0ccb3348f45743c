package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func invalid(code string, err error) error {
	if err == nil {
		return nil
	}
	return NewValidationError(code, err.Error(), err)
}

var nonNegative = validation.Min(int64(0))

func currencyRule() []validation.Rule {
	return []validation.Rule{validation.Required, validation.Length(3, 3)}
}
