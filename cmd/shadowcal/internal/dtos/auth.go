package dtos

import (
	"strings"

	"github.com/xdoubleu/essentia/v2/pkg/validate"
)

type SignInDto struct {
	Email      string `schema:"email"`
	Password   string `schema:"password"`
	RememberMe bool   `schema:"rememberMe"`
}

func (dto *SignInDto) Validate() (bool, map[string]string) {
	v := validate.New()

	validate.Check(v, "email", strings.TrimSpace(dto.Email), validate.IsNotEmpty)
	validate.Check(v, "email", dto.Email, isEmailAddress)
	validate.Check(v, "password", dto.Password, validate.IsNotEmpty)

	return v.Valid(), v.Errors()
}

func isEmailAddress(value string) (bool, string) {
	return strings.Contains(value, "@"), "must be a valid email address"
}
