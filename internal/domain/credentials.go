package domain

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

const (
	SecretKeyLogin    = "ppmi/login"
	SecretKeyPassword = "ppmi/password"
)

type Credentials struct {
	Login    string
	Password string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Login) == "" {
		return errors.New("ppmi login is required")
	}
	if c.Password == "" {
		return errors.New("ppmi password is required")
	}
	return nil
}

// String never includes the password.
func (c Credentials) String() string {
	return c.Login + ":***"
}

func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("login", c.Login)
}
