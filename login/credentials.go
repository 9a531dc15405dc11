package login

import "strings"

// Field names a credential input.
type Field string

const (
	FieldEmail    Field = "email"
	FieldPassword Field = "password"
)

// Fields lists the credential inputs in display order.
var Fields = []Field{FieldEmail, FieldPassword}

// RequiredMessage is shown next to an empty required field.
const RequiredMessage = "Required"

// Credentials are the values entered for a single login attempt.
type Credentials struct {
	Email    string
	Password string
}

// Get returns the value held for name.
func (c Credentials) Get(name Field) string {
	switch name {
	case FieldEmail:
		return c.Email
	case FieldPassword:
		return c.Password
	default:
		return ""
	}
}

// ValidationErrors maps a field to its error message. An empty map means
// the credentials can be submitted.
type ValidationErrors map[Field]string

// Valid reports whether there are no errors.
func (v ValidationErrors) Valid() bool {
	return len(v) == 0
}

func (v ValidationErrors) clone() ValidationErrors {
	out := make(ValidationErrors, len(v))
	for k, msg := range v {
		out[k] = msg
	}
	return out
}

// Validate checks that both fields are present. Format and strength are left
// to the authentication service.
func Validate(values Credentials) ValidationErrors {
	errs := ValidationErrors{}
	if strings.TrimSpace(values.Email) == "" {
		errs[FieldEmail] = RequiredMessage
	}
	if values.Password == "" {
		errs[FieldPassword] = RequiredMessage
	}
	return errs
}
