package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(&loginBody{Email: "a@b.com", Password: "x"}))
}

func TestStruct_UsesJSONFieldNames(t *testing.T) {
	err := Struct(&loginBody{Email: "not-an-email"})
	assert.EqualError(t, err, "field 'email' failed 'email'; field 'password' failed 'required'")
}

type passwordBody struct {
	Password string `json:"password" validate:"maxbytes=72"`
}

func TestStruct_MaxBytesCountsBytes(t *testing.T) {
	assert.NoError(t, Struct(&passwordBody{Password: strings.Repeat("a", 72)}))
	assert.NoError(t, Struct(&passwordBody{Password: strings.Repeat("€", 24)}))

	err := Struct(&passwordBody{Password: strings.Repeat("€", 30)})
	assert.EqualError(t, err, "field 'password' failed 'maxbytes'")
}
