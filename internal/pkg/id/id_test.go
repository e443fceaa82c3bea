package id

import (
	"regexp"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsULID(t *testing.T) {
	_, err := ulid.Parse(New())
	assert.NoError(t, err)
	assert.NotEqual(t, New(), New())
}

func TestEmployeeID_Format(t *testing.T) {
	re := regexp.MustCompile(`^ORG1-[A-Z0-9]{4}$`)
	for i := 0; i < 20; i++ {
		got, err := EmployeeID("ORG1")
		require.NoError(t, err)
		assert.Regexp(t, re, got)
	}
}
