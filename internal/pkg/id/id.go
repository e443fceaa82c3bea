package id

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/oklog/ulid/v2"
)

const employeeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time and are used as token jti values.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// EmployeeID returns "{orgID}-XXXX" with a random 4-character uppercase
// alphanumeric suffix.
func EmployeeID(orgID string) (string, error) {
	suffix := make([]byte, 4)
	base := big.NewInt(int64(len(employeeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate employee id: %w", err)
		}
		suffix[i] = employeeAlphabet[n.Int64()]
	}
	return orgID + "-" + string(suffix), nil
}
