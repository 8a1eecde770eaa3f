package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const prefix = "apr-"

// NewFunc returns a new request identifier. It is a variable so tests can
// stub it with a deterministic sequence.
var NewFunc = func() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + hex[:12]
}

// New returns a new request identifier of the form apr-<12 hex>.
func New() string { return NewFunc() }
