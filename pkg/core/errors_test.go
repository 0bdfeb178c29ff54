package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/engramlabs/engram-go/pkg/core"
)

func TestEngineErrorMessage(t *testing.T) {
	err := core.NewEngineError("Remember", core.ErrPersistence)
	assert.Equal(t, "engram: Remember: snapshot persistence failed", err.Error())
}

func TestEngineErrorUnwrap(t *testing.T) {
	err := core.NewEngineError("Forget", core.ErrNotFound)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.False(t, errors.Is(err, core.ErrPersistence))
}

func TestNewEngineErrorNil(t *testing.T) {
	assert.Nil(t, core.NewEngineError("Anything", nil))
}

func TestEngineErrorWrapsArbitraryErrors(t *testing.T) {
	inner := errors.New("disk full")
	err := core.NewEngineError("Save", inner)
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "disk full")
}
