package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("resolve metadata: %w", Wrap(KindNotFound, "vaccine not found", cause))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "vaccine not found", Message(err))
}

func TestKindOfUnclassified(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, "internal server error", Message(err))
	assert.False(t, Is(err, KindConflict))
}
