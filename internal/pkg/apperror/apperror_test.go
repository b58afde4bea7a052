package apperror

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Validation("amount %d out of range", 0)

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "amount 0 out of range", err.Error())
}

func TestErrorIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create payment: %w", Gateway(io.ErrUnexpectedEOF, "stk push failed"))

	assert.True(t, errors.Is(wrapped, ErrGateway))
	assert.True(t, errors.Is(wrapped, io.ErrUnexpectedEOF))
	assert.Equal(t, KindGateway, KindOf(wrapped))
	assert.Equal(t, "create payment: stk push failed: unexpected EOF", wrapped.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
