package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"ctleak/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapPicksDomainCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
		exit int
	}{
		{core.ErrDropTooLarge, CodeConfigInvalid, ExitConfigInvalid},
		{core.ErrOperandsExhausted, CodeResourceExhausted, ExitResourceExhausted},
		{core.ErrSelfCheck, CodeDeviceFailure, 1},
		{core.ErrTargetNotFound, CodeNotFound, ExitConfigInvalid},
		{fmt.Errorf("boom"), CodeInternalError, 1},
	}
	for _, tt := range tests {
		wrapped := Wrap(tt.err, "detection run failed")
		assert.Equal(t, tt.code, GetCode(wrapped), tt.err.Error())
		assert.Equal(t, tt.exit, ExitCode(wrapped), tt.err.Error())
		assert.True(t, stderrors.Is(wrapped, tt.err))
	}
}

func TestWrapKeepsAppErrorCode(t *testing.T) {
	inner := ResourceExhausted("batch buffers exceed ceiling")
	outer := Wrapf(Wrap(inner, "prepare"), "run %d", 3)

	assert.Equal(t, CodeResourceExhausted, GetCode(outer))
	assert.Equal(t, "run 3: prepare: batch buffers exceed ceiling", outer.Error())
	assert.True(t, IsAppError(outer))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
	assert.Nil(t, WithCode(CodeInternalError, nil))
}

func TestGetCodeUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, CodeConfigInvalid, GetCode(fmt.Errorf("flag: %w", core.ErrNoPercentiles)))
}

func TestWithCode(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := WithCode(CodeDatabaseError, cause)
	assert.Equal(t, CodeDatabaseError, GetCode(err))
	assert.ErrorIs(t, err, cause)

	recoded := WithCode(CodeInternalError, ConfigInvalid("bad dsn"))
	assert.Equal(t, CodeInternalError, GetCode(recoded))
	assert.Equal(t, "bad dsn", recoded.Error())
}
