package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	cloned := Clone(ErrCatalogLoad, "data file missing")
	assert.True(t, errors.Is(cloned, ErrCatalogLoad))
	assert.False(t, errors.Is(cloned, ErrValidation))

	wrapped := fmt.Errorf("outer: %w", WrapAs(ErrTransientService, errors.New("redis down"), ""))
	assert.True(t, errors.Is(wrapped, ErrTransientService))
}

func TestWrapAsKeepsSentinelStatus(t *testing.T) {
	cause := errors.New("boom")
	err := WrapAs(ErrCatalogLoad, cause, "")
	require.Equal(t, ErrCatalogLoad.Code, err.Code)
	require.Equal(t, http.StatusInternalServerError, err.Status)
	require.Equal(t, ErrCatalogLoad.Message, err.Message)
	require.ErrorIs(t, err, cause)
}

func TestFromErrorNormalises(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := FromError(errors.New("plain"))
	assert.Equal(t, ErrInternal.Code, plain.Code)

	typed := FromError(fmt.Errorf("ctx: %w", ErrRunInProgress))
	assert.Equal(t, ErrRunInProgress.Code, typed.Code)
	assert.Equal(t, http.StatusConflict, typed.Status)
}

func TestCloneDoesNotMutateSentinel(t *testing.T) {
	clone := Clone(ErrNotFound, "run not found")
	assert.Equal(t, "run not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Equal(t, "<nil>", (*Error)(nil).Error())
}
