package fatdisko_test

import (
	"errors"
	"testing"

	"github.com/dargueta/fatdisko"
	"github.com/stretchr/testify/assert"
)

func TestFatErrorWithMessage(t *testing.T) {
	newErr := fatdisko.ErrNotFound.WithMessage("/FOO.TXT")
	assert.Equal(t, "no such file or directory: /FOO.TXT", newErr.Error())
	assert.ErrorIs(t, newErr, fatdisko.ErrNotFound)
}

func TestFatErrorWrapError(t *testing.T) {
	originalErr := errors.New("short read")
	newErr := fatdisko.ErrIoError.WrapError(originalErr)
	expectedMessage := "i/o error: short read"

	assert.EqualValues(t, expectedMessage, newErr.Error())
	assert.ErrorIs(t, newErr, originalErr, "original error not reachable")
	assert.ErrorIs(t, newErr, fatdisko.ErrIoError, "sentinel not reachable")
}

func TestFatErrorChaining(t *testing.T) {
	newErr := fatdisko.ErrCorrupted.WithMessage("bad FAT").WithMessage("mount failed")
	assert.Equal(t, "file system corrupted: bad FAT: mount failed", newErr.Error())
	assert.ErrorIs(t, newErr, fatdisko.ErrCorrupted)
}
