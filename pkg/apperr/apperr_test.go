package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("dataset %q not found", "tx.csv")))
	assert.Equal(t, KindMalformedInput, KindOf(MalformedInput("ragged row")))
	assert.Equal(t, KindInvalidRequest, KindOf(InvalidRequest("bins must be positive")))
	assert.Equal(t, KindProfileMissing, KindOf(ProfileMissing("no profile")))
	assert.Equal(t, KindRender, KindOf(Render("no values")))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestKindOfWrappedChain(t *testing.T) {
	base := NotFound("dataset gone")
	wrapped := fmt.Errorf("while resolving: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindRender))
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(KindRender, io.ErrUnexpectedEOF, "chart render failed")

	assert.Equal(t, KindRender, KindOf(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "render_error")
	assert.Contains(t, err.Error(), "chart render failed")
	assert.Contains(t, err.Error(), io.ErrUnexpectedEOF.Error())
}

func TestErrorMessageFormat(t *testing.T) {
	err := InvalidRequest("column %q is not numeric", "Class")
	assert.Equal(t, `invalid_request: column "Class" is not numeric`, err.Error())
}
