package octaveerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := octaveerr.New("save_message_with_blocks", octaveerr.KindDbError, cause)

	assert.Equal(t, "save_message_with_blocks: db_error: disk full", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestError_MessageWithoutCause(t *testing.T) {
	err := octaveerr.New("smart_select", octaveerr.KindTooFewMessages, nil)
	assert.Equal(t, "smart_select: too_few_messages", err.Error())
}

func TestIs_MatchesByKind(t *testing.T) {
	err := octaveerr.New("get_message", octaveerr.KindNotFound, errors.New("no rows"))
	assert.True(t, octaveerr.Is(err, octaveerr.KindNotFound))
	assert.False(t, octaveerr.Is(err, octaveerr.KindDbError))
}

func TestErrorsIs_MatchesDirectNotStringWrapped(t *testing.T) {
	inner := octaveerr.New("op", octaveerr.KindCancelled, nil)
	wrapped := errors.New("context: " + inner.Error())
	assert.False(t, errors.Is(wrapped, inner)) // plain wrapping via errors.New doesn't chain Unwrap

	var asErr *octaveerr.Error
	require := assert.New(t)
	require.True(errors.As(inner, &asErr))
	require.True(errors.Is(inner, inner))
}

func TestKindOf(t *testing.T) {
	err := octaveerr.New("dispatch", octaveerr.KindToolCallTimeout, nil)
	kind, ok := octaveerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, octaveerr.KindToolCallTimeout, kind)

	_, ok = octaveerr.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	assert.Nil(t, octaveerr.Wrap("op", octaveerr.KindDbError, nil))
}
