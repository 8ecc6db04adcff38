package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(Unauthorized, "caller %s is not the owner", "bob").At("x1", "set_target", 1)

	assert.Equal(t, "Unauthorized: caller bob is not the owner (x1.set_target)", err.Error())
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(MaxCallDepthExceeded, "depth 17 exceeds 16")
	wrapped := fmt.Errorf("invoke impl.create_user: %w", inner)

	assert.Equal(t, MaxCallDepthExceeded, KindOf(wrapped))
	assert.True(t, Is(wrapped, MaxCallDepthExceeded))
	assert.True(t, errors.Is(wrapped, &Error{Kind: MaxCallDepthExceeded}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: Unauthorized}))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("disk full")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(ApplicationError, "caller is not an admin")

	got := Wrap(Internal, fmt.Errorf("run body: %w", inner), "storage failed")
	assert.Equal(t, ApplicationError, got.Kind)

	got = Wrap(Internal, errors.New("sqlite busy"), "storage failed")
	assert.Equal(t, Internal, got.Kind)
	assert.EqualError(t, got, "Internal: storage failed: sqlite busy")
}

func TestAs(t *testing.T) {
	assert.Nil(t, As(nil))

	fe := As(errors.New("boom"))
	require.NotNil(t, fe)
	assert.Equal(t, Internal, fe.Kind)
	assert.Equal(t, "boom", fe.Message)
}

func TestAtDoesNotOverwrite(t *testing.T) {
	err := New(SignatureMismatch, "bad arg").At("inner", "p", 2).At("outer", "q", 1)

	assert.Equal(t, "inner", err.Schema)
	assert.Equal(t, 2, err.Depth)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsAccessDenied(New(Unauthorized, "x")))
	assert.True(t, IsAccessDenied(New(NotExternallyCallable, "x")))
	assert.False(t, IsAccessDenied(New(ApplicationError, "x")))

	assert.True(t, IsCallerError(New(UnknownSchema, "x")))
	assert.False(t, IsCallerError(errors.New("x")))
	assert.False(t, IsCallerError(nil))
}

func TestKindsComplete(t *testing.T) {
	seen := map[Kind]bool{}
	for _, k := range Kinds {
		assert.False(t, seen[k], "duplicate kind %s", k)
		seen[k] = true
	}
	assert.Len(t, Kinds, 12)
}
