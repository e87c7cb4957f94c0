// internal/browser/session/context_utils_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

const testKey ctxKey = "tab"

func TestCombineContext(t *testing.T) {
	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), testKey, "target-1")

		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "target-1", combined.Value(testKey))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelledBySecondaryKeepsCause", func(t *testing.T) {
		secondary, cancelSecondary := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelSecondary()

		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled by the secondary context")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
		assert.ErrorIs(t, context.Cause(combined), context.DeadlineExceeded)
	})

	t.Run("SecondaryAlreadyDone", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		cancelSecondary()

		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("DeadlineFromPrimary", func(t *testing.T) {
		deadline := time.Now().Add(time.Minute)
		primary, cancelPrimary := context.WithDeadline(context.Background(), deadline)
		defer cancelPrimary()

		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		got, ok := combined.Deadline()
		require.True(t, ok)
		assert.True(t, got.Equal(deadline))
	})

	t.Run("ExplicitCancelDoesNotTouchInputs", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		defer cancelPrimary()
		secondary, cancelSecondary := context.WithCancel(context.Background())
		defer cancelSecondary()

		combined, cancel := CombineContext(primary, secondary)
		cancel()

		assert.ErrorIs(t, combined.Err(), context.Canceled)
		assert.NoError(t, primary.Err())
		assert.NoError(t, secondary.Err())
	})
}

func TestDetach(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.WithValue(context.Background(), testKey, "target-2"))
	detached := Detach(parent)
	cancelParent()

	assert.ErrorIs(t, parent.Err(), context.Canceled)
	assert.NoError(t, detached.Err(), "detached context ignores parent cancellation")
	assert.Equal(t, "target-2", detached.Value(testKey))
	_, ok := detached.Deadline()
	assert.False(t, ok)
}

func TestDetachWithTimeout(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	cancelParent()

	ctx, cancel := DetachWithTimeout(parent, 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, ctx.Err())
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
