package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/internal/mocks"
)

func newUI(t *testing.T) (*UI, *mocks.MockBrowserSession) {
	t.Helper()
	sess := new(mocks.MockBrowserSession)
	return New(sess, 5*time.Millisecond, zaptest.NewLogger(t)), sess
}

func TestNew_DefaultInterval(t *testing.T) {
	u := New(new(mocks.MockBrowserSession), 0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultPollInterval, u.interval)
}

func TestPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("Submitted", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":true,"value":"  search for go  "}`, nil).Once()

		prompt, ok, err := u.Poll(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "search for go", prompt)
	})

	t.Run("NothingSubmitted", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":true,"value":null}`, nil).Once()

		_, ok, err := u.Poll(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("BlankIsIgnored", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":true,"value":"   "}`, nil).Once()

		_, ok, err := u.Poll(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MissingBoxIsReinjected", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":false,"value":null}`, nil).Once()
		sess.On("ExecuteScript", mock.Anything, injectScript, []interface{}(nil)).Return("true", nil).Once()

		_, ok, err := u.Poll(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		sess.AssertExpectations(t)
	})

	t.Run("GarbageResult", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).Return(`"nope"`, nil).Once()

		_, _, err := u.Poll(ctx)
		assert.Error(t, err)
	})
}

func TestNext(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("RetriesUntilSubmitted", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(nil, errors.New("navigation in progress")).Once()
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":true,"value":null}`, nil).Once()
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":true,"value":"/back"}`, nil).Once()

		prompt, err := u.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/back", prompt)
		sess.AssertExpectations(t)
	})

	t.Run("StopsOnCancel", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, pollScript, []interface{}(nil)).
			Return(`{"present":true,"value":null}`, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := u.Next(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWriteOutput(t *testing.T) {
	ctx := context.Background()

	t.Run("Written", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, outputScript, []interface{}{"- [ ] step `one`"}).Return("true", nil).Once()

		require.NoError(t, u.WriteOutput(ctx, "- [ ] step `one`"))
		sess.AssertExpectations(t)
	})

	t.Run("ReinjectsWhenMissing", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, outputScript, []interface{}{"done"}).Return("false", nil).Once()
		sess.On("ExecuteScript", mock.Anything, injectScript, []interface{}(nil)).Return("true", nil).Once()
		sess.On("ExecuteScript", mock.Anything, outputScript, []interface{}{"done"}).Return("true", nil).Once()

		require.NoError(t, u.WriteOutput(ctx, "done"))
		sess.AssertExpectations(t)
	})

	t.Run("ScriptError", func(t *testing.T) {
		u, sess := newUI(t)
		sess.On("ExecuteScript", mock.Anything, outputScript, []interface{}{"x"}).Return(nil, errors.New("detached")).Once()

		err := u.WriteOutput(ctx, "x")
		assert.ErrorContains(t, err, "detached")
	})
}
