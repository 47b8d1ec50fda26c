package overlay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/internal/mocks"
)

func newOverlay(t *testing.T) (*Session, *mocks.MockBrowserSession) {
	t.Helper()
	inner := new(mocks.MockBrowserSession)
	inner.On("ID").Return("sess-1")
	return New(inner, zaptest.NewLogger(t)), inner
}

func expectPush(inner *mocks.MockBrowserSession, msg string) *mock.Call {
	return inner.On("ExecuteScript", mock.Anything, pushScript, []interface{}{msg}).Return("true", nil).Once()
}

func TestSession_PushesBeforeEachAction(t *testing.T) {
	ctx := context.Background()
	s, inner := newOverlay(t)
	el := &mocks.MockElement{Sel: "#q"}

	var order []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { order = append(order, name) }
	}

	expectPush(inner, "Navigating to https://example.com").Run(record("push"))
	inner.On("Navigate", ctx, "https://example.com").Return(nil).Run(record("navigate"))
	expectPush(inner, "Clicking element '#q'")
	inner.On("ClickElement", ctx, el).Return(nil)
	expectPush(inner, "Typing 'hello' into '#q'")
	inner.On("SendKeysToElement", ctx, el, "hello").Return(nil)
	expectPush(inner, "Navigating back")
	inner.On("Back", ctx).Return(nil)
	expectPush(inner, "Navigating forward")
	inner.On("Forward", ctx).Return(nil)
	expectPush(inner, "Switching to tab 2")
	inner.On("SwitchTab", ctx, 2).Return(nil)
	expectPush(inner, "Closing tab 1")
	inner.On("CloseTab", ctx, 1).Return(nil)

	require.NoError(t, s.Navigate(ctx, "https://example.com"))
	require.NoError(t, s.ClickElement(ctx, el))
	require.NoError(t, s.SendKeysToElement(ctx, el, "hello"))
	require.NoError(t, s.Back(ctx))
	require.NoError(t, s.Forward(ctx))
	require.NoError(t, s.SwitchTab(ctx, 2))
	require.NoError(t, s.CloseTab(ctx, 1))

	assert.Equal(t, []string{"push", "navigate"}, order)
	inner.AssertExpectations(t)
}

func TestSession_PushFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	inner := new(mocks.MockBrowserSession)
	inner.On("ID").Return("sess-1")
	s := New(inner, zap.New(core))

	inner.On("ExecuteScript", mock.Anything, pushScript, []interface{}{"Navigating back"}).
		Return(nil, errors.New("page is gone")).Once()
	inner.On("Back", ctx).Return(nil).Once()

	require.NoError(t, s.Back(ctx))
	assert.Equal(t, 1, logs.FilterMessage("Failed to push browser log line.").Len())
	inner.AssertExpectations(t)
}

func TestSession_ForwardsUndecoratedCalls(t *testing.T) {
	ctx := context.Background()
	s, inner := newOverlay(t)

	inner.On("CurrentURL", ctx).Return("https://example.com/a", nil).Once()
	inner.On("Close", ctx).Return(nil).Once()

	url, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", url)
	assert.Equal(t, "sess-1", s.ID())
	assert.Same(t, inner, s.Unwrap())
	require.NoError(t, s.Close(ctx))
	inner.AssertExpectations(t)
}
