package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestMockLLMClient_CanceledContext(t *testing.T) {
	m := new(MockLLMClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestMockBrowserSession_ExecuteScript(t *testing.T) {
	m := new(MockBrowserSession)
	m.On("ExecuteScript", mock.Anything, "return 1;", []interface{}(nil)).Return("1", nil).Once()
	m.On("ExecuteScript", mock.Anything, "return arguments[0];", []interface{}{"x"}).Return(json.RawMessage(`"x"`), nil).Once()
	m.On("ExecuteScript", mock.Anything, "throw 1;", []interface{}(nil)).Return(nil, errors.New("boom")).Once()

	raw, err := m.ExecuteScript(context.Background(), "return 1;")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("1"), raw)

	raw, err = m.ExecuteScript(context.Background(), "return arguments[0];", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(raw))

	_, err = m.ExecuteScript(context.Background(), "throw 1;")
	assert.EqualError(t, err, "boom")
	m.AssertExpectations(t)
}

func TestMockBrowserSession_NilElement(t *testing.T) {
	m := new(MockBrowserSession)
	m.On("FindElement", mock.Anything, "#missing").Return(nil, errors.New("not found"))

	el, err := m.FindElement(context.Background(), "#missing")
	assert.Nil(t, el)
	assert.Error(t, err)
}
