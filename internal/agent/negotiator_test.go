// internal/agent/negotiator_test.go
package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/mocks"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

var candidates = []schemas.ElementDescriptor{
	{Tag: "button", Category: schemas.CategoryClickable, Selector: "form#s > button", Text: "Search", Label: "B"},
	{Tag: "a", Category: schemas.CategoryClickable, Selector: "nav#top > a:nth-of-type(2)", Text: "About", Label: "D"},
	{Tag: "a", Category: schemas.CategoryClickable, Selector: "div#x > a", Text: "unlabelled"},
}

func newNegotiator(t *testing.T, llm schemas.LLMClient, attempts int) *Negotiator {
	return NewNegotiator(llm, attempts, 0.4, zaptest.NewLogger(t), observability.NewMetrics())
}

func isMenuPrompt(req schemas.GenerationRequest) bool {
	return strings.Contains(req.UserPrompt, "Here are the visible elements")
}

func TestMenu(t *testing.T) {
	want := "[B] <button> - text: \"Search\", selector: form#s > button\n" +
		"[D] <a> - text: \"About\", selector: nav#top > a:nth-of-type(2)"
	assert.Equal(t, want, Menu(candidates))
}

func TestNegotiator_FirstAnswerValid(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return isMenuPrompt(req) &&
			strings.Contains(req.UserPrompt, Menu(candidates)) &&
			strings.Contains(req.UserPrompt, `Instruction: "open the about page"`)
	})).Return(" D \n", nil).Once()

	label, err := newNegotiator(t, llm, 5).Resolve(context.Background(), "open the about page", candidates)
	require.NoError(t, err)
	assert.Equal(t, "D", label)
	llm.AssertNumberOfCalls(t, "Generate", 1)
}

func TestNegotiator_RetryNarrowsPrompt(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(isMenuPrompt)).Return("Z", nil).Once()
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return !isMenuPrompt(req) &&
			strings.Contains(req.UserPrompt, "label from this list: [B, D]") &&
			strings.Contains(req.UserPrompt, `Instruction: "search"`)
	})).Return("the answer is B", nil).Once().
		On("Generate", mock.Anything, mock.Anything).Return("B", nil).Once()

	label, err := newNegotiator(t, llm, 5).Resolve(context.Background(), "search", candidates)
	require.NoError(t, err)
	assert.Equal(t, "B", label)
	llm.AssertNumberOfCalls(t, "Generate", 3)
}

func TestNegotiator_BudgetExhausted(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return("Q", nil)

	_, err := newNegotiator(t, llm, 3).Resolve(context.Background(), "search", candidates)
	var labelErr *schemas.LabelResolutionError
	require.ErrorAs(t, err, &labelErr)
	assert.Equal(t, 3, labelErr.Attempts)
	llm.AssertNumberOfCalls(t, "Generate", 3)
}

func TestNegotiator_UnlabelledLabelIsNotAccepted(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return("", nil)

	_, err := newNegotiator(t, llm, 2).Resolve(context.Background(), "x", candidates)
	assert.Equal(t, schemas.ErrCodeLabelResolution, schemas.CodeOf(err))
}

func TestNegotiator_NoCandidates(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	n := newNegotiator(t, llm, 5)

	for _, set := range [][]schemas.ElementDescriptor{nil, {{Tag: "a", Selector: "a"}}} {
		_, err := n.Resolve(context.Background(), "x", set)
		var labelErr *schemas.LabelResolutionError
		require.ErrorAs(t, err, &labelErr)
		assert.Equal(t, 0, labelErr.Attempts)
		assert.ErrorIs(t, err, schemas.ErrNoCandidates)
	}
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestNegotiator_TransportErrorStops(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	boom := errors.New("rate limited")
	llm.On("Generate", mock.Anything, mock.Anything).Return("", boom).Once()

	_, err := newNegotiator(t, llm, 5).Resolve(context.Background(), "x", candidates)
	assert.ErrorIs(t, err, boom)
	llm.AssertNumberOfCalls(t, "Generate", 1)
}

func TestNewNegotiator_DefaultBudget(t *testing.T) {
	n := NewNegotiator(new(mocks.MockLLMClient), 0, 0, zaptest.NewLogger(t), nil)
	assert.Equal(t, DefaultMaxLabelAttempts, n.maxAttempts)
}
