// internal/agent/planner_test.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/mocks"
)

// charCounter counts bytes as tokens.
type charCounter struct{ err error }

func (c charCounter) Count(text string) (int, error) { return len(text), c.err }

func pageSnapshot(texts int) *schemas.Snapshot {
	snap := &schemas.Snapshot{
		Interactive: []schemas.ElementDescriptor{
			{Tag: "input", Category: schemas.CategoryTypable, Selector: `input[name="q"]`, Label: "A"},
		},
	}
	for i := 0; i < texts; i++ {
		snap.Texts = append(snap.Texts, schemas.TextBlock{
			Selector: "main#content > p",
			Text:     fmt.Sprintf("paragraph number %d with some filler text", i),
			Index:    i + 1,
		})
	}
	return snap
}

func TestExampleResponse_ParsesToExampleJobs(t *testing.T) {
	plan, err := ParsePlan(exampleResponse())
	require.NoError(t, err)
	assert.Equal(t, exampleChecklist, plan.Checklist)
	assert.Equal(t, exampleJobs, plan.Jobs)
}

func TestParsePlan(t *testing.T) {
	t.Run("ChecklistBeforeBlock", func(t *testing.T) {
		resp := "- [ ] open the page\n\n```json\n[{\"kind\":\"navigate\",\"url\":\"https://example.com\"}]\n```"
		plan, err := ParsePlan(resp)
		require.NoError(t, err)
		assert.Equal(t, "- [ ] open the page", plan.Checklist)
		assert.Equal(t, []Job{Navigate("https://example.com")}, plan.Jobs)
	})

	t.Run("MissingBlock", func(t *testing.T) {
		_, err := ParsePlan("I would click the button.")
		var target *schemas.MissingJobBlockError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "I would click the button.", target.Response)
	})

	t.Run("UntaggedBlockIsIgnored", func(t *testing.T) {
		_, err := ParsePlan("```\n[]\n```")
		var target *schemas.MissingJobBlockError
		assert.ErrorAs(t, err, &target)
	})

	t.Run("BadJobs", func(t *testing.T) {
		_, err := ParsePlan("plan\n```json\n[{\"kind\":\"Hover\"}]\n```")
		var target *schemas.JobParseError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, `[{"kind":"Hover"}]`, target.Block)
	})

	t.Run("EmptyJobList", func(t *testing.T) {
		plan, err := ParsePlan("nothing to do\n```json\n[]\n```")
		require.NoError(t, err)
		assert.Empty(t, plan.Jobs)
	})
}

func TestPlanner_BuildPrompt(t *testing.T) {
	p := NewPlanner(new(mocks.MockLLMClient), PlannerConfig{}, nil, zaptest.NewLogger(t))
	mem := []MemoryEntry{NewMemoryEntry(Navigate("https://example.com"), "https://example.com/", epoch)}

	prompt, err := p.BuildPrompt(PlanInput{
		Instruction: "find the docs",
		CurrentURL:  "https://example.com/",
		Snapshot:    pageSnapshot(2),
		Memory:      mem,
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, exampleInstruction)
	assert.Contains(t, prompt, "Instruction: find the docs")
	assert.Contains(t, prompt, "Current URL: https://example.com/")
	assert.Contains(t, prompt, `"kind":"Navigate"`)
	assert.Contains(t, prompt, `input[name=\"q\"]`)
	assert.Contains(t, prompt, "paragraph number 1")
	assert.Less(t, strings.Index(prompt, "Instruction: find the docs"), strings.Index(prompt, "Interactive elements:"))
}

func TestPlanner_BuildPrompt_NilSnapshotAndMemory(t *testing.T) {
	p := NewPlanner(new(mocks.MockLLMClient), PlannerConfig{}, nil, zaptest.NewLogger(t))
	prompt, err := p.BuildPrompt(PlanInput{Instruction: "hi"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Previous actions (oldest first):\n[]")
	assert.Contains(t, prompt, "Interactive elements:\n[]")
	assert.Contains(t, prompt, "Page text:\n[]")
}

func TestPlanner_BuildPrompt_TrimsTextToBudget(t *testing.T) {
	logger := zaptest.NewLogger(t)
	in := PlanInput{Instruction: "summarize", Snapshot: pageSnapshot(10)}

	reference := NewPlanner(new(mocks.MockLLMClient), PlannerConfig{}, nil, logger)
	want, err := reference.renderPrompt(in, in.Snapshot.Interactive, in.Snapshot.Texts[:2])
	require.NoError(t, err)

	p := NewPlanner(new(mocks.MockLLMClient), PlannerConfig{MaxContextTokens: len(want)}, charCounter{}, logger)
	got, err := p.BuildPrompt(in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Contains(t, got, "paragraph number 1")
	assert.NotContains(t, got, "paragraph number 2")
	assert.Len(t, in.Snapshot.Texts, 10, "snapshot is not modified")
}

func TestPlanner_BuildPrompt_BudgetTooSmall(t *testing.T) {
	p := NewPlanner(new(mocks.MockLLMClient), PlannerConfig{MaxContextTokens: 10}, charCounter{}, zaptest.NewLogger(t))
	got, err := p.BuildPrompt(PlanInput{Instruction: "x", Snapshot: pageSnapshot(5)})
	require.NoError(t, err)
	assert.Contains(t, got, "Page text:\n[]")
	assert.Contains(t, got, `input[name=\"q\"]`, "interactive elements are never trimmed")
}

func TestPlanner_BuildPrompt_CounterErrorSendsUntrimmed(t *testing.T) {
	p := NewPlanner(new(mocks.MockLLMClient), PlannerConfig{MaxContextTokens: 10}, charCounter{err: errors.New("no encoding")}, zaptest.NewLogger(t))
	got, err := p.BuildPrompt(PlanInput{Instruction: "x", Snapshot: pageSnapshot(5)})
	require.NoError(t, err)
	assert.Contains(t, got, "paragraph number 4")
}

func TestPlanner_Plan(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
			return req.SystemPrompt == plannerSystemPrompt &&
				req.Tier == schemas.TierPowerful &&
				req.Options.Temperature == 0.2 &&
				strings.Contains(req.UserPrompt, "Instruction: search golang")
		})).Return(exampleResponse(), nil).Once()

		p := NewPlanner(llm, PlannerConfig{Temperature: 0.2}, nil, zaptest.NewLogger(t))
		plan, err := p.Plan(ctx, PlanInput{Instruction: "search golang", Snapshot: pageSnapshot(1)})
		require.NoError(t, err)
		assert.Equal(t, exampleJobs, plan.Jobs)
		llm.AssertExpectations(t)
	})

	t.Run("ConfiguredTier", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", ctx, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
			return req.Tier == schemas.TierFast
		})).Return(exampleResponse(), nil).Once()

		p := NewPlanner(llm, PlannerConfig{Tier: schemas.TierFast}, nil, zaptest.NewLogger(t))
		_, err := p.Plan(ctx, PlanInput{Instruction: "x"})
		require.NoError(t, err)
	})

	t.Run("NoBlockIsNotRetried", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Generate", ctx, mock.Anything).Return("Sure! I will do that.", nil).Once()

		p := NewPlanner(llm, PlannerConfig{}, nil, zaptest.NewLogger(t))
		_, err := p.Plan(ctx, PlanInput{Instruction: "x"})
		var target *schemas.MissingJobBlockError
		assert.ErrorAs(t, err, &target)
		llm.AssertNumberOfCalls(t, "Generate", 1)
	})

	t.Run("TransportError", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		boom := errors.New("503")
		llm.On("Generate", ctx, mock.Anything).Return("", boom).Once()

		p := NewPlanner(llm, PlannerConfig{}, nil, zaptest.NewLogger(t))
		_, err := p.Plan(ctx, PlanInput{Instruction: "x"})
		assert.ErrorIs(t, err, boom)
	})
}
