// internal/agent/planner.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// PlanInput is everything the planner shows the model.
type PlanInput struct {
	Instruction string
	CurrentURL  string
	Snapshot    *schemas.Snapshot
	Memory      []MemoryEntry
}

// Plan is a parsed planner answer.
type Plan struct {
	// Checklist is the markdown shown to the user.
	Checklist string
	Jobs      []Job
}

// PlannerConfig tunes the planner request.
type PlannerConfig struct {
	Tier        schemas.ModelTier
	Temperature float64
	// MaxContextTokens trims page text from the prompt when positive.
	MaxContextTokens int
}

const plannerSystemPrompt = `You are the planner of a browser automation agent. You turn a user instruction into a short markdown checklist followed by a list of browser jobs.

Available jobs (JSON objects, "kind" is required):
- {"kind": "Navigate", "url": "..."}: open a URL in the current tab.
- {"kind": "Click", "selector": "..."}: click the element matching a CSS selector.
- {"kind": "Type", "selector": "...", "text": "..."}: type text into the element.
- {"kind": "WaitFor", "selector": "..."}: wait until the element appears.
- {"kind": "ScrollTo", "selector": "..."}: scroll the element into view.
- {"kind": "Screenshot", "prefix": "..."}: save a screenshot named after the prefix.

Rules:
- Only use selectors that appear in the page snapshot, or that you are certain exist after a navigation.
- Jobs run one after another in the order given.
- Write the checklist first, then exactly one fenced code block tagged json that contains the job list as a JSON array.
- Do not write anything after the code block.`

var (
	exampleInstruction = `Search for "golang" on DuckDuckGo and take a screenshot of the results.`
	exampleChecklist   = `- [ ] Open DuckDuckGo
- [ ] Type "golang" into the search box
- [ ] Submit the search
- [ ] Wait for the results
- [ ] Take a screenshot of the results`
	exampleJobs = []Job{
		Navigate("https://duckduckgo.com"),
		Type(`input[name="q"]`, "golang"),
		Click(`button[type="submit"]`),
		WaitFor("#links"),
		Screenshot("golang-results"),
	}
)

// exampleResponse is the one-shot answer, serialized exactly as ParsePlan expects.
func exampleResponse() string {
	data, err := MarshalJobs(exampleJobs)
	if err != nil {
		panic(fmt.Sprintf("failed to encode planner example: %v", err))
	}
	return exampleChecklist + "\n\n```json\n" + string(data) + "\n```"
}

// Planner turns an instruction and page state into a checklist and jobs.
type Planner struct {
	llm     schemas.LLMClient
	logger  *zap.Logger
	cfg     PlannerConfig
	counter llmutil.TokenCounter
	example string
}

// NewPlanner creates a planner. counter may be nil when no token budget is set.
func NewPlanner(llm schemas.LLMClient, cfg PlannerConfig, counter llmutil.TokenCounter, logger *zap.Logger) *Planner {
	if cfg.Tier == "" {
		cfg.Tier = schemas.TierPowerful
	}
	return &Planner{
		llm:     llm,
		logger:  logger.Named("planner"),
		cfg:     cfg,
		counter: counter,
		example: exampleResponse(),
	}
}

// Plan makes one completion call and parses the answer. Parse failures are
// *schemas.MissingJobBlockError or *schemas.JobParseError; nothing is retried.
func (p *Planner) Plan(ctx context.Context, in PlanInput) (*Plan, error) {
	userPrompt, err := p.BuildPrompt(in)
	if err != nil {
		return nil, err
	}

	resp, err := p.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         p.cfg.Tier,
		Options:      schemas.GenerationOptions{Temperature: p.cfg.Temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}

	plan, err := ParsePlan(resp)
	if err != nil {
		p.logger.Warn("Failed to parse planner response.",
			zap.String("response", llmutil.Truncate(resp, 2000)),
			zap.Error(err))
		return nil, err
	}
	p.logger.Info("Plan ready.", zap.Int("jobs", len(plan.Jobs)))
	return plan, nil
}

// BuildPrompt renders the user prompt, trimming page text blocks from the end
// until it fits the token budget.
func (p *Planner) BuildPrompt(in PlanInput) (string, error) {
	snap := in.Snapshot
	if snap == nil {
		snap = &schemas.Snapshot{}
	}
	texts := snap.Texts

	prompt, err := p.renderPrompt(in, snap.Interactive, texts)
	if err != nil || p.cfg.MaxContextTokens <= 0 || p.counter == nil {
		return prompt, err
	}

	for {
		n, err := p.counter.Count(prompt)
		if err != nil {
			p.logger.Warn("Token counting failed, sending untrimmed prompt.", zap.Error(err))
			return prompt, nil
		}
		if n <= p.cfg.MaxContextTokens {
			return prompt, nil
		}
		if len(texts) == 0 {
			p.logger.Warn("Prompt exceeds the token budget even without page text.",
				zap.Int("tokens", n),
				zap.Int("budget", p.cfg.MaxContextTokens))
			return prompt, nil
		}
		drop := len(texts) / 4
		if drop == 0 {
			drop = 1
		}
		texts = texts[:len(texts)-drop]
		if prompt, err = p.renderPrompt(in, snap.Interactive, texts); err != nil {
			return "", err
		}
	}
}

func (p *Planner) renderPrompt(in PlanInput, interactive []schemas.ElementDescriptor, texts []schemas.TextBlock) (string, error) {
	history := in.Memory
	if history == nil {
		history = []MemoryEntry{}
	}
	if interactive == nil {
		interactive = []schemas.ElementDescriptor{}
	}
	if texts == nil {
		texts = []schemas.TextBlock{}
	}

	historyJSON, err := jsonCodec.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("failed to marshal memory history: %w", err)
	}
	interactiveJSON, err := jsonCodec.Marshal(interactive)
	if err != nil {
		return "", fmt.Errorf("failed to marshal interactive snapshot: %w", err)
	}
	textJSON, err := jsonCodec.Marshal(texts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal text snapshot: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Example instruction: %s\n\nExample answer:\n%s\n\n", exampleInstruction, p.example)
	fmt.Fprintf(&b, "Instruction: %s\n", in.Instruction)
	fmt.Fprintf(&b, "Current URL: %s\n\n", in.CurrentURL)
	fmt.Fprintf(&b, "Previous actions (oldest first):\n%s\n\n", historyJSON)
	fmt.Fprintf(&b, "Interactive elements:\n%s\n\n", interactiveJSON)
	fmt.Fprintf(&b, "Page text:\n%s\n", textJSON)
	return b.String(), nil
}

// ParsePlan splits a planner answer at its first tagged fenced block. The text
// before it is the checklist; the block is the job list.
func ParsePlan(response string) (*Plan, error) {
	block, ok := llmutil.ExtractTaggedBlock(response)
	if !ok {
		return nil, &schemas.MissingJobBlockError{Response: response}
	}
	jobs, err := ParseJobs([]byte(block.Body))
	if err != nil {
		return nil, &schemas.JobParseError{Block: block.Body, Err: err}
	}
	return &Plan{Checklist: block.Preamble, Jobs: jobs}, nil
}
