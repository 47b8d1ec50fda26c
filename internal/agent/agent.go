// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/dom"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

const searchURL = "https://duckduckgo.com/?q="

// quotedText finds the first double-quoted run in an instruction.
var quotedText = regexp.MustCompile(`"([^"]*)"`)

// Agent ties page snapshots, the model and job execution to one browser session.
type Agent struct {
	session    schemas.BrowserSession
	logger     *zap.Logger
	extractor  *dom.Extractor
	classifier *Classifier
	negotiator *Negotiator
	planner    *Planner
	executor   *Executor
	memory     *Memory
}

// New wires an agent. A nil memory starts an empty history with the configured capacity.
func New(session schemas.BrowserSession, llm schemas.LLMClient, cfg config.Interface, memory *Memory, logger *zap.Logger, metrics *observability.Metrics) *Agent {
	agentCfg := cfg.Agent()
	browserCfg := cfg.Browser()
	logger = logger.Named("agent").With(zap.String("session_id", session.ID()))

	if memory == nil {
		memory = NewMemory(agentCfg.Memory.Capacity)
	}

	var counter llmutil.TokenCounter
	if agentCfg.Planner.MaxContextTokens > 0 {
		counter = llmutil.NewTiktokenCounter(agentCfg.Planner.TokenizerModel)
	}

	return &Agent{
		session:    session,
		logger:     logger,
		extractor:  dom.NewExtractor(browserCfg.Annotate, logger),
		classifier: NewClassifier(llm, agentCfg.Temperature, logger),
		negotiator: NewNegotiator(llm, agentCfg.MaxLabelAttempts, agentCfg.Temperature, logger, metrics),
		planner: NewPlanner(llm, PlannerConfig{
			Tier:             schemas.ModelTier(strings.ToLower(agentCfg.Planner.Tier)),
			Temperature:      agentCfg.Temperature,
			MaxContextTokens: agentCfg.Planner.MaxContextTokens,
		}, counter, logger),
		executor: NewExecutor(session, ExecutorConfig{
			Attempts:      agentCfg.JobAttempts,
			ScreenshotDir: agentCfg.ScreenshotDir,
			WaitTimeout:   browserCfg.WaitTimeout,
		}, logger, metrics),
		memory: memory,
	}
}

func (a *Agent) Memory() *Memory     { return a.memory }
func (a *Agent) Executor() *Executor { return a.executor }

// Snapshot extracts the current page.
func (a *Agent) Snapshot(ctx context.Context) (*schemas.Snapshot, error) {
	return a.extractor.Extract(ctx, a.session)
}

// DecideLabel classifies the instruction, narrows the snapshot to that
// category and negotiates a label. The returned descriptor is always from snap.
func (a *Agent) DecideLabel(ctx context.Context, instruction string, snap *schemas.Snapshot) (schemas.ElementDescriptor, error) {
	category, err := a.classifier.Classify(ctx, instruction)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}
	candidates := snap.Filter(category)
	a.logger.Debug("Negotiating label.", zap.String("category", string(category)), zap.Int("candidates", len(candidates)))

	label, err := a.negotiator.Resolve(ctx, instruction, candidates)
	if err != nil {
		return schemas.ElementDescriptor{}, err
	}
	el, ok := snap.ByLabel(label)
	if !ok {
		return schemas.ElementDescriptor{}, &schemas.LabelResolutionError{
			Err: fmt.Errorf("label %q missing from snapshot", label),
		}
	}
	return el, nil
}

// Act performs a single click or type instruction on the current page. Text
// to type is taken from the first double-quoted part of the instruction.
func (a *Agent) Act(ctx context.Context, instruction string) (Job, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return Job{}, err
	}
	el, err := a.DecideLabel(ctx, instruction, snap)
	if err != nil {
		return Job{}, err
	}

	job := Click(el.Selector)
	if el.Category == schemas.CategoryTypable {
		m := quotedText.FindStringSubmatch(instruction)
		if m == nil {
			return Job{}, fmt.Errorf("instruction targets a text field but has no double-quoted text to type")
		}
		job = Type(el.Selector, m[1])
	}
	a.logger.Info("Acting on element.", zap.String("label", el.Label), zap.Stringer("job", job))
	return job, a.executor.RunAll(ctx, []Job{job}, a.memory)
}

// Plan snapshots the page and asks the planner for a checklist and jobs.
func (a *Agent) Plan(ctx context.Context, instruction string) (*Plan, error) {
	current, err := a.session.CurrentURL(ctx)
	if err != nil {
		a.logger.Debug("Could not read current URL for planning.", zap.Error(err))
	}
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return a.planner.Plan(ctx, PlanInput{
		Instruction: instruction,
		CurrentURL:  current,
		Snapshot:    snap,
		Memory:      a.memory.All(),
	})
}

// Execute runs jobs and records each success in memory.
func (a *Agent) Execute(ctx context.Context, jobs []Job) error {
	return a.executor.RunAll(ctx, jobs, a.memory)
}

// Search opens a DuckDuckGo results page for query.
func (a *Agent) Search(ctx context.Context, query string) error {
	a.logger.Info("Searching.", zap.String("query", query))
	return a.Execute(ctx, []Job{Navigate(SearchURL(query))})
}

// SearchURL is the DuckDuckGo results URL for query.
func SearchURL(query string) string {
	return searchURL + url.QueryEscape(query)
}
