// internal/agent/negotiator.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// DefaultMaxLabelAttempts bounds label negotiation when no budget is configured.
const DefaultMaxLabelAttempts = 5

const (
	menuPrompt = `You are controlling a web browser. Here are the visible elements:

%s

Instruction: "%s"

Respond ONLY with the label of the best matching element (e.g., "A", "B"). Do NOT add explanations.`

	retryPrompt = `Your previous answer was invalid. You must ONLY return a label from this list: [%s].

Try again. Respond with just one label.

Instruction: "%s"`
)

// Negotiator asks the model for the label of the element an instruction refers to.
type Negotiator struct {
	llm         schemas.LLMClient
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	temperature float64
}

func NewNegotiator(llm schemas.LLMClient, maxAttempts int, temperature float64, logger *zap.Logger, metrics *observability.Metrics) *Negotiator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLabelAttempts
	}
	return &Negotiator{
		llm:         llm,
		logger:      logger.Named("negotiator"),
		metrics:     metrics,
		maxAttempts: maxAttempts,
		temperature: temperature,
	}
}

// Menu renders one line per labelled candidate.
func Menu(candidates []schemas.ElementDescriptor) string {
	lines := make([]string, 0, len(candidates))
	for _, el := range candidates {
		if el.Label == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] <%s> - text: %q, selector: %s", el.Label, el.Tag, el.Text, el.Selector))
	}
	return strings.Join(lines, "\n")
}

// Resolve returns a label that is guaranteed to belong to one of the
// candidates. Unlabelled candidates are ignored; an empty set fails before any
// completion call. Exhausting the budget is a *schemas.LabelResolutionError.
func (n *Negotiator) Resolve(ctx context.Context, instruction string, candidates []schemas.ElementDescriptor) (string, error) {
	valid := make(map[string]struct{}, len(candidates))
	labels := make([]string, 0, len(candidates))
	for _, el := range candidates {
		if el.Label == "" {
			continue
		}
		if _, dup := valid[el.Label]; !dup {
			labels = append(labels, el.Label)
		}
		valid[el.Label] = struct{}{}
	}
	if len(labels) == 0 {
		return "", &schemas.LabelResolutionError{Attempts: 0, Err: schemas.ErrNoCandidates}
	}

	menu := Menu(candidates)
	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		prompt := fmt.Sprintf(menuPrompt, menu, instruction)
		if attempt > 0 {
			prompt = fmt.Sprintf(retryPrompt, strings.Join(labels, ", "), instruction)
		}

		resp, err := n.llm.Generate(ctx, schemas.GenerationRequest{
			UserPrompt: prompt,
			Tier:       schemas.TierFast,
			Options:    schemas.GenerationOptions{Temperature: n.temperature},
		})
		if err != nil {
			return "", fmt.Errorf("label negotiation request failed on attempt %d: %w", attempt+1, err)
		}

		label := strings.TrimSpace(resp)
		if _, ok := valid[label]; ok {
			n.metrics.RecordLabelAttempt("hit")
			n.logger.Debug("Label resolved.", zap.String("label", label), zap.Int("attempt", attempt+1))
			return label, nil
		}
		n.metrics.RecordLabelAttempt("miss")
		n.logger.Warn("Rejected label outside the candidate set.",
			zap.Int("attempt", attempt+1),
			zap.String("response", label))
	}
	return "", &schemas.LabelResolutionError{Attempts: n.maxAttempts}
}
