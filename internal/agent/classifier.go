// internal/agent/classifier.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const classifierPrompt = `Given the instruction below, determine whether the user wants to CLICK something or TYPE something into a form.

Instruction: "%s"

Respond with exactly one word: "click" or "type"`

// Classifier decides whether an instruction is a click or a typing action.
type Classifier struct {
	llm         schemas.LLMClient
	logger      *zap.Logger
	temperature float64
}

func NewClassifier(llm schemas.LLMClient, temperature float64, logger *zap.Logger) *Classifier {
	return &Classifier{
		llm:         llm,
		logger:      logger.Named("classifier"),
		temperature: temperature,
	}
}

// Classify makes exactly one completion call. Any answer other than "click"
// or "type" is an *schemas.InvalidActionError.
func (c *Classifier) Classify(ctx context.Context, instruction string) (schemas.ActionCategory, error) {
	resp, err := c.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: fmt.Sprintf(classifierPrompt, instruction),
		Tier:       schemas.TierFast,
		Options:    schemas.GenerationOptions{Temperature: c.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("action classification request failed: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "click":
		return schemas.CategoryClickable, nil
	case "type":
		return schemas.CategoryTypable, nil
	}
	c.logger.Warn("Classifier answered outside the allowed vocabulary.", zap.String("response", resp))
	return "", &schemas.InvalidActionError{Response: resp}
}
