package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// -- Remote Control Capability --

// ElementRef is an opaque handle to a located element. Only the session that
// produced it can act on it.
type ElementRef interface {
	// Selector returns the selector the element was located with.
	Selector() string
}

// BrowserSession is the remote-control capability the agent drives. One
// session owns one browser connection and tracks its current tab explicitly.
//
//go:generate mockery --name BrowserSession --output ../../internal/mocks --outpkg mocks
type BrowserSession interface {
	ID() string

	// Navigation
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// Elements. FindElement waits up to the session's element timeout.
	FindElement(ctx context.Context, selector string) (ElementRef, error)
	ClickElement(ctx context.Context, el ElementRef) error
	SendKeysToElement(ctx context.Context, el ElementRef, text string) error
	// WaitFor reports whether the selector appeared within timeout. A timeout is not an error.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// ExecuteScript runs a function body (using `arguments[i]` and `return`) in
	// the current tab and returns the JSON encoded result.
	ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// Tabs. The current tab only changes through these calls.
	ListTabs(ctx context.Context) ([]TabHandle, error)
	OpenTab(ctx context.Context) (TabHandle, error)
	SwitchTab(ctx context.Context, index int) error
	CloseTab(ctx context.Context, index int) error
	CurrentTab() TabHandle

	Close(ctx context.Context) error
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling for a single request.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
	MaxTokens       int     `json:"max_tokens"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	// Model overrides the model configured for the tier when set.
	Model   string            `json:"model,omitempty"`
	Tier    ModelTier         `json:"tier"`
	Options GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
