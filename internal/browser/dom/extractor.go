// Package dom extracts labelled snapshots of the interactive elements and
// visible text on the current page.
package dom

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

//go:embed snapshot.js
var snapshotJS string

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

type scriptOptions struct {
	Annotate bool `json:"annotate"`
}

// payload is the raw shape returned by snapshot.js.
type payload struct {
	Error       *string                     `json:"error"`
	Interactive []schemas.ElementDescriptor `json:"interactive"`
	Texts       []schemas.TextBlock         `json:"texts"`
}

// Extractor captures page snapshots through a browser session.
type Extractor struct {
	logger   *zap.Logger
	annotate bool
}

// NewExtractor creates an extractor. With annotate set, labelled elements are
// outlined and badged in the page after the snapshot is taken.
func NewExtractor(annotate bool, logger *zap.Logger) *Extractor {
	return &Extractor{
		logger:   logger.Named("dom_extractor"),
		annotate: annotate,
	}
}

// Extract runs one snapshot pass over the current tab. Every failure is a
// *schemas.DomExtractionError; nothing is retried here.
func (e *Extractor) Extract(ctx context.Context, session schemas.BrowserSession) (*schemas.Snapshot, error) {
	raw, err := session.ExecuteScript(ctx, snapshotJS, scriptOptions{Annotate: e.annotate})
	if err != nil {
		return nil, &schemas.DomExtractionError{Diagnostic: "snapshot script failed to run", Err: err}
	}

	snap, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Extracted page snapshot.",
		zap.Int("interactive", len(snap.Interactive)),
		zap.Int("texts", len(snap.Texts)))
	return snap, nil
}

// Decode parses and validates a snapshot payload.
func Decode(raw []byte) (*schemas.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &schemas.DomExtractionError{Diagnostic: fmt.Sprintf("unexpected snapshot payload: %s", truncate(trimmed))}
	}

	var p payload
	if err := jsonCodec.Unmarshal(trimmed, &p); err != nil {
		return nil, &schemas.DomExtractionError{Diagnostic: truncate(trimmed), Err: err}
	}
	if p.Error != nil {
		return nil, &schemas.DomExtractionError{Diagnostic: *p.Error}
	}
	if err := validate(&p); err != nil {
		return nil, &schemas.DomExtractionError{Diagnostic: "invalid snapshot payload", Err: err}
	}

	snap := &schemas.Snapshot{Interactive: p.Interactive, Texts: p.Texts}
	if snap.Interactive == nil {
		snap.Interactive = []schemas.ElementDescriptor{}
	}
	if snap.Texts == nil {
		snap.Texts = []schemas.TextBlock{}
	}
	return snap, nil
}

func validate(p *payload) error {
	for i, el := range p.Interactive {
		if el.Tag == "" {
			return fmt.Errorf("interactive[%d]: empty tag", i)
		}
		if el.Selector == "" {
			return fmt.Errorf("interactive[%d]: empty selector", i)
		}
		if !el.Category.Valid() {
			return fmt.Errorf("interactive[%d]: invalid category %q", i, el.Category)
		}
		if want := Label(i); el.Label != want {
			return fmt.Errorf("interactive[%d]: label %q, want %q", i, el.Label, want)
		}
	}
	for i, t := range p.Texts {
		if t.Selector == "" {
			return fmt.Errorf("texts[%d]: empty selector", i)
		}
		if t.Index != i+1 {
			return fmt.Errorf("texts[%d]: index %d, want %d", i, t.Index, i+1)
		}
	}
	return nil
}

const maxDiagnostic = 512

func truncate(b []byte) string {
	if len(b) > maxDiagnostic {
		return string(b[:maxDiagnostic]) + "..."
	}
	return string(b)
}

// Label returns the base-26 letter label for the i-th element: A..Z, AA, AB...
func Label(i int) string {
	if i < 0 {
		return ""
	}
	var buf []byte
	for i >= 0 {
		buf = append([]byte{byte('A' + i%26)}, buf...)
		i = i/26 - 1
	}
	return string(buf)
}
