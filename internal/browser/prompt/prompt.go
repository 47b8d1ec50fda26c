// Package prompt manages the in-page prompt box the user types instructions
// into and the output box the agent answers in.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

const (
	DefaultPollInterval = 500 * time.Millisecond

	InputID  = "iu-prompt-input"
	OutputID = "iu-output-textarea"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const injectScript = `
if (document.getElementById('iu-prompt-wrapper')) { return false; }
if (!document.body) { return false; }

var style = document.createElement('style');
style.textContent =
  '#iu-prompt-wrapper{position:fixed;bottom:20px;left:20px;z-index:9999;display:flex;' +
  'flex-direction:column;gap:12px;font-family:sans-serif;}' +
  '.iu-box{width:340px;padding:12px;background:rgba(0,0,0,0);color:red;border-radius:10px;font-size:14px;}' +
  '#iu-prompt-input{width:100%;padding:10px;border:1px solid red;border-radius:8px;' +
  'background:rgba(0,0,0,0.2);color:red;font-size:14px;}' +
  '#iu-output-textarea{width:100%;height:120px;resize:none;background:rgba(0,0,0,0.2);' +
  'border:1px solid red;color:red;font-size:13px;padding:10px;border-radius:8px;font-family:monospace;}';
(document.head || document.documentElement).appendChild(style);

var wrapper = document.createElement('div');
wrapper.id = 'iu-prompt-wrapper';

var promptBox = document.createElement('div');
promptBox.className = 'iu-box';
var input = document.createElement('input');
input.id = 'iu-prompt-input';
input.placeholder = 'Prompt...';
input.type = 'text';
promptBox.appendChild(input);
wrapper.appendChild(promptBox);

var outputBox = document.createElement('div');
outputBox.className = 'iu-box';
var output = document.createElement('textarea');
output.id = 'iu-output-textarea';
output.placeholder = 'Agent output...';
outputBox.appendChild(output);
wrapper.appendChild(outputBox);

document.body.appendChild(wrapper);

input.addEventListener('keydown', function (e) {
  if (e.key === 'Enter') {
    e.preventDefault();
    input.setAttribute('data-submitted', 'true');
  }
});
return true;
`

// pollScript consumes a submitted prompt. present is false when the page
// no longer carries the prompt box, e.g. after a navigation.
const pollScript = `
var input = document.getElementById('iu-prompt-input');
if (!input) { return {present: false, value: null}; }
if (input.getAttribute('data-submitted') === 'true') {
  input.setAttribute('data-submitted', 'false');
  var value = input.value;
  input.value = '';
  return {present: true, value: value};
}
return {present: true, value: null};
`

const outputScript = `
var output = document.getElementById('iu-output-textarea');
if (!output) { return false; }
output.value = arguments[0];
return true;
`

type pollResult struct {
	Present bool    `json:"present"`
	Value   *string `json:"value"`
}

// UI drives the prompt and output boxes of one browser session.
type UI struct {
	session  schemas.BrowserSession
	logger   *zap.Logger
	interval time.Duration
}

// New creates a prompt UI bound to session. A non-positive interval uses DefaultPollInterval.
func New(session schemas.BrowserSession, interval time.Duration, logger *zap.Logger) *UI {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &UI{
		session:  session,
		logger:   logger.Named("prompt"),
		interval: interval,
	}
}

// Inject adds the prompt and output boxes to the current page unless already present.
func (u *UI) Inject(ctx context.Context) error {
	if _, err := u.session.ExecuteScript(ctx, injectScript); err != nil {
		return fmt.Errorf("failed to inject prompt ui: %w", err)
	}
	return nil
}

// Poll checks once for a submitted prompt. It re-injects the boxes when the
// page lost them and reports ok only for a non-blank prompt.
func (u *UI) Poll(ctx context.Context) (string, bool, error) {
	raw, err := u.session.ExecuteScript(ctx, pollScript)
	if err != nil {
		return "", false, fmt.Errorf("failed to poll prompt: %w", err)
	}
	var res pollResult
	if err := jsonCodec.Unmarshal(raw, &res); err != nil {
		return "", false, fmt.Errorf("unexpected prompt poll result %s: %w", string(raw), err)
	}
	if !res.Present {
		u.logger.Debug("Prompt box missing, re-injecting.")
		return "", false, u.Inject(ctx)
	}
	if res.Value == nil || strings.TrimSpace(*res.Value) == "" {
		return "", false, nil
	}
	return strings.TrimSpace(*res.Value), true, nil
}

// Next blocks until a prompt is submitted or ctx is done. Poll failures are
// logged and retried on the next tick; pages mid-navigation routinely reject scripts.
func (u *UI) Next(ctx context.Context) (string, error) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		prompt, ok, err := u.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			u.logger.Debug("Prompt poll failed.", zap.Error(err))
		} else if ok {
			return prompt, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteOutput replaces the output box content with text.
func (u *UI) WriteOutput(ctx context.Context, text string) error {
	raw, err := u.session.ExecuteScript(ctx, outputScript, text)
	if err != nil {
		return fmt.Errorf("failed to write prompt output: %w", err)
	}
	if string(raw) == "false" {
		u.logger.Debug("Output box missing, re-injecting before write.")
		if err := u.Inject(ctx); err != nil {
			return err
		}
		if _, err := u.session.ExecuteScript(ctx, outputScript, text); err != nil {
			return fmt.Errorf("failed to write prompt output: %w", err)
		}
	}
	return nil
}
