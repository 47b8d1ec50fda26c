// Package overlay decorates a browser session with a floating in-page log
// that shows each navigation and interaction as it happens.
package overlay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// pushScript installs the #browser-log panel on first use and appends one
// timestamped line. It runs as a session script body with the message in arguments[0].
const pushScript = `
if (!document.body) { return false; }
if (!window.pushBrowserLog) {
  var box = document.getElementById('browser-log');
  if (!box) {
    box = document.createElement('div');
    box.id = 'browser-log';
    box.style.cssText = 'position:fixed;top:10px;left:10px;width:500px;max-height:500px;' +
      'overflow-y:auto;background:rgba(0,0,0,0.8);color:red;font-family:monospace;' +
      'font-size:12px;padding:8px;z-index:99999;pointer-events:none;white-space:pre-wrap;';
    document.body.appendChild(box);
  }
  window.pushBrowserLog = function (msg) {
    var panel = document.getElementById('browser-log');
    if (!panel) { return; }
    var entry = document.createElement('div');
    var now = new Date();
    var pad = function (n) { return String(n).padStart(2, '0'); };
    entry.textContent = '[' + pad(now.getHours()) + ':' + pad(now.getMinutes()) + ':' +
      pad(now.getSeconds()) + '] ' + msg;
    panel.appendChild(entry);
    if (panel.children.length > 5) { panel.scrollTop = panel.scrollHeight; }
  };
}
window.pushBrowserLog(arguments[0]);
return true;
`

// Session forwards every call to the wrapped session. Navigation, interaction
// and tab calls push a line into the page first; push failures are only logged.
type Session struct {
	schemas.BrowserSession
	logger *zap.Logger
}

var _ schemas.BrowserSession = (*Session)(nil)

// New wraps inner with the in-page log.
func New(inner schemas.BrowserSession, logger *zap.Logger) *Session {
	return &Session{
		BrowserSession: inner,
		logger:         logger.Named("overlay").With(zap.String("session_id", inner.ID())),
	}
}

// Push appends msg to the in-page log of the current tab.
func (s *Session) Push(ctx context.Context, msg string) {
	if _, err := s.BrowserSession.ExecuteScript(ctx, pushScript, msg); err != nil {
		s.logger.Debug("Failed to push browser log line.", zap.String("message", msg), zap.Error(err))
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.Push(ctx, fmt.Sprintf("Navigating to %s", url))
	return s.BrowserSession.Navigate(ctx, url)
}

func (s *Session) Back(ctx context.Context) error {
	s.Push(ctx, "Navigating back")
	return s.BrowserSession.Back(ctx)
}

func (s *Session) Forward(ctx context.Context) error {
	s.Push(ctx, "Navigating forward")
	return s.BrowserSession.Forward(ctx)
}

func (s *Session) ClickElement(ctx context.Context, el schemas.ElementRef) error {
	s.Push(ctx, fmt.Sprintf("Clicking element '%s'", el.Selector()))
	return s.BrowserSession.ClickElement(ctx, el)
}

func (s *Session) SendKeysToElement(ctx context.Context, el schemas.ElementRef, text string) error {
	s.Push(ctx, fmt.Sprintf("Typing '%s' into '%s'", text, el.Selector()))
	return s.BrowserSession.SendKeysToElement(ctx, el, text)
}

func (s *Session) OpenTab(ctx context.Context) (schemas.TabHandle, error) {
	s.Push(ctx, "Opening new tab")
	return s.BrowserSession.OpenTab(ctx)
}

func (s *Session) SwitchTab(ctx context.Context, index int) error {
	s.Push(ctx, fmt.Sprintf("Switching to tab %d", index))
	return s.BrowserSession.SwitchTab(ctx, index)
}

func (s *Session) CloseTab(ctx context.Context, index int) error {
	s.Push(ctx, fmt.Sprintf("Closing tab %d", index))
	return s.BrowserSession.CloseTab(ctx, index)
}

// Unwrap returns the decorated session.
func (s *Session) Unwrap() schemas.BrowserSession { return s.BrowserSession }
