// Package rodbackend implements schemas.BrowserSession on go-rod, as an
// alternative to the chromedp session.
package rodbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/tabs"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const (
	defaultOpTimeout   = 30 * time.Second
	defaultWaitTimeout = 10 * time.Second
)

type element struct {
	selector string
	tab      proto.TargetTargetID
	el       *rod.Element
}

func (e *element) Selector() string { return e.selector }

// Session drives a browser through go-rod.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	ctx      context.Context
	cancel   context.CancelFunc
	browser  *rod.Browser
	launcher *launcher.Launcher // nil when attached to a remote browser

	mu         sync.Mutex
	pages      map[proto.TargetTargetID]*rod.Page
	order      tabs.Order[proto.TargetTargetID]
	currentTab proto.TargetTargetID

	onClose  func()
	isClosed bool
}

var _ schemas.BrowserSession = (*Session)(nil)

// Launcher builds the local browser launcher from config.
func Launcher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		l = l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	if cfg.UserAgent != "" {
		l = l.Set(flags.Flag("user-agent"), cfg.UserAgent)
	}
	if cfg.IgnoreTLSErrors {
		l = l.Set(flags.Flag("ignore-certificate-errors"))
	}
	for _, arg := range cfg.Args {
		name, value := splitFlag(arg)
		if name == "" {
			continue
		}
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}
	return l
}

func splitFlag(arg string) (string, string) {
	name, value, _ := strings.Cut(strings.TrimLeft(strings.TrimSpace(arg), "-"), "=")
	return name, value
}

// Connect launches (or attaches to cfg.RemoteURL) a browser and opens the
// first tab. Failures are *schemas.ConnectionError.
func Connect(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.New().String(),
		cfg:    cfg,
		ctx:    sessCtx,
		cancel: cancel,
		pages:  make(map[proto.TargetTargetID]*rod.Page),
	}
	s.logger = logger.Named("rod_session").With(zap.String("session_id", s.id))

	endpoint := cfg.RemoteURL
	controlURL, err := s.resolveControlURL()
	if err != nil {
		cancel()
		return nil, &schemas.ConnectionError{Endpoint: endpoint, Err: err}
	}

	s.browser = rod.New().Context(sessCtx).ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.shutdownLauncher()
		cancel()
		return nil, &schemas.ConnectionError{Endpoint: controlURL, Err: err}
	}

	page, err := s.browser.Context(ctx).Timeout(s.opTimeout()).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.browser.Close()
		s.shutdownLauncher()
		cancel()
		return nil, &schemas.ConnectionError{Endpoint: controlURL, Err: fmt.Errorf("failed to open first tab: %w", err)}
	}
	s.pages[page.TargetID] = page
	s.order.Add(page.TargetID)
	s.currentTab = page.TargetID

	s.logger.Info("Connected to browser via rod.", zap.String("control_url", controlURL))
	return s, nil
}

// resolveControlURL returns the DevTools websocket URL. A launched browser
// lives as long as the session, not the connecting request.
func (s *Session) resolveControlURL() (string, error) {
	if s.cfg.RemoteURL != "" {
		return launcher.ResolveURL(s.cfg.RemoteURL)
	}
	s.launcher = Launcher(s.cfg).Context(s.ctx)
	return s.launcher.Launch()
}

func (s *Session) shutdownLauncher() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}

// SetOnClose registers a callback run once after Close.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

func (s *Session) ID() string { return s.id }

func (s *Session) opTimeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return defaultOpTimeout
}

func (s *Session) waitTimeout() time.Duration {
	if s.cfg.WaitTimeout > 0 {
		return s.cfg.WaitTimeout
	}
	return defaultWaitTimeout
}

// page returns the current tab bound to ctx and the operation timeout.
func (s *Session) page(ctx context.Context, op string, timeout time.Duration) (*rod.Page, proto.TargetTargetID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil, "", schemas.NewOperationError(op, "session is closed")
	}
	p, ok := s.pages[s.currentTab]
	if !ok {
		return nil, "", schemas.NewOperationError(op, "current tab %s is not open", s.currentTab)
	}
	return p.Context(ctx).Timeout(timeout), s.currentTab, nil
}

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *schemas.OperationError
	if errors.As(err, &existing) {
		return err
	}
	return &schemas.OperationError{Op: op, Err: err}
}

// -- Navigation --

func (s *Session) Navigate(ctx context.Context, url string) error {
	p, _, err := s.page(ctx, "navigate", s.opTimeout())
	if err != nil {
		return err
	}
	if err := p.Navigate(url); err != nil {
		return opErr("navigate", err)
	}
	return opErr("navigate", p.WaitLoad())
}

func (s *Session) Back(ctx context.Context) error {
	p, _, err := s.page(ctx, "back", s.opTimeout())
	if err != nil {
		return err
	}
	return opErr("back", p.NavigateBack())
}

func (s *Session) Forward(ctx context.Context) error {
	p, _, err := s.page(ctx, "forward", s.opTimeout())
	if err != nil {
		return err
	}
	return opErr("forward", p.NavigateForward())
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	p, _, err := s.page(ctx, "current_url", s.opTimeout())
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", opErr("current_url", err)
	}
	return info.URL, nil
}

// -- Elements --

func (s *Session) FindElement(ctx context.Context, selector string) (schemas.ElementRef, error) {
	op := fmt.Sprintf("find_element %q", selector)
	p, tab, err := s.page(ctx, op, s.waitTimeout())
	if err != nil {
		return nil, err
	}
	el, err := p.Element(selector)
	if err != nil {
		return nil, opErr(op, err)
	}
	return &element{selector: selector, tab: tab, el: el}, nil
}

func (s *Session) ownElement(op string, ref schemas.ElementRef) (*element, error) {
	el, ok := ref.(*element)
	if !ok || el == nil {
		return nil, schemas.NewOperationError(op, "element reference %T was not produced by this session", ref)
	}
	s.mu.Lock()
	current := s.currentTab
	s.mu.Unlock()
	if el.tab != current {
		return nil, schemas.NewOperationError(op, "element '%s' belongs to another tab", el.selector)
	}
	return el, nil
}

func (s *Session) ClickElement(ctx context.Context, ref schemas.ElementRef) error {
	el, err := s.ownElement("click", ref)
	if err != nil {
		return err
	}
	op := fmt.Sprintf("click %q", el.selector)
	return opErr(op, el.el.Context(ctx).Timeout(s.opTimeout()).Click(proto.InputMouseButtonLeft, 1))
}

func (s *Session) SendKeysToElement(ctx context.Context, ref schemas.ElementRef, text string) error {
	el, err := s.ownElement("send_keys", ref)
	if err != nil {
		return err
	}
	op := fmt.Sprintf("send_keys %q", el.selector)
	return opErr(op, el.el.Context(ctx).Timeout(s.opTimeout()).Input(text))
}

func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = s.waitTimeout()
	}
	p, _, err := s.page(ctx, "wait_for", timeout)
	if err != nil {
		return false, err
	}
	if _, err := p.Element(selector); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, opErr("wait_for", err)
	}
	return true, nil
}

// -- Scripts & Capture --

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	p, _, err := s.page(ctx, "execute_script", s.opTimeout())
	if err != nil {
		return nil, err
	}
	res, err := p.Evaluate(rod.Eval(fmt.Sprintf("function() {\n%s\n}", script), args...).ByPromise())
	if err != nil {
		return nil, opErr("execute_script", err)
	}
	if res == nil || res.Value.Nil() {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, opErr("execute_script", err)
	}
	return json.RawMessage(raw), nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	p, _, err := s.page(ctx, "screenshot", s.opTimeout())
	if err != nil {
		return nil, err
	}
	buf, err := p.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	return buf, opErr("screenshot", err)
}

// -- Tabs --

func (s *Session) refreshTabs(ctx context.Context, op string) (map[proto.TargetTargetID]*proto.TargetTargetInfo, error) {
	res, err := proto.TargetGetTargets{}.Call(s.browser.Context(ctx).Timeout(s.opTimeout()))
	if err != nil {
		return nil, opErr(op, err)
	}

	live := make(map[proto.TargetTargetID]*proto.TargetTargetInfo, len(res.TargetInfos))
	ids := make([]proto.TargetTargetID, 0, len(res.TargetInfos))
	for _, info := range res.TargetInfos {
		if info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		live[info.TargetID] = info
		ids = append(ids, info.TargetID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Sync(ids)
	for id := range s.pages {
		if _, ok := live[id]; !ok {
			delete(s.pages, id)
		}
	}
	if _, ok := live[s.currentTab]; !ok {
		s.currentTab = s.order.First()
	}
	return live, nil
}

func (s *Session) pageFor(id proto.TargetTargetID) (*rod.Page, error) {
	s.mu.Lock()
	p, ok := s.pages[id]
	s.mu.Unlock()
	if ok {
		return p, nil
	}
	p, err := s.browser.PageFromTarget(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pages[id] = p
	s.mu.Unlock()
	return p, nil
}

func (s *Session) ListTabs(ctx context.Context) ([]schemas.TabHandle, error) {
	live, err := s.refreshTabs(ctx, "list_tabs")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.TabHandle, 0, s.order.Len())
	for _, id := range s.order.IDs() {
		h := schemas.TabHandle{ID: string(id)}
		if info, ok := live[id]; ok {
			h.URL = info.URL
			h.Title = info.Title
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *Session) OpenTab(ctx context.Context) (schemas.TabHandle, error) {
	page, err := s.browser.Context(ctx).Timeout(s.opTimeout()).Page(proto.TargetCreateTarget{})
	if err != nil {
		return schemas.TabHandle{}, opErr("open_tab", err)
	}
	page = page.Context(s.ctx)
	if _, err := page.Activate(); err != nil {
		s.logger.Debug("Could not bring tab to front.", zap.Error(err))
	}

	s.mu.Lock()
	s.pages[page.TargetID] = page
	s.order.Add(page.TargetID)
	s.currentTab = page.TargetID
	s.mu.Unlock()
	return schemas.TabHandle{ID: string(page.TargetID), URL: "about:blank"}, nil
}

func (s *Session) SwitchTab(ctx context.Context, index int) error {
	if _, err := s.refreshTabs(ctx, "switch_tab"); err != nil {
		return err
	}
	s.mu.Lock()
	id, err := s.order.SwitchTarget(index)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	p, err := s.pageFor(id)
	if err != nil {
		return opErr("switch_tab", err)
	}
	if _, err := p.Context(ctx).Activate(); err != nil {
		s.logger.Debug("Could not bring tab to front.", zap.Error(err))
	}
	s.mu.Lock()
	s.currentTab = id
	s.mu.Unlock()
	return nil
}

func (s *Session) CloseTab(ctx context.Context, index int) error {
	if _, err := s.refreshTabs(ctx, "close_tab"); err != nil {
		return err
	}
	s.mu.Lock()
	id, err := s.order.CloseTarget(index)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	p, err := s.pageFor(id)
	if err != nil {
		return opErr("close_tab", err)
	}
	if err := p.Context(ctx).Timeout(s.opTimeout()).Close(); err != nil {
		return opErr("close_tab", err)
	}

	s.mu.Lock()
	delete(s.pages, id)
	s.order.Remove(id)
	s.currentTab = s.order.First()
	s.mu.Unlock()
	return nil
}

func (s *Session) CurrentTab() schemas.TabHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schemas.TabHandle{ID: string(s.currentTab)}
}

// Close disconnects from the browser and stops it if it was launched here.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.logger.Debug("Closing rod session.")
	var closeErr error
	if s.launcher != nil {
		if err := s.browser.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		s.shutdownLauncher()
	}
	s.cancel()

	if onClose != nil {
		onClose()
	}
	return closeErr
}
