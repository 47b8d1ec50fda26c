// internal/browser/session/session.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/tabs"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultOpTimeout   = 30 * time.Second
	defaultWaitTimeout = 10 * time.Second
	tabCloseTimeout    = 5 * time.Second
)

// tab is a chromedp context bound to one page target.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc // nil for the root tab, which owns the browser connection
}

// elementRef is a located element. Node ids are only valid within the tab
// (and document) they were resolved in.
type elementRef struct {
	selector string
	tab      target.ID
	nodeIDs  []cdp.NodeID
}

func (e *elementRef) Selector() string { return e.selector }

// Session drives one browser connection over CDP and implements schemas.BrowserSession.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	rootCtx    context.Context
	rootCancel context.CancelFunc
	rootTarget target.ID

	mu         sync.Mutex
	tabs       map[target.ID]*tab
	order      tabs.Order[target.ID]
	currentTab target.ID

	onClose  func()
	isClosed bool
}

var _ schemas.BrowserSession = (*Session)(nil)

// New wraps an already connected chromedp context. rootCancel releases the
// connection when the session closes.
func New(rootCtx context.Context, rootCancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	c := chromedp.FromContext(rootCtx)
	if c == nil || c.Target == nil {
		return nil, fmt.Errorf("context is not attached to a browser tab")
	}

	id := uuid.New().String()
	s := &Session{
		id:         id,
		logger:     logger.Named("session").With(zap.String("session_id", id)),
		cfg:        cfg,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		rootTarget: c.Target.TargetID,
		tabs:       make(map[target.ID]*tab),
	}
	s.tabs[s.rootTarget] = &tab{ctx: rootCtx}
	s.order.Add(s.rootTarget)
	s.currentTab = s.rootTarget
	return s, nil
}

// SetOnClose registers a callback run once after Close.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

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

// current returns the current tab. The tab is nil when it has not been
// attached yet.
func (s *Session) current() (target.ID, *tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return "", nil, fmt.Errorf("session is closed")
	}
	return s.currentTab, s.tabs[s.currentTab], nil
}

// runActions executes chromedp actions against the current tab, bounded by
// both the caller's context and timeout.
func (s *Session) runActions(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	id, t, err := s.current()
	if err != nil {
		return &schemas.OperationError{Op: op, Err: err}
	}
	if t == nil {
		if t, err = s.attach(ctx, id); err != nil {
			return err
		}
	}
	return s.runOn(ctx, t.ctx, op, timeout, actions...)
}

func (s *Session) runOn(ctx, tabCtx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return &schemas.OperationError{Op: op, Err: err}
	}
	return nil
}

// browserExecutor returns ctx bound to the browser-level CDP executor, for
// target domain commands that are not scoped to a tab.
func (s *Session) browserExecutor(ctx context.Context) (context.Context, error) {
	c := chromedp.FromContext(s.rootCtx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("browser connection is not initialized")
	}
	return cdp.WithExecutor(ctx, c.Browser), nil
}

// -- Navigation --

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.runActions(ctx, "navigate", s.opTimeout(), chromedp.Navigate(url))
}

func (s *Session) Back(ctx context.Context) error {
	return s.runActions(ctx, "back", s.opTimeout(), chromedp.NavigateBack())
}

func (s *Session) Forward(ctx context.Context) error {
	return s.runActions(ctx, "forward", s.opTimeout(), chromedp.NavigateForward())
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.runActions(ctx, "current_url", s.opTimeout(), chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// -- Elements --

// FindElement waits for the selector to be present in the current tab.
func (s *Session) FindElement(ctx context.Context, selector string) (schemas.ElementRef, error) {
	tabID, _, err := s.current()
	if err != nil {
		return nil, &schemas.OperationError{Op: "find_element", Err: err}
	}
	var ids []cdp.NodeID
	if err := s.runActions(ctx, fmt.Sprintf("find_element %q", selector), s.waitTimeout(), chromedp.NodeIDs(selector, &ids, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return &elementRef{selector: selector, tab: tabID, nodeIDs: ids}, nil
}

func (s *Session) ClickElement(ctx context.Context, el schemas.ElementRef) error {
	ref, err := s.ownRef("click", el)
	if err != nil {
		return err
	}
	s.logger.Debug("Clicking element.", zap.String("selector", ref.selector))
	return s.runActions(ctx, fmt.Sprintf("click %q", ref.selector), s.opTimeout(), chromedp.Click(ref.nodeIDs, chromedp.ByNodeID))
}

func (s *Session) SendKeysToElement(ctx context.Context, el schemas.ElementRef, text string) error {
	ref, err := s.ownRef("send_keys", el)
	if err != nil {
		return err
	}
	s.logger.Debug("Typing into element.", zap.String("selector", ref.selector))
	return s.runActions(ctx, fmt.Sprintf("send_keys %q", ref.selector), s.opTimeout(), chromedp.SendKeys(ref.nodeIDs, text, chromedp.ByNodeID))
}

func (s *Session) ownRef(op string, el schemas.ElementRef) (*elementRef, error) {
	ref, ok := el.(*elementRef)
	if !ok || ref == nil {
		return nil, schemas.NewOperationError(op, "element reference %T was not produced by this session", el)
	}
	s.mu.Lock()
	current := s.currentTab
	s.mu.Unlock()
	if ref.tab != current {
		return nil, schemas.NewOperationError(op, "element '%s' belongs to another tab", ref.selector)
	}
	return ref, nil
}

// WaitFor reports whether selector became present within timeout.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = s.waitTimeout()
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.runActions(waitCtx, "wait_for", 0, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if waitCtx.Err() != nil {
		return false, nil
	}
	return false, err
}

// -- Scripts & Capture --

// ExecuteScript runs a function body with the given arguments and returns
// its JSON encoded return value. Promises are awaited.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	expr, err := wrapScript(script, args)
	if err != nil {
		return nil, &schemas.OperationError{Op: "execute_script", Err: err}
	}
	var raw []byte
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if err := s.runActions(ctx, "execute_script", s.opTimeout(), chromedp.Evaluate(expr, &raw, awaitPromise)); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

// wrapScript turns a function body into an expression applying it to args.
func wrapScript(body string, args []interface{}) (string, error) {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := jsonCodec.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode script arguments: %w", err)
	}
	return fmt.Sprintf("(function(){\n%s\n}).apply(null, %s)", body, encoded), nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.runActions(ctx, "screenshot", s.opTimeout(), chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// -- Tabs --

// refreshTabs reconciles the tab order with the browser's page targets.
func (s *Session) refreshTabs(ctx context.Context, op string) (map[target.ID]*target.Info, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	runCtx, cancelRun := CombineContext(s.rootCtx, opCtx)
	defer cancelRun()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, &schemas.OperationError{Op: op, Err: err}
	}

	live := make(map[target.ID]*target.Info, len(infos))
	pageIDs := make([]target.ID, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		live[info.TargetID] = info
		pageIDs = append(pageIDs, info.TargetID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Sync(pageIDs)
	for id, t := range s.tabs {
		if _, ok := live[id]; !ok {
			if t.cancel != nil {
				t.cancel()
			}
			delete(s.tabs, id)
		}
	}
	if _, ok := live[s.currentTab]; !ok {
		s.currentTab = s.order.First()
	}
	return live, nil
}

// attach returns the tab context for id, attaching to the target if needed.
func (s *Session) attach(ctx context.Context, id target.ID) (*tab, error) {
	s.mu.Lock()
	t, ok := s.tabs[id]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	tabCtx, cancel := chromedp.NewContext(s.rootCtx, chromedp.WithTargetID(id))
	if err := s.runOn(ctx, tabCtx, "attach_tab", s.opTimeout()); err != nil {
		cancel()
		return nil, err
	}
	t = &tab{ctx: tabCtx, cancel: cancel}
	s.mu.Lock()
	s.tabs[id] = t
	s.mu.Unlock()
	return t, nil
}

func (s *Session) activate(ctx context.Context, id target.ID) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	execCtx, err := s.browserExecutor(opCtx)
	if err == nil {
		err = target.ActivateTarget(id).Do(execCtx)
	}
	if err != nil {
		s.logger.Debug("Could not bring tab to front.", zap.String("target_id", string(id)), zap.Error(err))
	}
}

func (s *Session) ListTabs(ctx context.Context) ([]schemas.TabHandle, error) {
	live, err := s.refreshTabs(ctx, "list_tabs")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]schemas.TabHandle, 0, s.order.Len())
	for _, id := range s.order.IDs() {
		h := schemas.TabHandle{ID: string(id)}
		if info, ok := live[id]; ok {
			h.URL = info.URL
			h.Title = info.Title
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// OpenTab opens a blank tab and makes it current.
func (s *Session) OpenTab(ctx context.Context) (schemas.TabHandle, error) {
	tabCtx, cancel := chromedp.NewContext(s.rootCtx)
	if err := s.runOn(ctx, tabCtx, "open_tab", s.opTimeout(), chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return schemas.TabHandle{}, err
	}
	id := chromedp.FromContext(tabCtx).Target.TargetID

	s.mu.Lock()
	s.tabs[id] = &tab{ctx: tabCtx, cancel: cancel}
	s.order.Add(id)
	s.currentTab = id
	s.mu.Unlock()

	s.activate(ctx, id)
	s.logger.Info("Opened new tab.", zap.String("target_id", string(id)))
	return schemas.TabHandle{ID: string(id), URL: "about:blank"}, nil
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
	if _, err := s.attach(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.currentTab = id
	s.mu.Unlock()
	s.activate(ctx, id)
	return nil
}

// CloseTab closes the tab at index. The first remaining tab becomes current.
func (s *Session) CloseTab(ctx context.Context, index int) error {
	if _, err := s.refreshTabs(ctx, "close_tab"); err != nil {
		return err
	}
	s.mu.Lock()
	id, err := s.order.CloseTarget(index)
	t := s.tabs[id]
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if t != nil && t.cancel != nil {
		// Canceling a non-root chromedp context closes its target.
		t.cancel()
	} else {
		opCtx, cancel := context.WithTimeout(ctx, tabCloseTimeout)
		defer cancel()
		execCtx, execErr := s.browserExecutor(opCtx)
		if execErr == nil {
			execErr = target.CloseTarget(id).Do(execCtx)
		}
		if execErr != nil {
			return &schemas.OperationError{Op: "close_tab", Err: execErr}
		}
	}

	s.mu.Lock()
	delete(s.tabs, id)
	s.order.Remove(id)
	next := s.order.First()
	s.mu.Unlock()

	if _, err := s.attach(ctx, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.currentTab = next
	s.mu.Unlock()
	s.activate(ctx, next)
	return nil
}

func (s *Session) CurrentTab() schemas.TabHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schemas.TabHandle{ID: string(s.currentTab)}
}

// Close terminates the browser session gracefully.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	open := s.tabs
	s.tabs = map[target.ID]*tab{}
	onClose := s.onClose
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	for _, t := range open {
		if t.cancel != nil {
			t.cancel()
		}
	}

	closeCtx, cancel := context.WithTimeout(Detach(ctx), tabCloseTimeout)
	defer cancel()
	cancelCtx, cancelRun := CombineContext(s.rootCtx, closeCtx)
	defer cancelRun()
	if err := chromedp.Cancel(cancelCtx); err != nil && closeCtx.Err() == nil {
		s.logger.Debug("Graceful browser close failed.", zap.Error(err))
	}
	if s.rootCancel != nil {
		s.rootCancel()
	}

	if onClose != nil {
		onClose()
	}
	return nil
}
