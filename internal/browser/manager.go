// internal/browser/manager.go
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/overlay"
	"github.com/xkilldash9x/webpilot/internal/browser/rodbackend"
	"github.com/xkilldash9x/webpilot/internal/browser/session"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const (
	connectTimeout      = 60 * time.Second
	shutdownGracePeriod = 15 * time.Second
)

// Manager owns the browser allocator and hands out sessions on the configured backend.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessions map[string]schemas.BrowserSession
	mu       sync.RWMutex
	wg       sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// NewManager creates a new browser manager. The allocator is set up on the first NewSession.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]schemas.BrowserSession),
	}
	m.logger.Debug("Browser manager created (initialization deferred).", zap.String("backend", string(cfg.Backend)))
	return m
}

// DefaultAllocatorOptions builds the local Chrome launch flags from config.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false), chromedp.Flag("mute-audio", false))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors, chromedp.Flag("allow-insecure-localhost", true))
	}
	for _, arg := range cfg.Args {
		name, value := ParseFlag(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// ParseFlag splits "--name=value" into its parts. A bare "--name" is a boolean flag.
func ParseFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil
	}
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return name, true
	}
	return name, value
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		if m.cfg.Backend == config.BackendRod {
			return
		}
		if m.cfg.RemoteURL != "" {
			m.logger.Info("Attaching to remote browser.", zap.String("remote_url", m.cfg.RemoteURL))
			m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(context.Background(), m.cfg.RemoteURL)
			return
		}
		m.logger.Info("Preparing local browser allocator.", zap.Bool("headless", m.cfg.Headless))
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg)...)
	})
	return m.initErr
}

func (m *Manager) endpoint() string {
	if m.cfg.RemoteURL != "" {
		return m.cfg.RemoteURL
	}
	return "local chrome"
}

// closeNotifier is implemented by backend sessions so the manager can
// untrack them when they close.
type closeNotifier interface {
	schemas.BrowserSession
	SetOnClose(func())
}

// NewSession connects a new browser session. Connection failures are
// reported as *schemas.ConnectionError.
func (m *Manager) NewSession(ctx context.Context) (schemas.BrowserSession, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	var (
		sess closeNotifier
		err  error
	)
	switch m.cfg.Backend {
	case config.BackendRod:
		sess, err = rodbackend.Connect(ctx, m.cfg, m.logger)
	default:
		sess, err = m.newCDPSession(ctx)
	}
	if err != nil {
		return nil, err
	}

	id := sess.ID()
	m.wg.Add(1)
	sess.SetOnClose(func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", id))
	})

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	m.logger.Info("New session created.", zap.String("session_id", id), zap.String("backend", string(m.cfg.Backend)))

	if m.cfg.OverlayLog {
		return overlay.New(sess, m.logger), nil
	}
	return sess, nil
}

func (m *Manager) newCDPSession(ctx context.Context) (*session.Session, error) {
	rootCtx, rootCancel := chromedp.NewContext(m.allocCtx)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	runCtx, cancelRun := session.CombineContext(rootCtx, connectCtx)
	defer cancelRun()

	if err := chromedp.Run(runCtx); err != nil {
		rootCancel()
		return nil, &schemas.ConnectionError{Endpoint: m.endpoint(), Err: err}
	}

	s, err := session.New(rootCtx, rootCancel, m.cfg, m.logger)
	if err != nil {
		rootCancel()
		return nil, &schemas.ConnectionError{Endpoint: m.endpoint(), Err: err}
	}
	return s, nil
}

// Shutdown closes all sessions and releases the allocator.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.RLock()
	toClose := make([]schemas.BrowserSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		toClose = append(toClose, s)
	}
	m.mu.RUnlock()

	for _, s := range toClose {
		go func(s schemas.BrowserSession) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Sessions did not close within the grace period.")
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
