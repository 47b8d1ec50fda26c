// internal/agent/executor.go
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

const (
	DefaultJobAttempts   = 3
	DefaultScreenshotDir = "screenshots"
	defaultWaitTimeout   = 10 * time.Second

	screenshotTimeLayout = "20060102-150405.000"
)

const scrollIntoViewScript = `
var el = document.querySelector(arguments[0]);
if (!el) { return false; }
el.scrollIntoView({behavior: 'smooth', block: 'center', inline: 'center'});
return true;
`

// ExecutorConfig tunes job execution.
type ExecutorConfig struct {
	// Attempts is the total number of tries per job, including the first.
	Attempts      int
	ScreenshotDir string
	// WaitTimeout bounds WaitFor jobs.
	WaitTimeout time.Duration
}

// jobHandler runs one job kind against the session.
type jobHandler func(ctx context.Context, job Job) error

// Executor runs jobs against one browser session.
type Executor struct {
	session  schemas.BrowserSession
	logger   *zap.Logger
	metrics  *observability.Metrics
	cfg      ExecutorConfig
	handlers map[JobKind]jobHandler
	now      func() time.Time
}

func NewExecutor(session schemas.BrowserSession, cfg ExecutorConfig, logger *zap.Logger, metrics *observability.Metrics) *Executor {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultJobAttempts
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = DefaultScreenshotDir
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	e := &Executor{
		session:  session,
		logger:   logger.Named("executor"),
		metrics:  metrics,
		cfg:      cfg,
		handlers: make(map[JobKind]jobHandler),
		now:      time.Now,
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers[KindNavigate] = e.handleNavigate
	e.handlers[KindClick] = e.handleClick
	e.handlers[KindType] = e.handleType
	e.handlers[KindWaitFor] = e.handleWaitFor
	e.handlers[KindScrollTo] = e.handleScrollTo
	e.handlers[KindScreenshot] = e.handleScreenshot
}

// Run executes a single job once.
func (e *Executor) Run(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	handler, ok := e.handlers[job.Kind]
	if !ok {
		return fmt.Errorf("no handler registered for job kind %s", job.Kind)
	}
	return handler(ctx, job)
}

// RunAll executes jobs in order, retrying each up to the configured attempt
// count. The first job that keeps failing stops the batch with a *JobError.
// Each success appends exactly one entry to memory, which may be nil.
func (e *Executor) RunAll(ctx context.Context, jobs []Job, memory *Memory) error {
	for i, job := range jobs {
		if err := job.Validate(); err != nil {
			e.metrics.RecordJob(string(job.Kind), err)
			return &JobError{Index: i, Job: job, Attempts: 0, Err: err}
		}

		attempts, err := e.runWithRetry(ctx, i, job)
		e.metrics.RecordJob(string(job.Kind), err)
		if err != nil {
			e.logger.Error("Job failed, aborting batch.",
				zap.Int("index", i),
				zap.Stringer("job", job),
				zap.Int("attempts", attempts),
				zap.Int("remaining", len(jobs)-i-1),
				zap.Error(err))
			return &JobError{Index: i, Job: job, Attempts: attempts, Err: err}
		}

		if memory != nil {
			memory.Add(NewMemoryEntry(job, e.pageURL(ctx), e.now()))
		}
		e.logger.Info("Job completed.", zap.Int("index", i), zap.Stringer("job", job), zap.Int("attempts", attempts))
	}
	return nil
}

func (e *Executor) runWithRetry(ctx context.Context, index int, job Job) (int, error) {
	var err error
	for attempt := 1; attempt <= e.cfg.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, ctxErr
		}
		e.metrics.RecordJobAttempt(string(job.Kind))
		if err = e.Run(ctx, job); err == nil {
			return attempt, nil
		}
		if attempt < e.cfg.Attempts {
			e.logger.Warn("Job attempt failed, retrying.",
				zap.Int("index", index),
				zap.Stringer("job", job),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}
	return e.cfg.Attempts, err
}

// pageURL reads the current URL for the memory entry. Failure only loses the field.
func (e *Executor) pageURL(ctx context.Context) string {
	u, err := e.session.CurrentURL(ctx)
	if err != nil {
		e.logger.Debug("Could not read page URL for memory entry.", zap.Error(err))
		return ""
	}
	return u
}

// -- Job Handlers --

func (e *Executor) handleNavigate(ctx context.Context, job Job) error {
	return e.session.Navigate(ctx, job.URL)
}

func (e *Executor) handleClick(ctx context.Context, job Job) error {
	el, err := e.session.FindElement(ctx, job.Selector)
	if err != nil {
		return err
	}
	return e.session.ClickElement(ctx, el)
}

func (e *Executor) handleType(ctx context.Context, job Job) error {
	el, err := e.session.FindElement(ctx, job.Selector)
	if err != nil {
		return err
	}
	return e.session.SendKeysToElement(ctx, el, job.Text)
}

// handleWaitFor never fails on timeout; a missing element is only logged.
func (e *Executor) handleWaitFor(ctx context.Context, job Job) error {
	found, err := e.session.WaitFor(ctx, job.Selector, e.cfg.WaitTimeout)
	if err != nil {
		return err
	}
	if !found {
		e.logger.Info("Element did not appear before timeout.",
			zap.String("selector", job.Selector),
			zap.Duration("timeout", e.cfg.WaitTimeout))
	}
	return nil
}

func (e *Executor) handleScrollTo(ctx context.Context, job Job) error {
	raw, err := e.session.ExecuteScript(ctx, scrollIntoViewScript, job.Selector)
	if err != nil {
		return err
	}
	var ok bool
	if err := jsonCodec.Unmarshal(raw, &ok); err != nil || !ok {
		return schemas.NewOperationError("scroll_to", "Element not found or failed to scroll: %s", job.Selector)
	}
	return nil
}

func (e *Executor) handleScreenshot(ctx context.Context, job Job) error {
	data, err := e.session.Screenshot(ctx)
	if err != nil {
		return err
	}
	path, err := e.saveScreenshot(job.Prefix, data)
	if err != nil {
		return err
	}
	e.logger.Info("Screenshot saved.", zap.String("path", path))
	return nil
}

// ScreenshotPath returns where a screenshot taken at t is written.
func (e *Executor) ScreenshotPath(prefix string, t time.Time) string {
	return filepath.Join(e.cfg.ScreenshotDir, fmt.Sprintf("%s-%s.png", prefix, t.Format(screenshotTimeLayout)))
}

func (e *Executor) saveScreenshot(prefix string, data []byte) (string, error) {
	if err := os.MkdirAll(e.cfg.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}
	path := e.ScreenshotPath(prefix, e.now())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
