// internal/agent/driver.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// PromptUI is the in-page prompt and output box pair.
type PromptUI interface {
	Inject(ctx context.Context) error
	Next(ctx context.Context) (string, error)
	WriteOutput(ctx context.Context, text string) error
}

// DriverConfig controls the prompt loop.
type DriverConfig struct {
	// AutoExecute runs planned jobs right after showing the checklist.
	AutoExecute bool
	// PersistPath saves memory after every prompt when set.
	PersistPath string
}

const helpText = `Commands:
/act <instruction>      click or type on one element ("quoted" text is typed)
/search <query>         search DuckDuckGo
/back, /forward         browser history
/tabs                   list open tabs
/tab new                open a tab
/tab <n>                switch to tab n
/tab close <n>          close tab n
/screenshot [prefix]    save a screenshot
Anything else is planned and executed as a multi-step task.`

// Driver reads prompts from the page and routes them to the agent.
type Driver struct {
	agent   *Agent
	session schemas.BrowserSession
	ui      PromptUI
	cfg     DriverConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewDriver(agent *Agent, session schemas.BrowserSession, ui PromptUI, cfg DriverConfig, logger *zap.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{
		agent:   agent,
		session: session,
		ui:      ui,
		cfg:     cfg,
		logger:  logger.Named("driver"),
		metrics: metrics,
	}
}

// Run serves prompts until ctx is done. Failed prompts are reported in the
// output box and do not stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.ui.Inject(ctx); err != nil {
		d.logger.Warn("Initial prompt box injection failed.", zap.Error(err))
	}
	for {
		prompt, err := d.ui.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.logger.Info("Prompt received.", zap.String("prompt", prompt))

		out, err := d.Handle(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("Prompt failed.", zap.String("prompt", prompt), zap.String("code", string(schemas.CodeOf(err))), zap.Error(err))
			out = strings.TrimSpace(out + "\n\nError: " + err.Error())
		}
		d.persist()

		if err := d.ui.Inject(ctx); err != nil {
			d.logger.Debug("Prompt box re-injection failed.", zap.Error(err))
		}
		if err := d.ui.WriteOutput(ctx, out); err != nil {
			d.logger.Warn("Failed to write prompt output.", zap.Error(err))
		}
	}
}

func (d *Driver) persist() {
	if d.cfg.PersistPath == "" {
		return
	}
	if err := d.agent.Memory().Persist(d.cfg.PersistPath); err != nil {
		d.logger.Warn("Failed to persist memory.", zap.Error(err))
	}
}

// Handle executes one prompt and returns the text for the output box. The
// text is meaningful even when an error is returned.
func (d *Driver) Handle(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if !strings.HasPrefix(prompt, "/") {
		d.metrics.RecordPrompt("plan")
		return d.plan(ctx, prompt)
	}

	cmd, arg, _ := strings.Cut(prompt[1:], " ")
	arg = strings.TrimSpace(arg)
	d.metrics.RecordPrompt(cmd)

	switch cmd {
	case "act":
		if arg == "" {
			return "", errors.New("usage: /act <instruction>")
		}
		job, err := d.agent.Act(ctx, arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Done: %s", job), nil
	case "search":
		if arg == "" {
			return "", errors.New("usage: /search <query>")
		}
		return done(fmt.Sprintf("Searched DuckDuckGo for '%s'", arg), d.agent.Search(ctx, arg))
	case "back":
		return done("Navigated back", d.session.Back(ctx))
	case "forward":
		return done("Navigated forward", d.session.Forward(ctx))
	case "tabs":
		return d.listTabs(ctx)
	case "tab":
		return d.tab(ctx, arg)
	case "screenshot":
		prefix := arg
		if prefix == "" {
			prefix = "screenshot"
		}
		return done(fmt.Sprintf("Screenshot saved with prefix '%s'", prefix), d.agent.Execute(ctx, []Job{Screenshot(prefix)}))
	case "help":
		return helpText, nil
	default:
		return helpText, fmt.Errorf("unknown command /%s", cmd)
	}
}

func (d *Driver) plan(ctx context.Context, instruction string) (string, error) {
	plan, err := d.agent.Plan(ctx, instruction)
	if err != nil {
		return "", err
	}
	out := plan.Checklist
	if !d.cfg.AutoExecute || len(plan.Jobs) == 0 {
		return out, nil
	}
	if err := d.ui.WriteOutput(ctx, out+"\n\nRunning..."); err != nil {
		d.logger.Debug("Failed to show checklist before execution.", zap.Error(err))
	}
	if err := d.agent.Execute(ctx, plan.Jobs); err != nil {
		return out, err
	}
	return fmt.Sprintf("%s\n\nCompleted %d job(s).", out, len(plan.Jobs)), nil
}

func (d *Driver) listTabs(ctx context.Context) (string, error) {
	tabs, err := d.session.ListTabs(ctx)
	if err != nil {
		return "", err
	}
	current := d.session.CurrentTab().ID
	var b strings.Builder
	for i, t := range tabs {
		marker := " "
		if t.ID == current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %d: %s %s\n", marker, i, t.Title, t.URL)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d *Driver) tab(ctx context.Context, arg string) (string, error) {
	fields := strings.Fields(arg)
	switch {
	case len(fields) == 1 && fields[0] == "new":
		if _, err := d.session.OpenTab(ctx); err != nil {
			return "", err
		}
		return "Opened a new tab", nil
	case len(fields) == 2 && fields[0] == "close":
		i, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("invalid tab index %q", fields[1])
		}
		return done(fmt.Sprintf("Closed tab %d", i), d.session.CloseTab(ctx, i))
	case len(fields) == 1:
		i, err := strconv.Atoi(fields[0])
		if err != nil {
			return "", fmt.Errorf("invalid tab index %q", fields[0])
		}
		return done(fmt.Sprintf("Switched to tab %d", i), d.session.SwitchTab(ctx, i))
	default:
		return "", errors.New("usage: /tab new | /tab <n> | /tab close <n>")
	}
}

func done(msg string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return msg, nil
}
