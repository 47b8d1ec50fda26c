// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

func (m *MockConfig) SetBrowserHeadless(b bool)     { m.Called(b) }
func (m *MockConfig) SetBrowserRemoteURL(u string)  { m.Called(u) }
func (m *MockConfig) SetAgentAutoExecute(b bool)    { m.Called(b) }
func (m *MockConfig) SetMemoryPersistPath(p string) { m.Called(p) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Browser Session Mock --

// MockElement is an ElementRef that only carries its selector.
type MockElement struct {
	Sel string
}

func (e *MockElement) Selector() string { return e.Sel }

// MockBrowserSession mocks the schemas.BrowserSession interface.
type MockBrowserSession struct {
	mock.Mock
}

var _ schemas.BrowserSession = (*MockBrowserSession)(nil)

func (m *MockBrowserSession) ID() string { return m.Called().String(0) }

func (m *MockBrowserSession) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockBrowserSession) Back(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *MockBrowserSession) Forward(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockBrowserSession) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserSession) FindElement(ctx context.Context, selector string) (schemas.ElementRef, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.ElementRef), args.Error(1)
}

func (m *MockBrowserSession) ClickElement(ctx context.Context, el schemas.ElementRef) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockBrowserSession) SendKeysToElement(ctx context.Context, el schemas.ElementRef, text string) error {
	return m.Called(ctx, el, text).Error(0)
}

func (m *MockBrowserSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, selector, timeout)
	return args.Bool(0), args.Error(1)
}

// ExecuteScript records the script arguments as a single []interface{}.
// The return value may be configured as a string or a json.RawMessage.
func (m *MockBrowserSession) ExecuteScript(ctx context.Context, script string, scriptArgs ...interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, script, scriptArgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if s, ok := args.Get(0).(string); ok {
		return json.RawMessage(s), args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockBrowserSession) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBrowserSession) ListTabs(ctx context.Context) ([]schemas.TabHandle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.TabHandle), args.Error(1)
}

func (m *MockBrowserSession) OpenTab(ctx context.Context) (schemas.TabHandle, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.TabHandle), args.Error(1)
}

func (m *MockBrowserSession) SwitchTab(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}

func (m *MockBrowserSession) CloseTab(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}

func (m *MockBrowserSession) CurrentTab() schemas.TabHandle {
	return m.Called().Get(0).(schemas.TabHandle)
}

func (m *MockBrowserSession) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }
