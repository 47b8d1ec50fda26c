package rodbackend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestLauncherFlags(t *testing.T) {
	cfg := config.BrowserConfig{
		Headless:        true,
		WindowWidth:     1920,
		WindowHeight:    1080,
		Proxy:           "http://127.0.0.1:8080",
		UserAgent:       "webpilot-test",
		IgnoreTLSErrors: true,
		Args:            []string{"--lang=de-DE", "--disable-gpu"},
	}
	l := Launcher(cfg)

	assert.Equal(t, "1920,1080", l.Get(flags.Flag("window-size")))
	assert.Equal(t, "http://127.0.0.1:8080", l.Get(flags.ProxyServer))
	assert.Equal(t, "webpilot-test", l.Get(flags.Flag("user-agent")))
	assert.True(t, l.Has(flags.Flag("ignore-certificate-errors")))
	assert.Equal(t, "de-DE", l.Get(flags.Flag("lang")))
	assert.True(t, l.Has(flags.Flag("disable-gpu")))
	assert.True(t, l.Has(flags.Headless))
}

func TestSplitFlag(t *testing.T) {
	tests := []struct {
		in, name, value string
	}{
		{"--lang=en", "lang", "en"},
		{"--disable-gpu", "disable-gpu", ""},
		{"  -x=a=b ", "x", "a=b"},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, value := splitFlag(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.value, value, tt.in)
	}
}

func TestConnect_BadRemoteURL(t *testing.T) {
	cfg := config.BrowserConfig{RemoteURL: "ws://127.0.0.1:1/devtools/browser/none", Timeout: time.Second}
	_, err := Connect(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeConnection, schemas.CodeOf(err))
}

func TestSession_Integration(t *testing.T) {
	if _, found := launcher.LookPath(); !found {
		t.Skip("no Chrome binary found; skipping rod integration test")
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><input id="q"><button id="go" onclick="document.title = document.getElementById('q').value">Go</button></body></html>`)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.BrowserConfig{Headless: true, Timeout: 15 * time.Second, WaitTimeout: 2 * time.Second}
	s, err := Connect(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.Navigate(ctx, server.URL))
	input, err := s.FindElement(ctx, "#q")
	require.NoError(t, err)
	require.NoError(t, s.SendKeysToElement(ctx, input, "rod"))
	button, err := s.FindElement(ctx, "#go")
	require.NoError(t, err)
	require.NoError(t, s.ClickElement(ctx, button))

	raw, err := s.ExecuteScript(ctx, "return document.title;")
	require.NoError(t, err)
	assert.JSONEq(t, `"rod"`, string(raw))

	found, err := s.WaitFor(ctx, "#missing", 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, found)

	err = s.CloseTab(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot close the only remaining tab")

	_, err = s.OpenTab(ctx)
	require.NoError(t, err)
	tabs, err := s.ListTabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 2)
	require.NoError(t, s.CloseTab(ctx, 1))
	assert.Equal(t, tabs[0].ID, s.CurrentTab().ID)
}
