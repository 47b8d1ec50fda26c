// internal/agent/job_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{"Navigate", Navigate("https://example.com"), ""},
		{"NavigateNoURL", Job{Kind: KindNavigate}, "requires a url"},
		{"Click", Click("#go"), ""},
		{"ClickNoSelector", Job{Kind: KindClick, Selector: "  "}, "requires a selector"},
		{"TypeEmptyText", Type("#q", ""), ""},
		{"WaitForNoSelector", Job{Kind: KindWaitFor}, "requires a selector"},
		{"ScrollTo", ScrollTo("footer"), ""},
		{"Screenshot", Screenshot("home"), ""},
		{"ScreenshotNoPrefix", Job{Kind: KindScreenshot}, "requires a prefix"},
		{"ScreenshotPathPrefix", Screenshot("../etc"), "path separators"},
		{"UnknownKind", Job{Kind: "Hover", Selector: "#x"}, `unknown job kind "Hover"`},
		{"ClickWithURL", Job{Kind: KindClick, Selector: "#a", URL: "https://a"}, "must not set url"},
		{"WaitForWithText", Job{Kind: KindWaitFor, Selector: "#a", Text: "x"}, "must not set text"},
		{"ScreenshotWithSelector", Job{Kind: KindScreenshot, Prefix: "p", Selector: "#a"}, "must not set selector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJob_EqualityAndTarget(t *testing.T) {
	assert.True(t, Type("#q", "go") == Type("#q", "go"))
	assert.False(t, Type("#q", "go") == Type("#q", "rust"))
	assert.False(t, Click("#a") == WaitFor("#a"))

	parsed, err := ParseJobs([]byte(`[{"kind":"click","selector":"#a"}]`))
	require.NoError(t, err)
	assert.True(t, parsed[0] == Click("#a"), "parsed jobs compare equal to constructed ones")

	assert.Equal(t, "https://example.com", Navigate("https://example.com").Target())
	assert.Equal(t, "shot", Screenshot("shot").Target())
	assert.Equal(t, "#q", Type("#q", "x").Target())

	assert.Equal(t, `Type(#q, "hello")`, Type("#q", "hello").String())
	assert.Equal(t, "Click(#go)", Click("#go").String())
}

func TestParseJobs(t *testing.T) {
	jobs, err := ParseJobs([]byte(`[
		{"kind": "navigate", "url": "https://example.com"},
		{"kind": "Type", "selector": "#q", "text": "golang"},
		{"kind": "CLICK", "selector": "#go", "comment": "extra fields are ignored"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []Job{
		Navigate("https://example.com"),
		Type("#q", "golang"),
		Click("#go"),
	}, jobs)

	empty, err := ParseJobs([]byte(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestParseJobs_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "object", in: `{"kind": "Click"}`, want: "must be a JSON array"},
		{name: "empty", in: ``, want: "must be a JSON array"},
		{name: "truncated", in: `[{"kind": "Click"`, want: "decode job list"},
		{name: "unknown kind", in: `[{"kind": "Fly", "selector": "x"}]`, want: `job 0: unknown job kind "Fly"`},
		{
			name: "missing selector",
			in:   `[{"kind": "Navigate", "url": "https://a"}, {"kind": "Click"}]`,
			want: "job 1: Click job requires a selector",
		},
		{
			name: "fields of other kinds",
			in:   `[{"kind":"Click","selector":"#a","url":"https://evil","text":"x","prefix":"p"}]`,
			want: "job 0: Click job must not set url, text, prefix",
		},
		{
			name: "navigate with selector",
			in:   `[{"kind":"Navigate","url":"https://a","selector":"#a"}]`,
			want: "job 0: Navigate job must not set selector",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := ParseJobs([]byte(tt.in))
			require.Error(t, err)
			assert.Nil(t, jobs)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalJobs_RoundTrip(t *testing.T) {
	data, err := MarshalJobs(exampleJobs)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"kind":"Navigate","url":"https://duckduckgo.com"}`)

	back, err := ParseJobs(data)
	require.NoError(t, err)
	assert.Equal(t, exampleJobs, back)

	data, err = MarshalJobs(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
