// internal/agent/job.go
package agent

import (
	"bytes"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// JobKind names a browser job variant.
type JobKind string

const (
	KindNavigate   JobKind = "Navigate"
	KindClick      JobKind = "Click"
	KindType       JobKind = "Type"
	KindWaitFor    JobKind = "WaitFor"
	KindScrollTo   JobKind = "ScrollTo"
	KindScreenshot JobKind = "Screenshot"
)

var jobKinds = []JobKind{KindNavigate, KindClick, KindType, KindWaitFor, KindScrollTo, KindScreenshot}

// ParseJobKind matches a kind name case-insensitively.
func ParseJobKind(s string) (JobKind, error) {
	s = strings.TrimSpace(s)
	for _, k := range jobKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// Job is one browser step. Only the fields of its kind are set, so two jobs
// are equal exactly when == says so.
type Job struct {
	Kind     JobKind `json:"kind"`
	URL      string  `json:"url,omitempty"`
	Selector string  `json:"selector,omitempty"`
	Text     string  `json:"text,omitempty"`
	Prefix   string  `json:"prefix,omitempty"`
}

func Navigate(url string) Job {
	return Job{Kind: KindNavigate, URL: url}
}

func Click(selector string) Job {
	return Job{Kind: KindClick, Selector: selector}
}

func Type(selector, text string) Job {
	return Job{Kind: KindType, Selector: selector, Text: text}
}

func WaitFor(selector string) Job {
	return Job{Kind: KindWaitFor, Selector: selector}
}

func ScrollTo(selector string) Job {
	return Job{Kind: KindScrollTo, Selector: selector}
}

func Screenshot(prefix string) Job {
	return Job{Kind: KindScreenshot, Prefix: prefix}
}

// Validate checks the kind, its required fields, and that no field of another
// kind is set. Type may carry empty text.
func (j Job) Validate() error {
	switch j.Kind {
	case KindNavigate:
		if strings.TrimSpace(j.URL) == "" {
			return fmt.Errorf("%s job requires a url", j.Kind)
		}
	case KindClick, KindType, KindWaitFor, KindScrollTo:
		if strings.TrimSpace(j.Selector) == "" {
			return fmt.Errorf("%s job requires a selector", j.Kind)
		}
	case KindScreenshot:
		if strings.TrimSpace(j.Prefix) == "" {
			return fmt.Errorf("%s job requires a prefix", j.Kind)
		}
		if strings.ContainsAny(j.Prefix, `/\`) {
			return fmt.Errorf("%s prefix %q must not contain path separators", j.Kind, j.Prefix)
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	if stray := j.strayFields(); len(stray) > 0 {
		return fmt.Errorf("%s job must not set %s", j.Kind, strings.Join(stray, ", "))
	}
	return nil
}

// strayFields names the set fields that belong to other kinds.
func (j Job) strayFields() []string {
	var stray []string
	if j.URL != "" && j.Kind != KindNavigate {
		stray = append(stray, "url")
	}
	if j.Selector != "" && (j.Kind == KindNavigate || j.Kind == KindScreenshot) {
		stray = append(stray, "selector")
	}
	if j.Text != "" && j.Kind != KindType {
		stray = append(stray, "text")
	}
	if j.Prefix != "" && j.Kind != KindScreenshot {
		stray = append(stray, "prefix")
	}
	return stray
}

// Target is the job's primary operand: the URL, selector or screenshot prefix.
func (j Job) Target() string {
	switch j.Kind {
	case KindNavigate:
		return j.URL
	case KindScreenshot:
		return j.Prefix
	default:
		return j.Selector
	}
}

func (j Job) String() string {
	if j.Kind == KindType {
		return fmt.Sprintf("Type(%s, %q)", j.Selector, j.Text)
	}
	return fmt.Sprintf("%s(%s)", j.Kind, j.Target())
}

// ParseJobs decodes and validates a JSON job list. Kind names are normalized.
func ParseJobs(data []byte) ([]Job, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("job list must be a JSON array")
	}
	var jobs []Job
	if err := jsonCodec.Unmarshal(trimmed, &jobs); err != nil {
		return nil, fmt.Errorf("decode job list: %w", err)
	}
	for i := range jobs {
		if kind, err := ParseJobKind(string(jobs[i].Kind)); err == nil {
			jobs[i].Kind = kind
		}
		if err := jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}
	if jobs == nil {
		jobs = []Job{}
	}
	return jobs, nil
}

// MarshalJobs encodes jobs in the same form ParseJobs accepts.
func MarshalJobs(jobs []Job) ([]byte, error) {
	if jobs == nil {
		jobs = []Job{}
	}
	return jsonCodec.Marshal(jobs)
}
