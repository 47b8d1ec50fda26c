package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type used for structured error reporting across the
// agent. Callers switch on codes instead of matching message text.
type ErrorCode string

const (
	// -- Remote Control Errors --
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"
	ErrCodeOperation  ErrorCode = "OPERATION_ERROR"

	// -- Reasoning Errors --
	ErrCodeDomExtraction   ErrorCode = "DOM_EXTRACTION_ERROR"
	ErrCodeInvalidAction   ErrorCode = "INVALID_ACTION"
	ErrCodeLabelResolution ErrorCode = "LABEL_RESOLUTION_ERROR"
	ErrCodeMissingJobBlock ErrorCode = "MISSING_JOB_BLOCK"
	ErrCodeJobParse        ErrorCode = "JOB_PARSE_ERROR"

	// -- Execution & Persistence Errors --
	ErrCodeJobFailed ErrorCode = "JOB_FAILED"
	ErrCodeMemory    ErrorCode = "MEMORY_ERROR"

	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// ErrNoCandidates is returned (wrapped in a LabelResolutionError) when no
// labelled element of the requested category exists on the page.
var ErrNoCandidates = errors.New("no labelled candidates of the requested category")

// Coded is implemented by every error in the taxonomy.
type Coded interface {
	error
	Code() ErrorCode
}

// CodeOf returns the code of the first coded error in err's chain, or
// ErrCodeUnknown. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return ErrCodeUnknown
}

// ConnectionError means the browser endpoint could not be reached or the
// session could not be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("browser connection failed: %v", e.Err)
	}
	return fmt.Sprintf("browser connection to %s failed: %v", e.Endpoint, e.Err)
}
func (e *ConnectionError) Unwrap() error   { return e.Err }
func (e *ConnectionError) Code() ErrorCode { return ErrCodeConnection }

// OperationError wraps a failed remote-control call.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("browser operation %s failed: %v", e.Op, e.Err)
}
func (e *OperationError) Unwrap() error   { return e.Err }
func (e *OperationError) Code() ErrorCode { return ErrCodeOperation }

// NewOperationError builds an OperationError from a message.
func NewOperationError(op, format string, args ...interface{}) *OperationError {
	return &OperationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// DomExtractionError carries the raw diagnostic of a failed page snapshot.
type DomExtractionError struct {
	Diagnostic string
	Err        error
}

func (e *DomExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dom extraction failed: %s: %v", e.Diagnostic, e.Err)
	}
	return fmt.Sprintf("dom extraction failed: %s", e.Diagnostic)
}
func (e *DomExtractionError) Unwrap() error   { return e.Err }
func (e *DomExtractionError) Code() ErrorCode { return ErrCodeDomExtraction }

// InvalidActionError is returned when the classifier answers outside {click, type}.
type InvalidActionError struct {
	Response string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action classification: %q", e.Response)
}
func (e *InvalidActionError) Code() ErrorCode { return ErrCodeInvalidAction }

// LabelResolutionError is returned when no valid label was obtained within the
// attempt budget. Attempts is zero when resolution never reached the model.
type LabelResolutionError struct {
	Attempts int
	Err      error
}

func (e *LabelResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("label resolution failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("label resolution failed after %d attempts", e.Attempts)
}
func (e *LabelResolutionError) Unwrap() error   { return e.Err }
func (e *LabelResolutionError) Code() ErrorCode { return ErrCodeLabelResolution }

// MissingJobBlockError means the planner response had no fenced job block.
type MissingJobBlockError struct {
	Response string
}

func (e *MissingJobBlockError) Error() string {
	return "planner response contains no fenced job block"
}
func (e *MissingJobBlockError) Code() ErrorCode { return ErrCodeMissingJobBlock }

// JobParseError means the fenced block was found but is not a valid job list.
type JobParseError struct {
	Block string
	Err   error
}

func (e *JobParseError) Error() string {
	return fmt.Sprintf("failed to parse job block: %v", e.Err)
}
func (e *JobParseError) Unwrap() error   { return e.Err }
func (e *JobParseError) Code() ErrorCode { return ErrCodeJobParse }

// MemoryError wraps serialization and persistence failures of the interaction memory.
type MemoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *MemoryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("memory %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("memory %s: %v", e.Op, e.Err)
}
func (e *MemoryError) Unwrap() error   { return e.Err }
func (e *MemoryError) Code() ErrorCode { return ErrCodeMemory }
