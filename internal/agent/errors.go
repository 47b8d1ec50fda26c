// internal/agent/errors.go
package agent

import (
	"fmt"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// JobError reports the job that stopped a batch. Attempts is zero when the
// job was rejected before reaching the browser.
type JobError struct {
	Index    int
	Job      Job
	Attempts int
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d (%s) failed after %d attempt(s): %v", e.Index, e.Job, e.Attempts, e.Err)
}
func (e *JobError) Unwrap() error           { return e.Err }
func (e *JobError) Code() schemas.ErrorCode { return schemas.ErrCodeJobFailed }
