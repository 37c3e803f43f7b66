package execclient

// RunRequest is one isolated program execution against a single stdin.
type RunRequest struct {
	RequestID   string `json:"request_id,omitempty"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Stdin       string `json:"stdin"`
	TimeLimitMS int64  `json:"time_limit_ms"`
	OutputLimit int64  `json:"output_limit_bytes,omitempty"`
}

// Status strings returned by the execution service.
const (
	StatusAccepted        = "accepted"
	StatusTimeLimit       = "time_limit_exceeded"
	StatusNonzeroExit     = "nonzero_exit_status"
	StatusSignalled       = "signalled"
	StatusCompileError    = "compile_error"
	StatusOutputLimit     = "output_limit_exceeded"
	StatusMemoryLimit     = "memory_limit_exceeded"
	StatusInternalError   = "internal_error"
)

// RunResult is the authoritative outcome of one execution.
type RunResult struct {
	Status        string `json:"status"`
	ExitStatus    int    `json:"exit_status"`
	Signal        int    `json:"signal,omitempty"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output,omitempty"`
	TimeMS        int64  `json:"time_ms"`
	MemoryKB      int64  `json:"memory_kb"`
}

// Completed reports whether the program ran to completion and its stdout
// is worth comparing against the expected answer.
func (r *RunResult) Completed() bool {
	return r.Status == StatusAccepted
}

// TimedOut reports whether the sandbox killed the program for exceeding
// its time limit.
func (r *RunResult) TimedOut() bool {
	return r.Status == StatusTimeLimit
}

// CompileFailed reports whether compilation failed before any execution.
func (r *RunResult) CompileFailed() bool {
	return r.Status == StatusCompileError
}

// Crashed reports whether the program terminated abnormally.
func (r *RunResult) Crashed() bool {
	switch r.Status {
	case StatusNonzeroExit, StatusSignalled, StatusOutputLimit, StatusMemoryLimit:
		return true
	}
	return false
}
