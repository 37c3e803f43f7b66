package problem

import "context"

// CompareMode selects how a test case compares produced output against the
// expected answer.
type CompareMode string

const (
	// CompareExact matches after normalizing line endings and trailing
	// whitespace.
	CompareExact CompareMode = "exact"
	// CompareTokens matches whitespace-separated tokens, ignoring all
	// spacing differences.
	CompareTokens CompareMode = "tokens"
)

// TestCase is one input/answer pair of a problem's judge data.
type TestCase struct {
	Index          int    `json:"index"`
	Stdin          string `json:"stdin"`
	ExpectedStdout string `json:"expected_stdout"`
	TimeLimitMS    int64  `json:"time_limit_ms"`
}

// JudgeData is the full judge bundle for one problem.
type JudgeData struct {
	ProblemID      int64       `json:"problem_id"`
	Cases          []TestCase  `json:"cases"`
	CompareMode    CompareMode `json:"compare_mode"`
	CodeLimitBytes int         `json:"code_limit_bytes"`
	StdinLimit     int         `json:"stdin_limit_bytes"`
}

// Provider loads judge data for problems.
type Provider interface {
	GetJudgeData(ctx context.Context, problemID int64) (*JudgeData, error)
}
