package evaluator

import (
	"strings"

	"arena/internal/contest/model"
	"arena/internal/judge/execclient"
	"arena/internal/judge/problem"
)

// CaseOutcome is the judged result of one test case.
type CaseOutcome struct {
	Index    int
	Verdict  model.Verdict
	TimeMS   int64
	MemoryKB int64
}

// Classify maps one execution result plus the output comparison to a
// per-case verdict.
func Classify(result *execclient.RunResult, expected string, mode problem.CompareMode) model.Verdict {
	switch {
	case result.CompileFailed():
		return model.VerdictCompileError
	case result.TimedOut():
		return model.VerdictTimeLimitExceeded
	case result.Crashed():
		return model.VerdictRuntimeError
	}
	if OutputMatches(result.Stdout, expected, mode) {
		return model.VerdictAccepted
	}
	return model.VerdictWrongAnswer
}

// Aggregate folds per-case outcomes into the submission verdict. The
// overall verdict is the most severe outcome among attempted cases, and
// accepted additionally requires that every case was attempted.
func Aggregate(outcomes []CaseOutcome, totalCases int) model.Verdict {
	if len(outcomes) == 0 {
		return model.VerdictServiceUnavailable
	}
	worst := model.VerdictAccepted
	for _, o := range outcomes {
		if o.Verdict.Rank() > worst.Rank() {
			worst = o.Verdict
		}
	}
	if worst == model.VerdictAccepted && len(outcomes) < totalCases {
		return model.VerdictWrongAnswer
	}
	return worst
}

// Metrics returns the peak time and memory across attempted cases.
func Metrics(outcomes []CaseOutcome) (timeMS, memoryKB int64) {
	for _, o := range outcomes {
		if o.TimeMS > timeMS {
			timeMS = o.TimeMS
		}
		if o.MemoryKB > memoryKB {
			memoryKB = o.MemoryKB
		}
	}
	return timeMS, memoryKB
}

// OutputMatches compares produced output against the expected answer.
// Exact mode normalizes line endings and trailing whitespace per line;
// token mode compares whitespace-separated tokens.
func OutputMatches(got, want string, mode problem.CompareMode) bool {
	if mode == problem.CompareTokens {
		return tokensEqual(got, want)
	}
	return normalize(got) == normalize(want)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}

func tokensEqual(got, want string) bool {
	a := strings.Fields(got)
	b := strings.Fields(want)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
