package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func mustBuild(t *testing.T, key string, params Params) RequestSpec {
	t.Helper()
	cmd, ok := Registry()[key]
	if !ok {
		t.Fatalf("command %q not registered", key)
	}
	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	return req
}

func decodeBody(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal body failed: %v", err)
	}
	return payload
}

func TestBuildGetSubstitutesPath(t *testing.T) {
	params := Params{}
	params.Set("contest_id", "7")

	req := mustBuild(t, "contest get", params)
	if req.Method != "GET" || req.Path != "/api/v1/contests/7" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Body != nil {
		t.Errorf("GET request carries a body: %s", req.Body)
	}
}

func TestBuildMissingPathParam(t *testing.T) {
	cmd := Registry()["contest get"]
	if _, err := BuildRequest(cmd, Params{}); err == nil {
		t.Fatal("expected an error for missing contest id")
	}
}

func TestBuildSubmissionsQueryParams(t *testing.T) {
	params := Params{}
	params.Set("id", "3")
	params.Set("participant_id", "42")
	params.Set("problem", "A")
	params.Set("page", "2")

	req := mustBuild(t, "contest submissions", params)
	want := "/api/v1/contests/3/submissions?page=2&participant_id=42&problem_label=A"
	if req.Path != want {
		t.Errorf("path = %s, want %s", req.Path, want)
	}
}

func TestBuildSubmissionPathAndQuery(t *testing.T) {
	params := Params{}
	params.Set("contest_id", "3")
	params.Set("submission_id", "abc-123")
	params.Set("viewer_id", "42")

	req := mustBuild(t, "contest submission", params)
	want := "/api/v1/contests/3/submissions/abc-123?viewer_id=42"
	if req.Path != want {
		t.Errorf("path = %s, want %s", req.Path, want)
	}
}

func TestBuildSubmitWithSourceFile(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "main.py")
	if err := os.WriteFile(sourcePath, []byte("print(42)"), 0o600); err != nil {
		t.Fatalf("write temp source failed: %v", err)
	}

	params := Params{}
	params.Set("contest_id", "1")
	params.Set("participant_id", "42")
	params.Set("problem", "A")
	params.Set("language", "python")
	params.Set("source_file", sourcePath)
	params.Set("source_code", "_file_")

	req := mustBuild(t, "contest submit", params)
	payload := decodeBody(t, req.Body)
	if payload["source_code"] != "print(42)" {
		t.Errorf("source_code = %v", payload["source_code"])
	}
	if payload["problem_label"] != "A" || payload["participant_id"] != float64(42) {
		t.Errorf("payload = %v", payload)
	}
}

func TestBuildSubmitMissingSource(t *testing.T) {
	params := Params{}
	params.Set("contest_id", "1")
	params.Set("participant_id", "42")
	params.Set("problem", "A")
	params.Set("language", "python")

	cmd := Registry()["contest submit"]
	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected an error for missing source code")
	}
}

func TestBuildCreateWithProblemsFile(t *testing.T) {
	dir := t.TempDir()
	problemsPath := filepath.Join(dir, "problems.json")
	problems := `[{"problem_id":10,"label":"A","points":100}]`
	if err := os.WriteFile(problemsPath, []byte(problems), 0o600); err != nil {
		t.Fatalf("write problems failed: %v", err)
	}

	params := Params{}
	params.Set("name", "weekly round")
	params.Set("duration_sec", "7200")
	params.Set("problems_file", problemsPath)
	params.Set("problems_json", "_file_")
	params.Set("languages", "go, python")
	params.Set("allow_late_join", "true")
	params.Set("penalty_per_wrong", "1200")

	req := mustBuild(t, "contest create", params)
	payload := decodeBody(t, req.Body)
	if payload["name"] != "weekly round" || payload["duration_sec"] != float64(7200) {
		t.Errorf("payload = %v", payload)
	}
	if payload["allow_late_join"] != true || payload["penalty_per_wrong"] != float64(1200) {
		t.Errorf("payload = %v", payload)
	}
	langs, ok := payload["languages"].([]interface{})
	if !ok || len(langs) != 2 || langs[0] != "go" {
		t.Errorf("languages = %v", payload["languages"])
	}
	probs, ok := payload["problems"].([]interface{})
	if !ok || len(probs) != 1 {
		t.Fatalf("problems = %v", payload["problems"])
	}
	first := probs[0].(map[string]interface{})
	if first["label"] != "A" || first["points"] != float64(100) {
		t.Errorf("problem = %v", first)
	}
}

func TestBuildCreateRejectsBadJSON(t *testing.T) {
	params := Params{}
	params.Set("name", "round")
	params.Set("duration_sec", "3600")
	params.Set("problems_json", "{not json")

	cmd := Registry()["contest create"]
	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected an error for invalid problems json")
	}
}

func TestBuildDisqualifyPayload(t *testing.T) {
	params := Params{}
	params.Set("contest_id", "1")
	params.Set("participant_id", "42")
	params.Set("reason", "plagiarism")

	req := mustBuild(t, "contest disqualify", params)
	if req.Path != "/api/v1/contests/1/disqualify" {
		t.Errorf("path = %s", req.Path)
	}
	payload := decodeBody(t, req.Body)
	if payload["participant_id"] != float64(42) || payload["reason"] != "plagiarism" {
		t.Errorf("payload = %v", payload)
	}
}

func TestParamsCanonicalize(t *testing.T) {
	params := Params{}
	params.Set("Contest_ID", "5")
	params.Canonicalize(Registry()["contest get"].Fields)
	if params.Get("id") != "5" {
		t.Errorf("id = %q after alias folding", params.Get("id"))
	}
}

func TestRegistryAdminFlags(t *testing.T) {
	registry := Registry()
	for _, key := range []string{"contest create", "contest publish", "contest start", "contest end", "contest cancel", "contest disqualify", "contest announce"} {
		if !registry[key].AdminOnly {
			t.Errorf("%s should be admin only", key)
		}
	}
	for _, key := range []string{"contest register", "contest submit", "contest leaderboard", "contest get"} {
		if registry[key].AdminOnly {
			t.Errorf("%s should not be admin only", key)
		}
	}
}
