package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "contest",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/contests",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "name", Prompt: "name", Type: FieldString, Required: true},
				{Name: "description", Prompt: "description", Type: FieldString, Required: false},
				{Name: "duration_sec", Prompt: "duration_sec", Type: FieldInt64, Required: true},
				{Name: "start_at", Prompt: "start_at (RFC3339)", Type: FieldString, Required: false},
				{Name: "problems_json", Prompt: "problems_json (JSON array)", Type: FieldJSON, Required: false},
				{Name: "problems_file", Prompt: "problems_file", Type: FieldFile, Required: false},
				{Name: "languages", Prompt: "languages (comma-separated)", Type: FieldStringList, Required: false},
				{Name: "freeze_minutes", Prompt: "freeze_minutes", Type: FieldInt, Required: false},
				{Name: "allow_late_join", Prompt: "allow_late_join", Type: FieldBool, Required: false},
				{Name: "late_join_minutes", Prompt: "late_join_minutes", Type: FieldInt, Required: false},
				{Name: "penalty_per_wrong", Prompt: "penalty_per_wrong", Type: FieldInt, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "publish",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/publish",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "start",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/start",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "end",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/end",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "cancel",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/cancel",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "reason", Prompt: "reason", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "disqualify",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/disqualify",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "participant_id", Prompt: "participant_id", Type: FieldInt64, Required: true},
				{Name: "reason", Prompt: "reason", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "announce",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/announce",
			AdminOnly:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "message", Prompt: "message", Type: FieldString, Required: true},
				{Name: "priority", Prompt: "priority", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "register",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/registrations",
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "participant_id", Prompt: "participant_id", Type: FieldInt64, Required: true},
				{Name: "alias", Prompt: "alias", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "registrations",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id/registrations",
			QueryParams:  []string{"page", "size"},
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "page", Prompt: "page", Type: FieldInt, Required: false},
				{Name: "size", Prompt: "size", Type: FieldInt, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:id/submissions",
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "participant_id", Prompt: "participant_id", Type: FieldInt64, Required: true},
				{Name: "problem_label", Aliases: []string{"problem"}, Prompt: "problem_label", Type: FieldString, Required: true},
				{Name: "language", Prompt: "language", Type: FieldString, Required: true},
				{Name: "source_code", Prompt: "source_code", Type: FieldString, Required: true},
				{Name: "source_file", Prompt: "source_file", Type: FieldFile, Required: false},
				{Name: "alias", Prompt: "alias", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "submissions",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id/submissions",
			QueryParams:  []string{"participant_id", "problem_label", "verdict", "viewer_id", "page", "size"},
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "participant_id", Prompt: "participant_id", Type: FieldInt64, Required: false},
				{Name: "problem_label", Aliases: []string{"problem"}, Prompt: "problem_label", Type: FieldString, Required: false},
				{Name: "verdict", Prompt: "verdict", Type: FieldString, Required: false},
				{Name: "viewer_id", Prompt: "viewer_id", Type: FieldInt64, Required: false},
				{Name: "page", Prompt: "page", Type: FieldInt, Required: false},
				{Name: "size", Prompt: "size", Type: FieldInt, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "submission",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id/submissions/:sid",
			QueryParams:  []string{"viewer_id"},
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "sid", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
				{Name: "viewer_id", Prompt: "viewer_id", Type: FieldInt64, Required: false},
			},
		},
		{
			Service:      "contest",
			Action:       "leaderboard",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:id/leaderboard",
			QueryParams:  []string{"page", "size"},
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldInt64, Required: true},
				{Name: "page", Prompt: "page", Type: FieldInt, Required: false},
				{Name: "size", Prompt: "size", Type: FieldInt, Required: false},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	for _, key := range []string{"id", "sid"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, value)
		}
	}

	query := url.Values{}
	for _, key := range cmd.QueryParams {
		if value := params.Get(key); value != "" {
			query.Set(key, value)
		}
	}
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Service != "contest" {
		return nil, nil
	}
	switch cmd.Action {
	case "create":
		return buildCreatePayload(params)
	case "cancel":
		return map[string]string{
			"reason": params.Get("reason"),
		}, nil
	case "disqualify":
		participantID, err := ParseInt64(params.Get("participant_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid participant_id: %w", err)
		}
		return map[string]interface{}{
			"participant_id": participantID,
			"reason":         params.Get("reason"),
		}, nil
	case "announce":
		payload := map[string]string{
			"message": params.Get("message"),
		}
		if params.Get("priority") != "" {
			payload["priority"] = params.Get("priority")
		}
		return payload, nil
	case "register":
		participantID, err := ParseInt64(params.Get("participant_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid participant_id: %w", err)
		}
		payload := map[string]interface{}{
			"participant_id": participantID,
		}
		if params.Get("alias") != "" {
			payload["alias"] = params.Get("alias")
		}
		return payload, nil
	case "submit":
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildCreatePayload(params Params) (interface{}, error) {
	duration, err := ParseInt64(params.Get("duration_sec"))
	if err != nil {
		return nil, fmt.Errorf("invalid duration_sec: %w", err)
	}
	payload := map[string]interface{}{
		"name":         params.Get("name"),
		"duration_sec": duration,
	}
	if params.Get("description") != "" {
		payload["description"] = params.Get("description")
	}
	if params.Get("start_at") != "" {
		payload["start_at"] = params.Get("start_at")
	}
	if params.Get("languages") != "" {
		payload["languages"] = ParseStringList(params.Get("languages"))
	}
	for _, key := range []string{"freeze_minutes", "late_join_minutes", "penalty_per_wrong"} {
		if params.Get(key) == "" {
			continue
		}
		n, err := ParseInt(params.Get(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		payload[key] = n
	}
	if params.Get("allow_late_join") != "" {
		allow, err := ParseBool(params.Get("allow_late_join"))
		if err != nil {
			return nil, fmt.Errorf("invalid allow_late_join: %w", err)
		}
		payload["allow_late_join"] = allow
	}

	problems, err := parseJSONOrFile(params, "problems_json", "problems_file")
	if err != nil {
		return nil, err
	}
	if problems != nil {
		payload["problems"] = problems
	}
	return payload, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	participantID, err := ParseInt64(params.Get("participant_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid participant_id: %w", err)
	}

	sourceCode := params.Get("source_code")
	if (sourceCode == "" || sourceCode == "_file_") && params.Get("source_file") != "" {
		sourceCode, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if sourceCode == "" {
		return nil, fmt.Errorf("source_code is required")
	}

	payload := map[string]interface{}{
		"participant_id": participantID,
		"problem_label":  params.Get("problem_label"),
		"language":       params.Get("language"),
		"source_code":    sourceCode,
	}
	if params.Get("alias") != "" {
		payload["alias"] = params.Get("alias")
	}
	return payload, nil
}

func parseJSONOrFile(params Params, key, fileKey string) (json.RawMessage, error) {
	value := params.Get(key)
	if (value == "" || value == "_file_") && params.Get(fileKey) != "" {
		data, err := ReadFile(params.Get(fileKey))
		if err != nil {
			return nil, err
		}
		value = data
	}
	if value == "" {
		return nil, nil
	}
	raw, err := ParseJSON(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return raw, nil
}
