package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse is returned when planning output cannot be turned into tasks.
var ErrParse = errors.New("plan parse failure")

// wrapperKeys are object keys models use when asked for a JSON object that
// holds the task list.
var wrapperKeys = []string{"tasks", "plan", "steps"}

// Parse decodes planning output into tasks. It accepts a bare JSON array,
// an array wrapped in a code fence or surrounding prose, or an object
// holding the array under one of wrapperKeys. Tasks without an id are
// numbered in order after the highest explicit id; duplicate or negative
// ids are rejected.
func Parse(raw string) ([]Task, error) {
	text := normalizeJSONText(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty planning output", ErrParse)
	}

	var tasks []Task
	if strings.HasPrefix(text, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		found := false
		for _, k := range wrapperKeys {
			if v, ok := obj[k]; ok {
				if err := json.Unmarshal(v, &tasks); err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrParse, k, err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: object has no task list", ErrParse)
		}
	} else if err := json.Unmarshal([]byte(text), &tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	next := 0
	for _, t := range tasks {
		next = max(next, t.ID)
	}
	seen := make(map[int]bool, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if t.ID == 0 {
			next++
			t.ID = next
		}
		if t.ID < 0 {
			return nil, fmt.Errorf("%w: task %d has negative id %d", ErrParse, i, t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate task_id %d", ErrParse, t.ID)
		}
		seen[t.ID] = true
		if t.Status == "" {
			t.Status = StatusPending
		}
	}
	return tasks, nil
}

func normalizeJSONText(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		// language hint, e.g. ```json
		if idx := strings.IndexByte(t, '\n'); idx != -1 {
			t = t[idx+1:]
		}
		if j := strings.LastIndex(t, "```"); j != -1 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	if strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{") {
		return t
	}
	if arr := extractJSONArray(t); arr != "" {
		return arr
	}
	return t
}

// extractJSONArray returns the first balanced top-level array in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
