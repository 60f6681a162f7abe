package plan

import (
	"errors"
	"testing"
)

func TestParseBareArray(t *testing.T) {
	raw := `[
		{"task_id": 1, "action": "write_code", "description": "write", "file_path": "out/a.js", "status": "pending"},
		{"task_id": 2, "action": "evaluate_code", "description": "check", "file_path": "out/a.js"},
		{"task_id": 3, "action": "finish", "description": "done"}
	]`
	tasks, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[1].Action != ActionEvaluateCode || tasks[1].FilePath != "out/a.js" {
		t.Errorf("unexpected task 2: %+v", tasks[1])
	}
	if tasks[1].Status != StatusPending {
		t.Errorf("expected status pending, got %q", tasks[1].Status)
	}
}

func TestParseObjectWrapperAndFence(t *testing.T) {
	raw := "```json\n{\"tasks\": [{\"action\": \"search\", \"description\": \"look\", \"query\": \"go actors\"}]}\n```"
	tasks, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Query != "go actors" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if tasks[0].ID != 1 {
		t.Errorf("expected missing id to be numbered 1, got %d", tasks[0].ID)
	}
}

func TestParseArrayInProse(t *testing.T) {
	raw := `Here is the plan: [{"task_id": 7, "action": "finish", "description": "wrap [up]"}] hope it helps`
	tasks, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != 7 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestParseNumbersMissingIDsAfterExplicit(t *testing.T) {
	raw := `[{"action": "write_code"}, {"task_id": 1, "action": "evaluate_code"}, {"action": "finish"}]`
	tasks, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []int{2, 1, 3}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("task %d: expected id %d, got %d", i, id, tasks[i].ID)
		}
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	raw := `[{"task_id": 1, "action": "finish"}, {"task_id": 1, "action": "finish"}]`
	if _, err := Parse(raw); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"answer": 42}`, `[{"task_id": "one"}]`} {
		if _, err := Parse(raw); !errors.Is(err, ErrParse) {
			t.Errorf("expected ErrParse for %q, got %v", raw, err)
		}
	}
}

func TestQueueOrder(t *testing.T) {
	q := NewQueue([]Task{{ID: 1}, {ID: 2}})
	q.PushFront(Task{ID: 9})
	q.PushBack(Task{ID: 3})

	var got []int
	for {
		task, ok := q.PopFront()
		if !ok {
			break
		}
		got = append(got, task.ID)
	}
	want := []int{9, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestQueueReplaceCopies(t *testing.T) {
	src := []Task{{ID: 1}}
	q := NewQueue(src)
	src[0].ID = 42
	if task, _ := q.PopFront(); task.ID != 1 {
		t.Errorf("expected queue to hold a copy, got id %d", task.ID)
	}
}

func TestIsRevision(t *testing.T) {
	if (Task{Action: ActionWriteCode}).IsRevision() {
		t.Error("plain write_code is not a revision")
	}
	if !(Task{Action: ActionWriteCode, Feedback: "fix it"}).IsRevision() {
		t.Error("write_code with feedback is a revision")
	}
}
