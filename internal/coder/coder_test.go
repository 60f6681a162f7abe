package coder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mtzanidakis/agentcrew/internal/artifact"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/message"
)

type sent struct {
	sender, recipient string
	msg               message.Message
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Route(_ context.Context, sender, recipient string, msg message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{sender, recipient, msg})
	return nil
}

type fakeSearch struct {
	result string
	err    error
	calls  []string
}

func (f *fakeSearch) Search(_ context.Context, q string) (string, error) {
	f.calls = append(f.calls, q)
	return f.result, f.err
}

func newCoder(t *testing.T, c llm.Completer) (*Coder, *artifact.Store, *recorder) {
	t.Helper()
	files := artifact.New(t.TempDir())
	r := &recorder{}
	cd := New(c, files, nil)
	cd.Bind(r)
	return cd, files, r
}

func onlyCompletion(t *testing.T, r *recorder) message.TaskComplete {
	t.Helper()
	if len(r.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(r.sent))
	}
	s := r.sent[0]
	if s.sender != Name || s.recipient != ReportTo {
		t.Errorf("expected %s -> %s, got %s -> %s", Name, ReportTo, s.sender, s.recipient)
	}
	done, ok := s.msg.(message.TaskComplete)
	if !ok {
		t.Fatalf("expected task_complete, got %s", s.msg.Type())
	}
	return done
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```js\nconsole.log(1)\n```", "console.log(1)"},
		{"  ```\n<p>x</p>\n```  \n", "<p>x</p>"},
		{"plain code", "plain code"},
		{"```python\nprint(1)", "print(1)"},
		{"```", ""},
	}
	for _, tt := range tests {
		got := StripFences(tt.in)
		if got != tt.want {
			t.Errorf("StripFences(%q): expected %q, got %q", tt.in, tt.want, got)
		}
		if again := StripFences(got); again != got {
			t.Errorf("StripFences not idempotent on %q: got %q", got, again)
		}
	}
}

func TestCodingTaskWritesFile(t *testing.T) {
	sc := llm.NewScripted(llm.Reply{Text: "```html\n<h1>hi</h1>\n```"})
	cd, files, r := newCoder(t, sc)

	status := cd.Execute(context.Background(), message.CodingTask{TaskID: 3, FilePath: "site/index.html", Description: "a heading"})
	if status != "Code generated for site/index.html." {
		t.Errorf("unexpected status %q", status)
	}

	got, err := files.Read("site/index.html")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "<h1>hi</h1>" {
		t.Errorf("expected stripped code, got %q", got)
	}

	done := onlyCompletion(t, r)
	if done.TaskID != 3 || done.FilePath != "site/index.html" || done.Error != "" {
		t.Errorf("unexpected completion %+v", done)
	}

	req := sc.Requests()[0]
	if req.Temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", req.Temperature)
	}
}

func TestCodingTaskIncludesAPIDataAndCurrentCode(t *testing.T) {
	sc := llm.NewScripted(llm.Reply{Text: "new"})
	cd, files, _ := newCoder(t, sc)
	if err := files.Write("data.js", "const old = 1;"); err != nil {
		t.Fatal(err)
	}

	cd.Execute(context.Background(), message.CodingTask{FilePath: "data.js", Description: "export papers", APIData: []string{`{"id":"2401.1"}`}})

	req := sc.Requests()[0]
	if !strings.Contains(req.Messages[0].Content, `2401.1`) {
		t.Error("expected api data in system prompt")
	}
	if !strings.Contains(req.Messages[1].Content, "const old = 1;") {
		t.Error("expected current code in user prompt")
	}
}

func TestCodingTaskUsesSearchContext(t *testing.T) {
	sc := llm.NewScripted(llm.Reply{Text: "x"})
	fs := &fakeSearch{result: "Title: Docs"}
	r := &recorder{}
	cd := New(sc, artifact.New(t.TempDir()), fs)
	cd.Bind(r)

	cd.Execute(context.Background(), message.CodingTask{FilePath: "a.txt", Description: "something"})

	if len(fs.calls) != 1 || fs.calls[0] != "something" {
		t.Errorf("expected a search for the description, got %v", fs.calls)
	}
	if !strings.Contains(sc.Requests()[0].Messages[0].Content, "Title: Docs") {
		t.Error("expected search results in system prompt")
	}
}

func TestRevisionRewritesFile(t *testing.T) {
	sc := llm.NewScripted(llm.Reply{Text: "fixed"})
	cd, files, r := newCoder(t, sc)
	if err := files.Write("a.py", "broken"); err != nil {
		t.Fatal(err)
	}

	status := cd.Execute(context.Background(), message.EvaluationResult{
		TaskID: 2, Status: message.StatusRequiresRevision, Feedback: "fix it", FilePath: "a.py",
	})
	if status != "Code revised for a.py." {
		t.Errorf("unexpected status %q", status)
	}
	if got, _ := files.Read("a.py"); got != "fixed" {
		t.Errorf("expected revised code, got %q", got)
	}
	if done := onlyCompletion(t, r); done.TaskID != 2 || done.Error != "" {
		t.Errorf("unexpected completion %+v", done)
	}
	if !strings.Contains(sc.Requests()[0].Messages[1].Content, "fix it") {
		t.Error("expected feedback in user prompt")
	}
}

func TestCompletionFailureReported(t *testing.T) {
	sc := llm.NewScripted(llm.Reply{Err: errors.New("quota")})
	cd, files, r := newCoder(t, sc)

	status := cd.Execute(context.Background(), message.CodingTask{FilePath: "a.txt", Description: "d"})
	if !strings.HasPrefix(status, "Error: generate code") {
		t.Errorf("unexpected status %q", status)
	}
	if done := onlyCompletion(t, r); !strings.Contains(done.Error, "quota") {
		t.Errorf("expected error in completion, got %+v", done)
	}
	if _, err := files.Read("a.txt"); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("expected no file written, got %v", err)
	}
}

func TestMissingFieldsReported(t *testing.T) {
	cd, _, r := newCoder(t, llm.NewScripted())

	status := cd.Execute(context.Background(), message.CodingTask{FilePath: "a.txt"})
	if !strings.Contains(status, "description") {
		t.Errorf("unexpected status %q", status)
	}
	if done := onlyCompletion(t, r); !strings.Contains(done.Error, "missing required field") {
		t.Errorf("expected missing field error, got %+v", done)
	}
}

func TestOtherMessagesIgnored(t *testing.T) {
	cd, _, r := newCoder(t, llm.NewScripted())

	for _, msg := range []message.Message{
		message.EvaluationResult{Status: message.StatusApproved, FilePath: "a"},
		message.Goal{Text: "x"},
	} {
		if status := cd.Execute(context.Background(), msg); status != "No action taken." {
			t.Errorf("expected no action for %s, got %q", msg.Type(), status)
		}
	}
	if len(r.sent) != 0 {
		t.Errorf("expected nothing sent, got %d", len(r.sent))
	}
}
