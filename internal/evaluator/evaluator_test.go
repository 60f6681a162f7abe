package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mtzanidakis/agentcrew/internal/artifact"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/message"
)

type sent struct {
	recipient string
	msg       message.Message
}

type recorder struct{ sent []sent }

func (r *recorder) Route(_ context.Context, _, recipient string, msg message.Message) error {
	r.sent = append(r.sent, sent{recipient, msg})
	return nil
}

func setup(t *testing.T, replies ...llm.Reply) (*Evaluator, *artifact.Store, *recorder, *llm.Scripted) {
	t.Helper()
	files := artifact.New(t.TempDir())
	if err := files.Write("app.js", "console.log('hi')"); err != nil {
		t.Fatal(err)
	}
	sc := llm.NewScripted(replies...)
	r := &recorder{}
	e := New(sc, files)
	e.Bind(r)
	return e, files, r, sc
}

func result(t *testing.T, r *recorder) message.EvaluationResult {
	t.Helper()
	if len(r.sent) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(r.sent))
	}
	if r.sent[0].recipient != "Planner" {
		t.Errorf("expected reply to Planner, got %s", r.sent[0].recipient)
	}
	res, ok := r.sent[0].msg.(message.EvaluationResult)
	if !ok {
		t.Fatalf("expected evaluation_result, got %s", r.sent[0].msg.Type())
	}
	return res
}

func request() message.EvaluationRequest {
	return message.EvaluationRequest{TaskID: 4, Goal: "print a greeting", FilePath: "app.js", Requester: "Planner"}
}

func TestApproved(t *testing.T) {
	e, _, r, sc := setup(t, llm.Reply{Text: `{"status": "approved", "feedback": "fine"}`})

	e.Execute(context.Background(), request())

	res := result(t, r)
	if res.Status != message.StatusApproved || res.Feedback != "fine" || res.FilePath != "app.js" || res.TaskID != 4 {
		t.Errorf("unexpected result %+v", res)
	}
	req := sc.Requests()[0]
	if !req.JSONMode || req.Temperature != 0.2 {
		t.Errorf("expected JSON mode at 0.2, got %+v", req)
	}
	if !strings.Contains(req.Messages[1].Content, "console.log('hi')") {
		t.Error("expected code in prompt")
	}
}

func TestRequiresRevisionInFence(t *testing.T) {
	e, _, r, _ := setup(t, llm.Reply{Text: "```json\n{\"status\": \"requires_revision\", \"feedback\": \"add tests\"}\n```"})

	e.Execute(context.Background(), request())

	if res := result(t, r); res.Status != message.StatusRequiresRevision || res.Feedback != "add tests" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMissingFileIsError(t *testing.T) {
	e, _, r, sc := setup(t)
	req := request()
	req.FilePath = "missing.js"

	e.Execute(context.Background(), req)

	res := result(t, r)
	if res.Status != message.StatusError || !strings.Contains(res.Feedback, "not found") {
		t.Errorf("unexpected result %+v", res)
	}
	if len(sc.Requests()) != 0 {
		t.Error("expected no completion request")
	}
}

func TestMalformedReplyIsError(t *testing.T) {
	e, _, r, _ := setup(t, llm.Reply{Text: "looks fine to me"})
	e.Execute(context.Background(), request())
	if res := result(t, r); res.Status != message.StatusError {
		t.Errorf("expected error status, got %+v", res)
	}
}

func TestUnexpectedStatusIsError(t *testing.T) {
	e, _, r, _ := setup(t, llm.Reply{Text: `{"status": "great", "feedback": ""}`})
	e.Execute(context.Background(), request())
	if res := result(t, r); res.Status != message.StatusError || !strings.Contains(res.Feedback, "great") {
		t.Errorf("expected error status, got %+v", res)
	}
}

func TestServiceErrorIsError(t *testing.T) {
	e, _, r, _ := setup(t, llm.Reply{Err: errors.New("timeout")})
	e.Execute(context.Background(), request())
	if res := result(t, r); res.Status != message.StatusError || !strings.Contains(res.Feedback, "timeout") {
		t.Errorf("expected error status, got %+v", res)
	}
}

func TestMissingFields(t *testing.T) {
	e, _, r, _ := setup(t)

	status := e.Execute(context.Background(), message.EvaluationRequest{Goal: "g", FilePath: "app.js"})
	if !strings.Contains(status, "requester") {
		t.Errorf("unexpected status %q", status)
	}
	if len(r.sent) != 0 {
		t.Fatalf("expected no reply without requester, got %d", len(r.sent))
	}

	e.Execute(context.Background(), message.EvaluationRequest{FilePath: "app.js", Requester: "Planner"})
	if res := result(t, r); res.Status != message.StatusError || !strings.Contains(res.Feedback, "goal") {
		t.Errorf("expected missing goal error, got %+v", res)
	}
}

func TestOtherMessagesIgnored(t *testing.T) {
	e, _, r, _ := setup(t)
	if status := e.Execute(context.Background(), message.Goal{Text: "x"}); status != "No action taken." {
		t.Errorf("unexpected status %q", status)
	}
	if len(r.sent) != 0 {
		t.Error("expected nothing sent")
	}
}
