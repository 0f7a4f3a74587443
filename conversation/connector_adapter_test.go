package conversation

import (
	"context"
	"testing"

	"github.com/evalcore/evalcore/connector"
)

type fakeConnector struct {
	resp connector.Response
	err  error
	got  connector.Request
}

func (f *fakeConnector) Invoke(ctx context.Context, req connector.Request) (connector.Response, error) {
	f.got = req
	return f.resp, f.err
}

func TestConnectorAdapter_TranslatesRequest(t *testing.T) {
	fc := &fakeConnector{resp: connector.Response{Text: "hi there", LatencyMs: 42}}
	a := NewConnectorAdapter(fc)

	resp, err := a.Invoke(context.Background(), Request{
		UserInput:      "hello",
		Context:        map[string]any{"conversation_spec_id": "spec-1"},
		SystemID:       "gpt-4",
		IdempotencyKey: "exec-1:case-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi there" || resp.LatencyMs != 42 {
		t.Errorf("got %+v", resp)
	}
	if fc.got.ModelID != "gpt-4" {
		t.Errorf("ModelID = %q, want gpt-4", fc.got.ModelID)
	}
	if fc.got.Messages[0].Content != "hello" {
		t.Errorf("Messages[0].Content = %q", fc.got.Messages[0].Content)
	}
	if fc.got.Parameters["conversation_spec_id"] != "spec-1" {
		t.Errorf("Parameters not passed through opaquely: %+v", fc.got.Parameters)
	}
	if fc.got.IdempotencyKey != "exec-1:case-1" {
		t.Errorf("IdempotencyKey = %q", fc.got.IdempotencyKey)
	}
}

func TestConnectorAdapter_PropagatesError(t *testing.T) {
	fc := &fakeConnector{err: context.DeadlineExceeded}
	a := NewConnectorAdapter(fc)

	_, err := a.Invoke(context.Background(), Request{UserInput: "x", SystemID: "gpt-4"})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
