package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(KindTransport, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithCorrelationID("corr-1")

	if GetErrorKind(err) != KindTransport {
		t.Fatalf("expected kind %s, got %s", KindTransport, GetErrorKind(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestNewError_Defaults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind      ErrorKind
		status    int
		retryable bool
	}{
		{KindNotFound, 404, false},
		{KindConflict, 409, false},
		{KindTimeout, 504, true},
		{KindCircuitOpen, 503, true},
		{KindInternal, 500, false},
	}
	for _, c := range cases {
		err := NewError(c.kind, "x")
		if err.HTTPStatus != c.status {
			t.Fatalf("%s: expected status %d, got %d", c.kind, c.status, err.HTTPStatus)
		}
		if err.Retryable != c.retryable {
			t.Fatalf("%s: expected retryable=%v, got %v", c.kind, c.retryable, err.Retryable)
		}
	}
}
