package kvengine

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	e1 := ErrNotFound("a")
	e2 := ErrNotFound("b")
	if !errors.Is(e1, &Error{Kind: KindNotFound}) {
		t.Fatalf("errors.Is should match on Kind alone")
	}
	if e1.Error() == e2.Error() {
		t.Fatalf("different keys should produce different messages")
	}
}

func TestErrConflictCarriesDetails(t *testing.T) {
	err := ErrConflict("k", "v1", "v2")
	if err.Details["expected"] != "v1" || err.Details["actual"] != "v2" {
		t.Fatalf("ErrConflict details = %v, want expected=v1 actual=v2", err.Details)
	}
}

func TestKindOfNonEngineErrorIsInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("KindOf(plain error) should default to KindInternal")
	}
}

func TestKindOfUnwrapsWrappedEngineError(t *testing.T) {
	wrapped := errors.Join(ErrBadRequest("bad"))
	if KindOf(wrapped) != KindBadRequest {
		t.Fatalf("KindOf should unwrap a joined/wrapped *Error")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *Error
	if e.Error() != "<nil>" {
		t.Fatalf("(*Error)(nil).Error() = %q, want <nil>", e.Error())
	}
}
