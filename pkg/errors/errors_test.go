package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "WithoutCause",
			err:  New(ErrCodeInvalidIdent, "empty product in %q", "fasten://$c/m/e"),
			want: `INVALID_IDENTIFIER: empty product in "fasten://$c/m/e"`,
		},
		{
			name: "WithCause",
			err:  Wrap(ErrCodeStoreTransient, stderrors.New("deadlock detected"), "insert edges"),
			want: "STORE_TRANSIENT: insert edges: deadlock detected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUnwrapsChain(t *testing.T) {
	inner := New(ErrCodeStoreTransient, "unique race")
	outer := fmt.Errorf("attempt 2: %w", inner)

	if !Is(outer, ErrCodeStoreTransient) {
		t.Error("Is should find the code through fmt.Errorf wrapping")
	}
	if Is(outer, ErrCodeStoreFatal) {
		t.Error("Is matched the wrong code")
	}
	if Is(stderrors.New("plain"), ErrCodeStoreTransient) {
		t.Error("Is matched a plain error")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(New(ErrCodeStoreTransient, "conflict")) {
		t.Error("transient store error not detected")
	}
	if IsTransient(New(ErrCodeStoreFatal, "schema missing")) {
		t.Error("fatal store error reported as transient")
	}
}

func TestIsFormat(t *testing.T) {
	if !IsFormat(New(ErrCodeInvalidDocument, "missing cha.internal")) {
		t.Error("document error not detected as format error")
	}
	if !IsFormat(New(ErrCodeInvalidIdent, "empty forge")) {
		t.Error("identifier error not detected as format error")
	}
	if IsFormat(New(ErrCodeStoreTransient, "conflict")) {
		t.Error("store error reported as format error")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeQueue, "consume")); got != ErrCodeQueue {
		t.Errorf("GetCode = %q, want %q", got, ErrCodeQueue)
	}
	if got := GetCode(stderrors.New("plain")); got != "" {
		t.Errorf("GetCode on plain error = %q, want empty", got)
	}
}
