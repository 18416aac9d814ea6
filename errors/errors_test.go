package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseDispatch,
				Kind:   KindTypeMismatch,
				Token:  0x06000001,
				Offset: 12,
				Detail: "want Int32, got Float",
			},
			contains: []string{"[dispatch]", "type_mismatch", "token=0x06000001", "offset=0xc", "want Int32, got Float"},
		},
		{
			name: "minimal error",
			err:  &Error{Phase: PhaseDecode, Kind: KindBadImage, Offset: -1},
			contains: []string{"[decode]", "bad_image"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindAssemblyNotFound,
				Offset: -1,
				Detail: "assembly \"B\"",
				Cause:  errors.New("loader declined"),
			},
			contains: []string{"[load]", "assembly_not_found", "assembly \"B\"", "loader declined"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, want substring %q", got, want)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New(PhaseLoad, KindAssemblyNotFound).Cause(cause).Build()

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	a := New(PhaseDispatch, KindStackOverflow).Build()
	b := New(PhaseDispatch, KindStackOverflow).Detail("different detail").Build()
	c := New(PhaseDispatch, KindStackUnderflow).Build()

	if !errors.Is(a, b) {
		t.Error("errors with same phase/kind should match via Is")
	}
	if errors.Is(a, c) {
		t.Error("errors with different kind should not match via Is")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseMetadata, KindMissingRow).
		Token(0x02000005).
		Detail("row %d out of range", 5).
		Build()

	if err.Phase != PhaseMetadata || err.Kind != KindMissingRow {
		t.Fatalf("unexpected phase/kind: %+v", err)
	}
	if err.Token != 0x02000005 {
		t.Errorf("Token = 0x%08x, want 0x02000005", err.Token)
	}
	if err.Detail != "row 5 out of range" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	if got := BadImage("bad DOS signature", 0); got.Kind != KindBadImage {
		t.Errorf("BadImage kind = %v", got.Kind)
	}
	if got := MissingRow(PhaseMetadata, 0x06000042); got.Token != 0x06000042 {
		t.Errorf("MissingRow token = 0x%08x", got.Token)
	}
	if got := Unimplemented(0xFF, 10); got.Kind != KindUnimplemented {
		t.Errorf("Unimplemented kind = %v", got.Kind)
	}
	if got := BadCall(0x0A000001); got.Kind != KindBadCall {
		t.Errorf("BadCall kind = %v", got.Kind)
	}
	if got := FieldNotFound(0x04000003); got.Kind != KindFieldNotFound || got.Token != 0x04000003 {
		t.Errorf("FieldNotFound = %+v", got)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("file not found")
	got := Wrap(PhaseLoad, KindAssemblyNotFound, cause, "resolving assembly \"B\" from lib/B.dll")

	if got.Phase != PhaseLoad || got.Kind != KindAssemblyNotFound {
		t.Fatalf("unexpected phase/kind: %+v", got)
	}
	if got.Cause != cause {
		t.Errorf("Cause = %v, want %v", got.Cause, cause)
	}
	if !strings.Contains(got.Error(), "resolving assembly") {
		t.Errorf("Error() = %q, want it to contain the detail", got.Error())
	}
	if !errors.Is(got, cause) {
		t.Error("errors.Is should find the wrapped cause through Wrap")
	}
}
