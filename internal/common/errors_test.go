package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCategory(t *testing.T) {
	incomplete := &IncompleteVectorError{Absent: []FieldAbsentError{{Field: "MCV (fL)", Reason: "not_found"}}}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"incomplete", incomplete, CategoryIncompleteVector},
		{"wrapped incomplete", fmt.Errorf("analyze: %w", incomplete), CategoryIncompleteVector},
		{"extraction", ExtractionUnavailable("a.pdf", errors.New("pdftotext: exit 1")), CategoryExtractionUnavailable},
		{"invalid input", fmt.Errorf("%w: open x", ErrInvalidInput), CategoryInvalidInput},
		{"validation", NewValidator().Field("id", "", Required).Error(), CategoryInvalidInput},
		{"model", fmt.Errorf("%w: read m.json", ErrModel), CategoryModelUnavailable},
		{"other", context.DeadlineExceeded, CategoryInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Category(tc.err); got != tc.want {
				t.Errorf("Category = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIncompleteVectorError(t *testing.T) {
	err := error(&IncompleteVectorError{Absent: []FieldAbsentError{
		{Field: "Platelet Count (cells/µL)", Reason: "ambiguous"},
		{Field: "MCV (fL)", Reason: "not_found"},
	}})

	if !errors.Is(err, ErrIncompleteVector) || !errors.Is(err, ErrFieldAbsent) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	var fa FieldAbsentError
	if !errors.As(err, &fa) || fa.Field != "Platelet Count (cells/µL)" {
		t.Errorf("errors.As = %+v", fa)
	}
	var iv *IncompleteVectorError
	if !errors.As(err, &iv) {
		t.Fatal("errors.As IncompleteVectorError failed")
	}
	if diff := cmp.Diff([]string{"Platelet Count (cells/µL)", "MCV (fL)"}, iv.Missing()); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	want := "incomplete feature vector: missing values for: [Platelet Count (cells/µL), MCV (fL)]"
	if err.Error() != want {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestExtractionUnavailable(t *testing.T) {
	bare := ExtractionUnavailable("scan.png", nil)
	if !errors.Is(bare, ErrExtractionUnavailable) {
		t.Errorf("%v does not match ErrExtractionUnavailable", bare)
	}
	cause := errors.New("tesseract: not installed")
	wrapped := ExtractionUnavailable("scan.png", cause)
	if !errors.Is(wrapped, ErrExtractionUnavailable) || !errors.Is(wrapped, cause) {
		t.Errorf("%v lost its cause or sentinel", wrapped)
	}
	twice := ExtractionUnavailable("scan.png", wrapped)
	if !errors.Is(twice, cause) {
		t.Errorf("%v lost its cause", twice)
	}
}

func TestGRPCHelpers(t *testing.T) {
	if status.Code(InvalidArgumentErrorf("bad %s", "id")) != codes.InvalidArgument {
		t.Error("InvalidArgumentErrorf code")
	}
	if status.Code(UnavailableError("x")) != codes.Unavailable || status.Code(NotFoundError("x")) != codes.NotFound {
		t.Error("status codes")
	}
	v := NewValidator().Field("id", "nope", Required, UUID)
	if err := ValidateAndReturnError(v); status.Code(err) != codes.InvalidArgument {
		t.Errorf("ValidateAndReturnError = %v", err)
	}
	if err := ValidateAndReturnError(NewValidator().Field("id", "2b0f6a8e-3f4e-4c1a-9a53-0c9f1a2b3c4d", UUID)); err != nil {
		t.Errorf("valid UUID rejected: %v", err)
	}
}
