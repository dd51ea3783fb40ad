package interconnect

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("open /data/prices.csv: no such file")
	err := missingDataError("FR_ic1", "price file /data/prices.csv", cause)

	msg := err.Error()
	for _, frag := range []string{`interconnection "FR_ic1"`, "missing price data", "price file", "no such file"} {
		if !strings.Contains(msg, frag) {
			t.Errorf("error %q does not contain %q", msg, frag)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want func(error) bool
	}{
		{configError("a", "bad entry"), IsConfig},
		{resolutionError("b", "no candidates"), IsResolution},
		{missingDataError("c", "absent", nil), IsMissingData},
	}

	for i, tc := range tests {
		if !tc.want(tc.err) {
			t.Errorf("case %d: kind predicate rejected %v", i, tc.err)
		}
	}

	if IsConfig(resolutionError("x", "y")) {
		t.Error("kinds must not overlap")
	}
	if IsConfig(nil) || IsResolution(nil) || IsMissingData(nil) {
		t.Error("nil is not an error of any kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("row 7: %w", errors.New("bad float"))
	err := missingDataError("FR_ic1", "price file", cause)

	if !errors.Is(err, ErrMissingData) {
		t.Error("errors.Is must match the kind")
	}
	if errors.Unwrap(errors.Unwrap(err)) == nil {
		t.Error("cause chain must stay unwrappable")
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("errors.As must find the structured error")
	}
	if e.Interconnection != "FR_ic1" {
		t.Errorf("Interconnection = %q, want FR_ic1", e.Interconnection)
	}
}

func TestErrorWrappedFurther(t *testing.T) {
	err := fmt.Errorf("preparing network: %w", configError("FR_ic1", "bad entry"))
	if !IsConfig(err) {
		t.Error("kind must survive an outer wrap")
	}
}
