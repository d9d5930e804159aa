package validator

import (
	"testing"

	"leadflow_backend/platform/apperr"
)

type topUpInput struct {
	Amount      int64  `validate:"required,gt=0"`
	Temperature string `validate:"temperature"`
}

func TestCheckReturnsValidationDetails(t *testing.T) {
	v := New()

	err := v.Check(topUpInput{Amount: 0, Temperature: "LUKEWARM"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := err.(*apperr.Error).Details.([]FieldError)
	if !ok || len(details) != 2 {
		t.Fatalf("expected two field errors, got %#v", err.(*apperr.Error).Details)
	}
}

func TestCheckAcceptsKnownTemperatures(t *testing.T) {
	v := New()
	for _, temp := range []string{"", "hot", "WARM", "COLD"} {
		if err := v.Check(topUpInput{Amount: 5, Temperature: temp}); err != nil {
			t.Fatalf("temperature %q should pass: %v", temp, err)
		}
	}
}
