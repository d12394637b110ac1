package repository

import "testing"

func TestStepsPerWindow(t *testing.T) {
	n, err := StepsPerWindow(TF1m, TF1s)
	if err != nil || n != 60 {
		t.Fatalf("1m/1s: got %d, %v", n, err)
	}
	n, err = StepsPerWindow(TF5m, TF1m)
	if err != nil || n != 5 {
		t.Fatalf("5m/1m: got %d, %v", n, err)
	}
	if _, err := StepsPerWindow(TF1s, TF1m); err == nil {
		t.Fatalf("expected error for fine > coarse")
	}
	if _, err := StepsPerWindow("2h", TF1s); err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
}

func TestNormalizeTimeframe(t *testing.T) {
	if NormalizeTimeframe("") != TF1m || NormalizeTimeframe("bogus") != TF1m || NormalizeTimeframe("1s") != TF1s {
		t.Fatalf("unexpected normalization")
	}
}
