package indicator

import (
	"testing"
)

func TestRSI_AllGains(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	rsi := RSI(prices, 3)

	if len(rsi) != 5 {
		t.Fatalf("expected 5 values, got %d", len(rsi))
	}
	for i, v := range rsi {
		if v != 100 {
			t.Errorf("rsi[%d] = %f, want 100 for monotone gains", i, v)
		}
	}
}

func TestRSI_AllLosses(t *testing.T) {
	prices := []float64{8, 7, 6, 5, 4, 3}
	rsi := RSI(prices, 3)

	for i, v := range rsi {
		if v != 0 {
			t.Errorf("rsi[%d] = %f, want 0 for monotone losses", i, v)
		}
	}
}

func TestRSI_Flat(t *testing.T) {
	prices := []float64{5, 5, 5, 5, 5, 5}
	rsi := RSI(prices, 3)

	for i, v := range rsi {
		if v != 50 {
			t.Errorf("rsi[%d] = %f, want 50 for flat prices", i, v)
		}
	}
}

func TestRSI_Bounds(t *testing.T) {
	prices := []float64{44, 47, 45, 50, 48, 52, 49, 53, 51, 55, 52, 56, 54, 58, 55}
	rsi := RSI(prices, 14)

	if len(rsi) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rsi))
	}
	if rsi[0] <= 0 || rsi[0] >= 100 {
		t.Errorf("rsi = %f, want value strictly inside (0, 100)", rsi[0])
	}
}

func TestRSI_NotEnoughData(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 5); len(got) != 0 {
		t.Errorf("expected empty slice, got %d values", len(got))
	}
}
