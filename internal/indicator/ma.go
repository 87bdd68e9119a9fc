package indicator

// SMA calculates Simple Moving Average.
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average, seeded with the SMA of the
// first period values.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// CrossUp reports whether series a crossed above series b on the latest value.
func CrossUp(a, b []float64) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	currA, prevA := a[len(a)-1], a[len(a)-2]
	currB, prevB := b[len(b)-1], b[len(b)-2]
	return prevA <= prevB && currA > currB
}

// CrossDown reports whether series a crossed below series b on the latest value.
func CrossDown(a, b []float64) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	currA, prevA := a[len(a)-1], a[len(a)-2]
	currB, prevB := b[len(b)-1], b[len(b)-2]
	return prevA >= prevB && currA < currB
}
