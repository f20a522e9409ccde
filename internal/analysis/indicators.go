package analysis

import "signal-enginev1/internal/model"

// Indicator series are computed over the full price slice and aligned with
// it. When a series cannot be computed (window shorter than the period) a
// safe fallback array is returned instead of failing the whole analysis:
// RSI falls back to 50 (neutral), EMA to the last price, MACD to zeros.

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// RSI computes Wilder-smoothed RSI over prices. Indices before the first
// full period hold the neutral value 50.
func RSI(prices []float64, period int) []float64 {
	n := len(prices)
	if period <= 0 || n < period+1 {
		return filled(n, 50)
	}

	out := filled(n, 50)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < n; i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values. If the window is shorter than the period the series
// falls back to the last price.
func EMA(prices []float64, period int) []float64 {
	n := len(prices)
	if period <= 0 || n < period {
		if n == 0 {
			return nil
		}
		return filled(n, prices[n-1])
	}

	out := make([]float64, n)
	mult := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
		out[i] = sum / float64(i+1) // warmup: running mean
	}
	out[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		out[i] = prices[i]*mult + out[i-1]*(1-mult)
	}
	return out
}

// MACD computes MACD(12,26,9): the fast/slow EMA difference, an EMA of that
// difference as the signal line, and their gap as the histogram. Windows
// shorter than the slow period fall back to all-zero values.
func MACD(prices []float64, fast, slow, signal int) []model.MACDValue {
	n := len(prices)
	out := make([]model.MACDValue, n)
	if n < slow {
		return out
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	line := make([]float64, n)
	for i := range line {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMA(line, signal)

	for i := range out {
		out[i] = model.MACDValue{
			MACD:      line[i],
			Signal:    signalLine[i],
			Histogram: line[i] - signalLine[i],
		}
	}
	return out
}
