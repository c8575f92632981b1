package usecase

import "math"

type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendNone TrendDirection = "none"
)

// Momentum is the percent change from the first to the last price.
func Momentum(prices []float64) float64 {
	if len(prices) < 2 || prices[0] == 0 {
		return 0
	}
	first := prices[0]
	last := prices[len(prices)-1]
	return (last - first) / first * 100
}

// Volatility is the population standard deviation as a percent of the mean.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	mean := mean(prices)
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))
	return math.Sqrt(variance) / mean * 100
}

// SMA averages the last period prices, or all of them when fewer are available.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	return mean(tail(prices, period))
}

// TrendStrength is the net move over the last period prices divided by the
// sum of absolute step moves.
func TrendStrength(prices []float64, period int) float64 {
	if period < 2 || len(prices) < period {
		return 0
	}
	window := tail(prices, period)
	net := math.Abs(window[len(window)-1] - window[0])
	var noise float64
	for i := 1; i < len(window); i++ {
		noise += math.Abs(window[i] - window[i-1])
	}
	if noise == 0 {
		return 0
	}
	return net / noise
}

// ConsecutiveDirection checks the last count+1 prices for a strictly
// monotonic run.
func ConsecutiveDirection(prices []float64, count int) TrendDirection {
	if count < 1 || len(prices) < count+1 {
		return TrendNone
	}
	window := tail(prices, count+1)
	up, down := true, true
	for i := 1; i < len(window); i++ {
		if window[i] <= window[i-1] {
			up = false
		}
		if window[i] >= window[i-1] {
			down = false
		}
	}
	switch {
	case up:
		return TrendUp
	case down:
		return TrendDown
	default:
		return TrendNone
	}
}

func mean(prices []float64) float64 {
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}

// tail returns the last n elements, or the whole slice when n exceeds it.
func tail(prices []float64, n int) []float64 {
	if n <= 0 || n >= len(prices) {
		return prices
	}
	return prices[len(prices)-n:]
}
