package rule

import "math"

// The rolling helpers below return a values slice aligned with the input and
// the index of the first trustworthy value. Entries before firstValid hold
// zero and must not be read.

// rollingMean computes a simple moving average over the given period.
func rollingMean(vals []float64, period int) (out []float64, firstValid int) {
	out = make([]float64, len(vals))
	firstValid = period - 1

	if len(vals) < period {
		return out, len(vals)
	}

	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= period {
			sum -= vals[i-period]
		}

		if i >= firstValid {
			out[i] = sum / float64(period)
		}
	}

	return out, firstValid
}

// rollingStd computes a rolling population standard deviation.
func rollingStd(vals []float64, period int) (out []float64, firstValid int) {
	out = make([]float64, len(vals))
	firstValid = period - 1

	if len(vals) < period {
		return out, len(vals)
	}

	means, _ := rollingMean(vals, period)

	for i := firstValid; i < len(vals); i++ {
		sumSq := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := vals[j] - means[i]
			sumSq += d * d
		}

		out[i] = math.Sqrt(sumSq / float64(period))
	}

	return out, firstValid
}

// exponentialMean computes an EMA seeded with the simple average of the first
// period values.
func exponentialMean(vals []float64, period int) (out []float64, firstValid int) {
	out = make([]float64, len(vals))
	firstValid = period - 1

	if len(vals) < period {
		return out, len(vals)
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += vals[i]
	}

	out[firstValid] = seed / float64(period)
	alpha := 2.0 / (float64(period) + 1.0)

	for i := firstValid + 1; i < len(vals); i++ {
		out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
	}

	return out, firstValid
}

// relativeStrength computes Wilder's RSI.
func relativeStrength(closes []float64, period int) (out []float64, firstValid int) {
	out = make([]float64, len(closes))
	firstValid = period

	if len(closes) < period+1 {
		return out, len(closes)
	}

	avgGain := 0.0
	avgLoss := 0.0

	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[firstValid] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain := 0.0
		loss := 0.0

		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return out, firstValid
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}

		return 100
	}

	rs := avgGain / avgLoss

	return 100 - 100/(1+rs)
}

// rateOfChange computes (v[i] / v[i-period]) - 1.
func rateOfChange(vals []float64, period int) (out []float64, firstValid int) {
	out = make([]float64, len(vals))
	firstValid = period

	if len(vals) < period+1 {
		return out, len(vals)
	}

	for i := period; i < len(vals); i++ {
		if vals[i-period] == 0 {
			out[i] = 0

			continue
		}

		out[i] = vals[i]/vals[i-period] - 1
	}

	return out, firstValid
}

// crossAbove marks the indexes where fast crosses above slow. The first valid
// index counts as a cross when fast already exceeds slow there, since no
// earlier comparison exists.
func crossAbove(fast, slow []float64, firstValid int) []bool {
	out := make([]bool, len(fast))

	for i := firstValid; i < len(fast); i++ {
		if fast[i] <= slow[i] {
			continue
		}

		if i == firstValid || fast[i-1] <= slow[i-1] {
			out[i] = true
		}
	}

	return out
}

// aboveLevel marks the indexes where vals strictly exceeds level.
func aboveLevel(vals []float64, level float64, firstValid int) []bool {
	out := make([]bool, len(vals))

	for i := firstValid; i < len(vals); i++ {
		out[i] = vals[i] > level
	}

	return out
}
