// Package series normalizes raw fan-chart percentiles into the stacked
// band components the board renders, and applies deviation-mode shifts.
package series

import (
	"PolEn/internal/domain/repository"
	"PolEn/pkg/logger"
)

// Band is a fan chart step decomposed into stacked components. The renderer
// rebuilds the percentile levels cumulatively:
//
//	p5  = Base
//	p25 = Base + LowerOuter
//	p75 = Base + LowerOuter + InterQuartile
//	p95 = Base + LowerOuter + InterQuartile + UpperOuter
type Band struct {
	Base          float64
	LowerOuter    float64
	InterQuartile float64
	UpperOuter    float64
}

// Normalizer decomposes bands and reports malformed inputs.
type Normalizer struct {
	log     *logger.Logger
	metrics repository.Metrics
}

func NewNormalizer(log *logger.Logger, metrics repository.Metrics) *Normalizer {
	return &Normalizer{log: log, metrics: metrics}
}

// Decompose turns raw percentile levels into stacked components. Percentile
// ordering violations produce negative widths; those are clamped to zero and
// counted, because a negative stacked segment renders as a visual fold.
func (n *Normalizer) Decompose(p5, p25, p75, p95 float64) Band {
	b := Band{
		Base:          p5,
		LowerOuter:    p25 - p5,
		InterQuartile: p75 - p25,
		UpperOuter:    p95 - p75,
	}
	clamped := false
	if b.LowerOuter < 0 {
		b.LowerOuter = 0
		clamped = true
	}
	if b.InterQuartile < 0 {
		b.InterQuartile = 0
		clamped = true
	}
	if b.UpperOuter < 0 {
		b.UpperOuter = 0
		clamped = true
	}
	if clamped {
		if n.metrics != nil {
			n.metrics.RecordBandClamp()
		}
		if n.log != nil {
			n.log.Warn("percentile ordering violated, band segment clamped",
				logger.Float64("p5", p5),
				logger.Float64("p25", p25),
				logger.Float64("p75", p75),
				logger.Float64("p95", p95))
		}
	}
	return b
}

// ToDeviation shifts an absolute value to its offset from the reference.
func ToDeviation(value, reference float64) float64 {
	return value - reference
}

// Shift applies the deviation transform to every component level of a band.
// Only Base moves: the stacked widths are differences of same-shifted
// percentiles and are invariant under a uniform shift.
func (b Band) Shift(reference float64) Band {
	b.Base = ToDeviation(b.Base, reference)
	return b
}

// Levels reconstructs the percentile levels from the stacked components.
func (b Band) Levels() (p5, p25, p75, p95 float64) {
	p5 = b.Base
	p25 = p5 + b.LowerOuter
	p75 = p25 + b.InterQuartile
	p95 = p75 + b.UpperOuter
	return
}
