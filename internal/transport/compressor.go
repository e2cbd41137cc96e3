package transport

import "math"

// Master bus dynamics.
const (
	compThresholdDB = -24.0
	compRatio       = 12.0
	compAttack      = 0.003
	compRelease     = 0.25
)

// compressor is a feed-forward peak compressor with a hard ceiling at full
// scale.
type compressor struct {
	threshold float64
	ratio     float64
	attack    float64
	release   float64
	env       float64
}

func newCompressor(rate int) *compressor {
	return &compressor{
		threshold: compThresholdDB,
		ratio:     compRatio,
		attack:    math.Exp(-1 / (compAttack * float64(rate))),
		release:   math.Exp(-1 / (compRelease * float64(rate))),
	}
}

func (c *compressor) process(x float64) float64 {
	level := math.Abs(x)
	coef := c.release
	if level > c.env {
		coef = c.attack
	}
	c.env = coef*c.env + (1-coef)*level

	if c.env > 0 {
		db := 20 * math.Log10(c.env)
		if db > c.threshold {
			reduction := (c.threshold + (db-c.threshold)/c.ratio) - db
			x *= math.Pow(10, reduction/20)
		}
	}
	return min(max(x, -1), 1)
}
