package eval

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chadiek/interview-coach/internal/domain"
)

// coerceScore accepts the score shapes models actually emit: a JSON number
// (integer or float) or a numeric string. Anything else collapses to the safe
// floor of 0. Values are clamped to the score range and rounded to one
// decimal place.
func coerceScore(raw json.RawMessage) float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return domain.ScoreMin
	}
	s = strings.Trim(s, `"`)
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return domain.ScoreMin
	}
	min := decimal.NewFromFloat(domain.ScoreMin)
	max := decimal.NewFromFloat(domain.ScoreMax)
	if d.LessThan(min) {
		d = min
	}
	if d.GreaterThan(max) {
		d = max
	}
	f, _ := d.Round(1).Float64()
	return f
}
