package adapter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/persona-transformer/internal/types"
)

// FloatTolerance is the relative tolerance for non-integer facts
const FloatTolerance = 0.001

// alteredWithin is how close a number must be to count as an altered
// rendering of a fact instead of an unrelated number.
const alteredWithin = 0.25

// Thousands separators are optional; currency symbols and magnitude
// suffixes around the match are simply not part of it.
var numberPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// Fact is one checklist entry derived from a data point
type Fact struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
	Integer bool    `json:"integer"`
}

func (f Fact) String() string {
	s := fmt.Sprintf("%s: %s", f.Label, formatNumber(f.Value))
	if f.Unit != "" {
		s += " " + f.Unit
	}
	return s
}

// Drift is a fact missing from or altered in a candidate
type Drift struct {
	Fact   Fact     `json:"fact"`
	Found  *float64 `json:"found,omitempty"`
	Reason string   `json:"reason"`
}

// Drift reasons
const (
	DriftMissing = "missing"
	DriftAltered = "altered"
)

func (d Drift) String() string {
	if d.Found != nil {
		return fmt.Sprintf("%s expected %s, found %s", d.Fact.Label, formatNumber(d.Fact.Value), formatNumber(*d.Found))
	}
	return fmt.Sprintf("%s (%s) %s", d.Fact.Label, formatNumber(d.Fact.Value), d.Reason)
}

// Checklist builds the facts a candidate must preserve
func Checklist(content *types.SourceContent) []Fact {
	facts := make([]Fact, 0, len(content.Metadata.DataPoints))
	for _, dp := range content.Metadata.DataPoints {
		facts = append(facts, Fact{
			Label:   dp.Label,
			Value:   dp.Value,
			Unit:    dp.Unit,
			Integer: dp.IsInteger(),
		})
	}
	return facts
}

// ExtractNumbers returns every number written in text. Signs are dropped
// since direction is usually carried by words ("fell 5%").
func ExtractNumbers(text string) []float64 {
	matches := numberPattern.FindAllString(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Matches reports whether n renders the fact's value
func (f Fact) Matches(n float64) bool {
	want := math.Abs(f.Value)
	if f.Integer {
		return n == want
	}
	if want == 0 {
		return n == 0
	}
	return math.Abs(n-want) <= FloatTolerance*want
}

// VerifyFacts checks every fact against the numbers in text
func VerifyFacts(text string, facts []Fact) []Drift {
	if len(facts) == 0 {
		return nil
	}
	numbers := ExtractNumbers(text)

	var drift []Drift
	for _, f := range facts {
		if matchesAny(f, numbers) {
			continue
		}
		d := Drift{Fact: f, Reason: DriftMissing}
		if near, ok := nearest(f, numbers); ok {
			d.Found = &near
			d.Reason = DriftAltered
		}
		drift = append(drift, d)
	}
	return drift
}

func matchesAny(f Fact, numbers []float64) bool {
	for _, n := range numbers {
		if f.Matches(n) {
			return true
		}
	}
	return false
}

func nearest(f Fact, numbers []float64) (float64, bool) {
	want := math.Abs(f.Value)
	if want == 0 {
		return 0, false
	}
	best, bestDist := 0.0, math.Inf(1)
	for _, n := range numbers {
		dist := math.Abs(n-want) / want
		if dist < bestDist {
			best, bestDist = n, dist
		}
	}
	return best, bestDist <= alteredWithin
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
