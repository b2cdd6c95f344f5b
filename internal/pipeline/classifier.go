package pipeline

import (
	"sort"

	"github.com/driftline-systems/driftline/internal/models"
)

// TierThreshold maps a minimum score to a tier label.
type TierThreshold struct {
	Tier     string
	MinScore float64
}

// Classifier computes a deterministic classification from enrichment signal
// flags: a weighted sum over the flags present and truthy, mapped onto tier
// thresholds. Weights and thresholds are fixed at startup.
type Classifier struct {
	weights     map[string]float64
	thresholds  []TierThreshold // sorted by MinScore descending
	defaultTier string
	totalWeight float64
}

// NewClassifier builds a classifier from configured weights and thresholds.
func NewClassifier(weights map[string]float64, thresholds []TierThreshold, defaultTier string) *Classifier {
	sorted := make([]TierThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore > sorted[j].MinScore })

	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}

	return &Classifier{
		weights:     weights,
		thresholds:  sorted,
		defaultTier: defaultTier,
		totalWeight: total,
	}
}

// truthy interprets an enrichment value as a signal flag. JSON decoding
// yields bools and float64s; anything else counts only if non-empty.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val > 0
	case int:
		return val > 0
	case string:
		return val != ""
	case nil:
		return false
	default:
		return true
	}
}

// Classify scores the enrichment data. The same input always produces the
// same output.
func (c *Classifier) Classify(enrichment map[string]interface{}) models.Classification {
	var score float64
	for flag, weight := range c.weights {
		if v, ok := enrichment[flag]; ok && truthy(v) {
			score += weight
		}
	}

	tier := c.defaultTier
	for _, t := range c.thresholds {
		if score >= t.MinScore {
			tier = t.Tier
			break
		}
	}

	confidence := 0.0
	if c.totalWeight > 0 {
		confidence = score / c.totalWeight
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return models.Classification{Tier: tier, Confidence: confidence}
}
