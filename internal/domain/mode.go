package domain

import "fmt"

// SimilarityMode selects the weighting profile used by the scorer.
type SimilarityMode string

const (
	// ModeDefault answers "who plays like this person" (skill + habits).
	ModeDefault SimilarityMode = "default"
	// ModeAliasDetection looks for evidence that two names are the same
	// human: inverted temporal factor plus ping/map fingerprint signals.
	ModeAliasDetection SimilarityMode = "alias"
)

// ParseMode validates a mode string from the API or CLI.
func ParseMode(s string) (SimilarityMode, error) {
	switch s {
	case "", string(ModeDefault):
		return ModeDefault, nil
	case string(ModeAliasDetection):
		return ModeAliasDetection, nil
	default:
		return "", fmt.Errorf("unknown similarity mode: %q", s)
	}
}

// Weights is the per-mode weight table for the similarity scorer. Each field
// multiplies an independently normalized [0,1] sub-score; the fields must sum
// to at most 1 within a mode. KillRateBonus is a fraction of the KDR weight,
// not an independent term.
type Weights struct {
	Playtime       float64
	KDR            float64
	KillRateBonus  float64 // fraction of KDR weight, applied when both kill rates > 0
	ServerAffinity float64
	HourOverlap    float64
	NonOverlap     float64
	Ping           float64
	MapDominance   float64
}

// Sum returns the total weight excluding the kill-rate bonus.
func (w Weights) Sum() float64 {
	return w.Playtime + w.KDR + w.ServerAffinity + w.HourOverlap + w.NonOverlap + w.Ping + w.MapDominance
}

var defaultWeights = Weights{
	Playtime:       0.15,
	KDR:            0.40,
	KillRateBonus:  0.20,
	ServerAffinity: 0.25,
	HourOverlap:    0.20,
}

var aliasWeights = Weights{
	KDR:            0.30,
	KillRateBonus:  0.20,
	ServerAffinity: 0.25,
	NonOverlap:     0.20,
	Ping:           0.20,
	MapDominance:   0.05,
}

// WeightsFor returns the immutable weight table for a mode.
func WeightsFor(mode SimilarityMode) Weights {
	if mode == ModeAliasDetection {
		return aliasWeights
	}
	return defaultWeights
}
