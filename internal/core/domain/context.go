package domain

import "time"

// Caps for the derived historical context. The context is rebuilt from storage
// on every run and never persisted.
const (
	MaxContextSamples  = 100
	MaxContextPatterns = 20
)

// ErrorPattern is one recurring error group seen in the recent window.
type ErrorPattern struct {
	Pattern        string    `json:"pattern"`
	Priority       Priority  `json:"priority"`
	Frequency      int       `json:"frequency"`
	LastOccurrence time.Time `json:"lastOccurrence"`
}

// HistoricalContext summarizes recently analyzed events for the classifier.
// PreviousAnalysisResults is most-recent-first and capped at MaxContextSamples;
// ErrorPatterns is sorted by frequency descending and capped at
// MaxContextPatterns.
type HistoricalContext struct {
	PreviousAnalysisResults []ErrorEvent   `json:"previousAnalysisResults"`
	ErrorPatterns           []ErrorPattern `json:"errorPatterns"`
	AnalysisDate            time.Time      `json:"analysisDate"`
}
