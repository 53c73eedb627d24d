package model

// Recognition reasons and per-user training outcomes. Recognition failures
// are always structured results, never faults, so the caller can render
// distinct messages.
const (
	ReasonNoFace        = "no-face-detected"
	ReasonNoModels      = "no-models"
	ReasonNoPrediction  = "no-prediction"
	ReasonLowConfidence = "low-confidence"

	ErrorInvalidImage = "invalid-image"

	OutcomeNoImages      = "no-images"
	OutcomeNoValidImages = "no-valid-images"

	// UnknownUser is returned when a label cannot be resolved through the
	// cache dictionary. Correct bookkeeping never produces it.
	UnknownUser = "unknown"
)

// Recognition is the outcome of a recognition query.
type Recognition struct {
	Found      bool    `json:"found"`
	User       string  `json:"user,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}
