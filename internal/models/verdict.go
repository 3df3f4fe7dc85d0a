package models

type Signal string

const (
	SignalLong    Signal = "LONG"
	SignalShort   Signal = "SHORT"
	SignalNeutral Signal = "NEUTRAL"
)

// Verdict is the structured answer returned by the chart model.
type Verdict struct {
	Signal        Signal `json:"signal" validate:"required,oneof=LONG SHORT NEUTRAL"`
	ExpiryMinutes int    `json:"expiry_minutes" validate:"min=1,max=5"`
	Reasoning     string `json:"reasoning" validate:"min=3,max=500"`
}
