package domain

// ExitAction is a graduated exit instruction.
type ExitAction string

const (
	ExitNone      ExitAction = "NONE"
	ExitPartial40 ExitAction = "PARTIAL_40"
	ExitPartial60 ExitAction = "PARTIAL_60"
	ExitFull      ExitAction = "FULL"
)

// Fraction returns the share of remaining quantity an action closes.
func (a ExitAction) Fraction() float64 {
	switch a {
	case ExitPartial40:
		return 0.40
	case ExitPartial60:
		return 0.60
	case ExitFull:
		return 1
	default:
		return 0
	}
}

// ExitSignal is the ExitPolicy verdict for one position.
type ExitSignal struct {
	Action     ExitAction `json:"exit_action"`
	Confidence float64    `json:"confidence"`
	Reasons    []string   `json:"reasons"`
}
