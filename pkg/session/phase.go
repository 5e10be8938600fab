package session

// Phase is the submission state machine:
//
//	Idle -> Ready                                    (cache hit)
//	Idle -> Submitting -> AwaitingResult -> Ready|Errored
//
// Processing is true exactly while Submitting or AwaitingResult.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingResult
	PhaseReady
	PhaseErrored
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhaseSubmitting:     "submitting",
	PhaseAwaitingResult: "awaiting_result",
	PhaseReady:          "ready",
	PhaseErrored:        "errored",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

func (p Phase) Processing() bool {
	return p == PhaseSubmitting || p == PhaseAwaitingResult
}

var allowedTransitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseSubmitting, PhaseReady, PhaseErrored},
	PhaseSubmitting:     {PhaseSubmitting, PhaseAwaitingResult, PhaseReady, PhaseErrored},
	PhaseAwaitingResult: {PhaseSubmitting, PhaseReady, PhaseErrored},
	PhaseReady:          {PhaseIdle, PhaseSubmitting, PhaseReady, PhaseErrored},
	PhaseErrored:        {PhaseIdle, PhaseSubmitting, PhaseReady, PhaseErrored},
}

func (p Phase) CanTransition(to Phase) bool {
	for _, next := range allowedTransitions[p] {
		if next == to {
			return true
		}
	}
	return false
}
