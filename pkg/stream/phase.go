package stream

import "fmt"

// Phase is coarse pipeline progress. It only moves forward.
type Phase string

const (
	PhaseStarting          Phase = "starting"
	PhaseStreaming         Phase = "streaming"
	PhaseProcessing        Phase = "processing"
	PhaseGeneratingContent Phase = "generating-content"
)

var phaseRank = map[Phase]int{
	PhaseStarting:          1,
	PhaseStreaming:         2,
	PhaseProcessing:        3,
	PhaseGeneratingContent: 4,
}

func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// Before reports whether p comes strictly before other.
func (p Phase) Before(other Phase) bool {
	return phaseRank[p] < phaseRank[other]
}

func (p Phase) String() string {
	return string(p)
}

func parsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}
