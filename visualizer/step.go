package visualizer

import (
	"strings"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

// Step はウィザードの段階
type Step int

const (
	// DataLoading waits for a dataset.
	DataLoading Step = iota
	// Inference has data; variables can be chosen and the model fitted.
	Inference
	// Output has a fitted model for the current data.
	Output
)

var stepNames = [...]string{
	DataLoading: log.PhaseDataLoading,
	Inference:   log.PhaseInference,
	Output:      log.PhaseOutput,
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range stepNames {
		if n == name {
			*s = Step(i)
			return nil
		}
	}
	return errors.NewValidationError("step", "unknown wizard step", string(text))
}
