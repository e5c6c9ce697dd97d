package cfg

import "fmt"

// Validate rejects settings the pipeline cannot run with. Thresholds
// are checked for ordering so a misconfigured tier table fails at
// startup instead of mislabeling confidences at request time.
func (s Settings) Validate() error {
	if s.Trees < 1 {
		return fmt.Errorf("training.trees must be >= 1, got %d", s.Trees)
	}
	if s.MaxDepth < 1 {
		return fmt.Errorf("training.maxDepth must be >= 1, got %d", s.MaxDepth)
	}
	if s.MinLeaf < 1 {
		return fmt.Errorf("training.minLeaf must be >= 1, got %d", s.MinLeaf)
	}
	if s.TestFraction <= 0 || s.TestFraction >= 1 {
		return fmt.Errorf("training.testFraction must be in (0, 1), got %g", s.TestFraction)
	}
	if s.HighConfidence <= 0 || s.HighConfidence > 1 {
		return fmt.Errorf("inference.highConfidence must be in (0, 1], got %g", s.HighConfidence)
	}
	if s.MediumConfidence <= 0 || s.MediumConfidence > 1 {
		return fmt.Errorf("inference.mediumConfidence must be in (0, 1], got %g", s.MediumConfidence)
	}
	if s.MediumConfidence > s.HighConfidence {
		return fmt.Errorf("inference.mediumConfidence (%g) must not exceed highConfidence (%g)",
			s.MediumConfidence, s.HighConfidence)
	}
	if s.ServerPort < 0 || s.ServerPort > 65535 {
		return fmt.Errorf("inference.serverPort out of range: %d", s.ServerPort)
	}
	return nil
}
