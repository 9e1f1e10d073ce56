package analyzer

import "fmt"

// NewDetector creates a detector based on the specified variant
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "exact", "":
		return NewDiffDetector(), nil
	case "tolerant":
		return &DiffDetector{Threshold: 8}, nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}
