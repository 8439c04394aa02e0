package cli

import (
	"fmt"
	"strings"
)

// parseRate parses "<n>hz" into events per second.
func parseRate(rate string) (float64, error) {
	var hz float64
	_, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(rate)), "%fhz", &hz)
	if err != nil {
		return 0, err
	}
	if hz <= 0 {
		return 0, fmt.Errorf("rate must be positive")
	}
	return hz, nil
}
