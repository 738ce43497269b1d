package predict

import "strings"

const (
	// CategoryUrgent labels descriptions that mention a deadline.
	CategoryUrgent = "Urgent"
	// CategoryNormal labels everything else.
	CategoryNormal = "Normal"
)

// Categorize is the keyword fallback used when no model artifact is loaded.
func Categorize(description string) string {
	if strings.Contains(strings.ToLower(description), "deadline") {
		return CategoryUrgent
	}
	return CategoryNormal
}
