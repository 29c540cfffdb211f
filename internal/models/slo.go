package models

// Grade bands for an SLO report.
const (
	GradeExcellent        = "EXCELLENT"
	GradeGood             = "GOOD"
	GradeNeedsImprovement = "NEEDS IMPROVEMENT"
	GradeCritical         = "CRITICAL ISSUES"
)

// SLOCheck is one target compared against a measured value.
type SLOCheck struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Target   string  `json:"target"`
	Actual   float64 `json:"actual"`
	Unit     string  `json:"unit"`
	Passed   bool    `json:"passed"`
}

// SLOReport grades a run against its service-level targets.
type SLOReport struct {
	Checks     []SLOCheck          `json:"checks"`
	Passed     int                 `json:"passed"`
	Total      int                 `json:"total"`
	PassRate   float64             `json:"pass_rate_percent"`
	Grade      string              `json:"grade"`
	TopCourses []CourseUtilization `json:"top_courses"`
}
