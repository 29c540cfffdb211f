package models

// Schedule is the weekly slot a course meets in.
type Schedule struct {
	Days string `json:"days"`
	Time string `json:"time"`
	Room string `json:"room,omitempty"`
}

// Conflicts reports whether both slots share the same day pattern and time range.
func (s Schedule) Conflicts(other Schedule) bool {
	return s.Days == other.Days && s.Time == other.Time
}

// Course is a registrable section with fixed capacity.
type Course struct {
	ID              string   `json:"course_id"`
	Code            string   `json:"course_code"`
	Name            string   `json:"course_name,omitempty"`
	Department      string   `json:"department,omitempty"`
	Capacity        int      `json:"total_slots"`
	Schedule        Schedule `json:"schedule"`
	PopularityScore *float64 `json:"popularity_score,omitempty"`
	Hot             bool     `json:"is_hot,omitempty"`
}

// CatalogMetadata describes how a catalog file was produced.
type CatalogMetadata struct {
	GeneratedAt   string `json:"generated_at,omitempty"`
	TotalCourses  int    `json:"total_courses"`
	TotalStudents int    `json:"total_students"`
	Seed          uint64 `json:"seed,omitempty"`
}

// Catalog bundles the course list and student roster a run consumes.
type Catalog struct {
	Courses  []Course        `json:"courses"`
	Students []Student       `json:"students"`
	Metadata CatalogMetadata `json:"metadata"`
}

// HotCount returns the number of courses flagged hot.
func (c *Catalog) HotCount() int {
	n := 0
	for _, course := range c.Courses {
		if course.Hot {
			n++
		}
	}
	return n
}
