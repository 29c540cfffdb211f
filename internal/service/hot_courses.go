package service

import (
	"math"
	"sort"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

// AssignHotCourses returns a copy of courses with the most popular fraction
// flagged hot. Courses without a popularity score are ranked by a random
// draw. At least one course is hot when the catalog is non-empty.
func AssignHotCourses(courses []models.Course, fraction float64, rnd Random) []models.Course {
	out := make([]models.Course, len(courses))
	copy(out, courses)
	if len(out) == 0 {
		return out
	}
	if fraction <= 0 {
		fraction = 0.1
	}

	scores := make([]float64, len(out))
	order := make([]int, len(out))
	for i := range out {
		out[i].Hot = false
		order[i] = i
		if out[i].PopularityScore != nil {
			scores[i] = *out[i].PopularityScore
		} else {
			scores[i] = rnd.Float64()
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	hot := int(math.Floor(float64(len(out)) * fraction))
	if hot < 1 {
		hot = 1
	}
	if hot > len(out) {
		hot = len(out)
	}
	for _, idx := range order[:hot] {
		out[idx].Hot = true
	}
	return out
}
