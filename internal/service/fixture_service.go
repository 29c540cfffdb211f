package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

// FixtureParams sizes a generated catalog.
type FixtureParams struct {
	Courses  int
	Students int
	Capacity int
	Seed     uint64
}

var (
	fixtureDepartments = []string{
		"Computer Science", "Mathematics", "Physics", "Chemistry",
		"Biology", "Economics", "Psychology", "History", "Literature",
		"Engineering", "Business Administration", "Statistics", "Philosophy",
	}
	fixturePrefixes = map[string][]string{
		"Computer Science":        {"CS", "CSE", "COMP"},
		"Mathematics":             {"MATH", "CALC"},
		"Physics":                 {"PHYS", "PHY"},
		"Chemistry":               {"CHEM", "CHM"},
		"Biology":                 {"BIO", "BIOL"},
		"Economics":               {"ECON", "ECO"},
		"Psychology":              {"PSYC", "PSY"},
		"History":                 {"HIST", "HIS"},
		"Literature":              {"LIT", "ENG"},
		"Engineering":             {"ENGR"},
		"Business Administration": {"BUS", "MGMT"},
		"Statistics":              {"STAT", "STA"},
		"Philosophy":              {"PHIL", "PHI"},
	}
	fixtureTopics   = []string{"Introduction to", "Advanced", "Fundamentals of", "Applied", "Theory of", "Modern"}
	fixtureSubjects = []string{"Programming", "Algorithms", "Data Structures", "Database Systems", "Statistics", "Calculus", "Networks", "Design"}
	fixtureSlots    = []string{"08:00-09:30", "09:30-11:00", "11:00-12:30", "13:30-15:00", "15:00-16:30", "16:30-18:00"}
	fixtureDays     = []string{"MWF", "TTH", "MW", "WF", "TH"}
	fixtureFirst    = []string{"John", "Jane", "Michael", "Sarah", "David", "Emily", "Robert", "Jessica", "William", "Ashley"}
	fixtureLast     = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Wilson", "Lee"}
)

// FixtureGenerator produces synthetic catalogs for load runs.
type FixtureGenerator struct {
	now func() time.Time
}

// NewFixtureGenerator constructs a generator.
func NewFixtureGenerator() *FixtureGenerator {
	return &FixtureGenerator{now: time.Now}
}

// Generate builds a catalog. The same seed always yields the same courses and
// students; only metadata.generated_at differs between calls.
func (g *FixtureGenerator) Generate(params FixtureParams) *models.Catalog {
	if params.Courses <= 0 {
		params.Courses = 320
	}
	if params.Students <= 0 {
		params.Students = 8200
	}
	if params.Capacity <= 0 {
		params.Capacity = 30
	}
	rnd := NewRandom(params.Seed, 0)

	courses := make([]models.Course, 0, params.Courses)
	codes := make(map[string]struct{}, params.Courses)
	for i := 0; i < params.Courses; i++ {
		dept := pick(rnd, fixtureDepartments)
		prefixes := fixturePrefixes[dept]
		code := fmt.Sprintf("%s%03d", pick(rnd, prefixes), 100+rnd.IntN(500))
		for tries := 0; tries < 16; tries++ {
			if _, taken := codes[code]; !taken {
				break
			}
			code = fmt.Sprintf("%s%03d", pick(rnd, prefixes), 100+rnd.IntN(500))
		}
		if _, taken := codes[code]; taken {
			code = fmt.Sprintf("%s-%d", code, i)
		}
		codes[code] = struct{}{}

		name := pick(rnd, fixtureTopics) + " " + pick(rnd, fixtureSubjects)
		popularity := rnd.Float64()
		courses = append(courses, models.Course{
			ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("loadsim-course-%d-%d", params.Seed, i))).String(),
			Code:       code,
			Name:       name,
			Department: dept,
			Capacity:   params.Capacity,
			Schedule: models.Schedule{
				Days: pick(rnd, fixtureDays),
				Time: pick(rnd, fixtureSlots),
				Room: fmt.Sprintf("%c%d", 'A'+rune(rnd.IntN(4)), 100+rnd.IntN(900)),
			},
			PopularityScore: &popularity,
		})
	}

	students := make([]models.Student, 0, params.Students)
	for i := 0; i < params.Students; i++ {
		first := pick(rnd, fixtureFirst)
		last := pick(rnd, fixtureLast)
		students = append(students, models.Student{
			ID:        fmt.Sprintf("STU%06d", i+1),
			FirstName: first,
			LastName:  last,
			Email:     fmt.Sprintf("%s.%s%03d@university.edu", strings.ToLower(first), strings.ToLower(last), i%1000),
		})
	}

	return &models.Catalog{
		Courses:  courses,
		Students: students,
		Metadata: models.CatalogMetadata{
			GeneratedAt:   g.now().UTC().Format(time.RFC3339),
			TotalCourses:  len(courses),
			TotalStudents: len(students),
			Seed:          params.Seed,
		},
	}
}

func pick(rnd Random, values []string) string {
	return values[rnd.IntN(len(values))]
}
