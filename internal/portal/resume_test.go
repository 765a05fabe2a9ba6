package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobagent-engine/internal/domain"
)

func TestBuildResumeText_UsesTailoredSummaryOverProfileSummary(t *testing.T) {
	p := domain.Profile{Name: "Ada Lovelace", Email: "ada@example.com", Summary: "General summary"}

	text := BuildResumeText(p, "Tailored for this role")

	assert.Contains(t, text, "Ada Lovelace")
	assert.Contains(t, text, "Tailored for this role")
	assert.NotContains(t, text, "General summary")
}

func TestBuildResumeText_FallsBackToProfileSummaryWhenNoneTailored(t *testing.T) {
	p := domain.Profile{Name: "Ada", Summary: "General summary"}

	text := BuildResumeText(p, "")

	assert.Contains(t, text, "General summary")
}

func TestBuildResumeText_CapsHighlightedSkills(t *testing.T) {
	skills := make([]string, 20)
	for i := range skills {
		skills[i] = "skill"
	}
	p := domain.Profile{Name: "Ada", Skills: skills}

	text := BuildResumeText(p, "")

	assert.Equal(t, 15, countOccurrences(text, "skill"))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}

func TestBuildResumeText_IncludesExperienceAndEducation(t *testing.T) {
	p := domain.Profile{
		Name: "Ada",
		Experience: []domain.Experience{
			{Title: "Engineer", Company: "Acme", StartDate: "2020", Bullets: []string{"Did a thing"}},
		},
		Education: []domain.Education{
			{Degree: "BS", Field: "CS", Institution: "MIT", GraduationDate: "2019"},
		},
	}

	text := BuildResumeText(p, "")

	assert.Contains(t, text, "Engineer at Acme")
	assert.Contains(t, text, "Present")
	assert.Contains(t, text, "Did a thing")
	assert.Contains(t, text, "BS in CS")
}
