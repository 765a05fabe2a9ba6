package portal

import (
	"fmt"
	"strings"

	"jobagent-engine/internal/domain"
)

const maxHighlightedSkills = 15

// BuildResumeText stitches the candidate's profile and a personalization's
// tailored summary into the plain-text resume submitted with an
// application. Resume *assembly* is an in-engine concern even though the
// tailored sections themselves come from the external Personalizer: the
// Personalizer returns a cover letter and evidence map, not a finished
// resume document.
func BuildResumeText(profile domain.Profile, tailoredSummary string) string {
	var b strings.Builder
	writeLine(&b, profile.Name)
	writeLine(&b, profile.Email)
	writeLine(&b, profile.Phone)
	writeLine(&b, "")

	summary := tailoredSummary
	if summary == "" {
		summary = profile.Summary
	}
	if summary != "" {
		writeLine(&b, "SUMMARY")
		writeLine(&b, summary)
		writeLine(&b, "")
	}

	if skills := profile.Skills; len(skills) > 0 {
		n := skills
		if len(n) > maxHighlightedSkills {
			n = n[:maxHighlightedSkills]
		}
		writeLine(&b, "SKILLS")
		writeLine(&b, strings.Join(n, ", "))
		writeLine(&b, "")
	}

	if len(profile.Experience) > 0 {
		writeLine(&b, "EXPERIENCE")
		for _, exp := range profile.Experience {
			end := exp.EndDate
			if end == "" {
				end = "Present"
			}
			writeLine(&b, fmt.Sprintf("%s at %s (%s - %s)", exp.Title, exp.Company, exp.StartDate, end))
			for _, bullet := range exp.Bullets {
				writeLine(&b, "  • "+bullet)
			}
			writeLine(&b, "")
		}
	}

	if len(profile.Projects) > 0 {
		writeLine(&b, "PROJECTS")
		for _, proj := range profile.Projects {
			writeLine(&b, fmt.Sprintf("%s - %s", proj.Name, strings.Join(proj.Technologies, ", ")))
			if proj.URL != "" {
				writeLine(&b, "  "+proj.URL)
			}
			for _, bullet := range proj.Bullets {
				writeLine(&b, "  • "+bullet)
			}
			writeLine(&b, "")
		}
	}

	if len(profile.Education) > 0 {
		writeLine(&b, "EDUCATION")
		for _, edu := range profile.Education {
			writeLine(&b, fmt.Sprintf("%s in %s - %s (%s)", edu.Degree, edu.Field, edu.Institution, edu.GraduationDate))
			if edu.GPA != "" {
				writeLine(&b, "  GPA: "+edu.GPA)
			}
			writeLine(&b, "")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeLine(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}
