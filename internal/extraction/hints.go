package extraction

import (
	"fmt"
	"strings"
)

// Hints are advisory metadata scraped alongside the capture
type Hints struct {
	Company            string `json:"company,omitempty"`
	Title              string `json:"title,omitempty"`
	Salary             string `json:"salary,omitempty"`
	Location           string `json:"location,omitempty"`
	Deadline           string `json:"deadline,omitempty"`
	CompanyDescription string `json:"company_description,omitempty"`
	EmployeeCount      string `json:"employee_count,omitempty"`
	Excerpt            string `json:"excerpt,omitempty"`
}

// Lines renders the non-blank hints as "key: value" lines in a fixed order
func (h Hints) Lines() []string {
	fields := []struct {
		key, value string
	}{
		{"company", h.Company},
		{"title", h.Title},
		{"salary", h.Salary},
		{"location", h.Location},
		{"deadline", h.Deadline},
		{"company_description", h.CompanyDescription},
		{"employee_count", h.EmployeeCount},
		{"excerpt", h.Excerpt},
	}

	var lines []string
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", f.key, v))
		}
	}
	return lines
}

// IsEmpty reports whether no hint carries a value
func (h Hints) IsEmpty() bool {
	return len(h.Lines()) == 0
}

// ApplyHints backfills fields still unset after extraction; extracted values always win
func ApplyHints(r *Record, h Hints) {
	mergeScalar(&r.CompanyInfo.Name, String(h.Company))
	mergeScalar(&r.JobSummary.Company, String(h.Company))
	mergeScalar(&r.JobSummary.Title, String(h.Title))
	mergeScalar(&r.Analysis.WorkingConditions.Salary, String(h.Salary))
	mergeScalar(&r.Analysis.WorkingConditions.Location.Address, String(h.Location))
	mergeScalar(&r.Timeline.DeadlineText, String(h.Deadline))
	mergeScalar(&r.CompanyInfo.Description, String(h.CompanyDescription))
	mergeScalar(&r.CompanyInfo.EmployeeCount, String(h.EmployeeCount))
}

// ApplyMeta backfills the capture url and date
func ApplyMeta(r *Record, url, capturedAt string) {
	mergeScalar(&r.Meta.URL, String(url))
	mergeScalar(&r.Meta.CapturedAt, String(capturedAt))
}
