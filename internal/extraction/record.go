// Package extraction holds the canonical job-posting record and the rules for
// building it from per-page partial extractions.
package extraction

import (
	"reflect"
	"strings"
)

// Record is the canonical structured representation of one job posting.
// Scalars are nil when unknown and serialize as JSON null.
type Record struct {
	Meta        Meta        `json:"meta"`
	CompanyInfo CompanyInfo `json:"company_info"`
	Timeline    Timeline    `json:"timeline"`
	JobSummary  JobSummary  `json:"job_summary"`
	Analysis    Analysis    `json:"analysis"`
}

// Partial is one page's extraction; same shape as Record, any field may be unset
type Partial = Record

type Meta struct {
	URL            *string `json:"url"`
	CapturedAt     *string `json:"captured_at"`
	IndustryDomain *string `json:"industry_domain"`
}

type CompanyInfo struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Established   *string `json:"established"`
	EmployeeCount *string `json:"employee_count"`
	BusinessType  *string `json:"business_type"`
}

type Timeline struct {
	DeadlineDate *string `json:"deadline_date"`
	DeadlineText *string `json:"deadline_text"`
}

type JobSummary struct {
	Company            *string `json:"company"`
	Title              *string `json:"title"`
	EmploymentType     *string `json:"employment_type"`
	ProbationPeriod    *string `json:"probation_period"`
	ExperienceRequired *string `json:"experience_required"`
}

type Analysis struct {
	KeyResponsibilities     []string          `json:"key_responsibilities"`
	EssentialQualifications []string          `json:"essential_qualifications"`
	PreferredQualifications []string          `json:"preferred_qualifications"`
	CoreCompetencies        []string          `json:"core_competencies"`
	ToolsAndKnowledge       []string          `json:"tools_and_knowledge"`
	HiringProcess           []string          `json:"hiring_process"`
	WorkingConditions       WorkingConditions `json:"working_conditions"`
	Benefits                []string          `json:"benefits"`
}

type WorkingConditions struct {
	Salary   *string  `json:"salary"`
	Location Location `json:"location"`
	Schedule Schedule `json:"schedule"`
}

type Location struct {
	Address *string `json:"address"`
	Notes   *string `json:"notes"`
}

type Schedule struct {
	WorkHours *string `json:"work_hours"`
	WorkDays  *string `json:"work_days"`
	Notes     *string `json:"notes"`
}

// CompanyName prefers company_info.name over the legacy job_summary.company
func (r *Record) CompanyName() string {
	if s := deref(r.CompanyInfo.Name); s != "" {
		return s
	}
	return deref(r.JobSummary.Company)
}

// Title returns job_summary.title or ""
func (r *Record) Title() string {
	return deref(r.JobSummary.Title)
}

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{}
	copyValue(reflect.ValueOf(out).Elem(), reflect.ValueOf(r).Elem())
	return out
}

func copyValue(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Struct:
		for i := 0; i < src.NumField(); i++ {
			copyValue(dst.Field(i), src.Field(i))
		}
	case reflect.Pointer:
		if src.IsNil() {
			return
		}
		p := reflect.New(src.Elem().Type())
		p.Elem().Set(src.Elem())
		dst.Set(p)
	case reflect.Slice:
		if src.IsNil() {
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		reflect.Copy(s, src)
		dst.Set(s)
	default:
		dst.Set(src)
	}
}

// String returns a pointer to s, or nil when s is blank
func String(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
