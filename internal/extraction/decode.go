package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedPartial is returned when a page response is not an extraction object
var ErrMalformedPartial = errors.New("malformed partial extraction")

// partialSchema only pins the outer shape; leaf types are coerced leniently
const partialSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "meta":         {"type": ["object", "null"]},
    "company_info": {"type": ["object", "null"]},
    "timeline":     {"type": ["object", "null"]},
    "job_summary":  {"type": ["object", "null"]},
    "analysis":     {"type": ["object", "null"]},
    "positions":    {"type": ["array", "null"]},
    "benefits":     {"type": ["array", "string", "null"]},
    "hiring_process": {"type": ["array", "string", "null"]}
  }
}`

// Validator decodes raw page responses into partials
type Validator struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewValidator compiles the partial-extraction schema
func NewValidator(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("partial.json", strings.NewReader(partialSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("partial.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema, logger: logger}, nil
}

// Decode validates the shape of raw and converts it into a Partial
func (v *Validator) Decode(raw json.RawMessage) (*Partial, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPartial, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPartial, err)
	}

	return fromDocument(doc.(map[string]any)), nil
}

// DecodeAll decodes every page response, leaving nil for pages that fail.
// A nil entry in raws is a page whose inference call failed.
func (v *Validator) DecodeAll(raws []json.RawMessage) []*Partial {
	out := make([]*Partial, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		p, err := v.Decode(raw)
		if err != nil {
			v.logger.Warn("Skipping malformed page extraction",
				slog.Int("page", i),
				slog.Any("error", err),
			)
			continue
		}
		out[i] = p
	}
	return out
}

func fromDocument(doc map[string]any) *Partial {
	p := &Partial{}

	meta := object(doc, "meta")
	p.Meta.URL = scalar(meta["url"])
	p.Meta.CapturedAt = scalar(meta["captured_at"])
	p.Meta.IndustryDomain = scalar(meta["industry_domain"])

	company := object(doc, "company_info")
	p.CompanyInfo.Name = scalar(company["name"])
	p.CompanyInfo.Description = scalar(company["description"])
	p.CompanyInfo.Established = scalar(company["established"])
	p.CompanyInfo.EmployeeCount = scalar(company["employee_count"])
	p.CompanyInfo.BusinessType = scalar(company["business_type"])

	timeline := object(doc, "timeline")
	p.Timeline.DeadlineDate = scalar(timeline["deadline_date"])
	p.Timeline.DeadlineText = scalar(timeline["deadline_text"])

	summary := object(doc, "job_summary")
	p.JobSummary.Company = scalar(summary["company"])
	p.JobSummary.Title = scalar(summary["title"])
	p.JobSummary.EmploymentType = scalar(summary["employment_type"])
	p.JobSummary.ProbationPeriod = scalar(summary["probation_period"])
	p.JobSummary.ExperienceRequired = scalar(summary["experience_required"])

	analysis := object(doc, "analysis")
	p.Analysis.KeyResponsibilities = list(analysis["key_responsibilities"])
	p.Analysis.EssentialQualifications = list(analysis["essential_qualifications"])
	p.Analysis.PreferredQualifications = list(analysis["preferred_qualifications"])
	p.Analysis.CoreCompetencies = list(analysis["core_competencies"])
	p.Analysis.ToolsAndKnowledge = list(analysis["tools_and_knowledge"])
	p.Analysis.HiringProcess = list(analysis["hiring_process"])
	p.Analysis.Benefits = list(analysis["benefits"])

	conditions := object(analysis, "working_conditions")
	p.Analysis.WorkingConditions.Salary = salary(conditions["salary"])
	location := object(conditions, "location")
	p.Analysis.WorkingConditions.Location.Address = scalar(location["address"])
	p.Analysis.WorkingConditions.Location.Notes = scalar(location["notes"])
	schedule := object(conditions, "schedule")
	p.Analysis.WorkingConditions.Schedule.WorkHours = scalar(schedule["work_hours"])
	p.Analysis.WorkingConditions.Schedule.WorkDays = scalar(schedule["work_days"])
	p.Analysis.WorkingConditions.Schedule.Notes = scalar(schedule["notes"])

	// positions[] layout: fills only what the sections above left unset
	mergeValue(reflect.ValueOf(p).Elem(), reflect.ValueOf(fromPositions(doc)).Elem())

	mergeScalar(&p.CompanyInfo.Name, p.JobSummary.Company)

	return p
}

func fromPositions(doc map[string]any) *Partial {
	p := &Partial{}
	p.Analysis.Benefits = list(doc["benefits"])
	p.Analysis.HiringProcess = list(doc["hiring_process"])

	positions, _ := doc["positions"].([]any)
	if len(positions) == 0 {
		return p
	}
	first, _ := positions[0].(map[string]any)
	if first == nil {
		return p
	}

	p.JobSummary.Company = scalar(first["company"])
	p.JobSummary.Title = scalar(first["title"])
	p.JobSummary.EmploymentType = scalar(first["employment_type"])
	p.JobSummary.ExperienceRequired = scalar(first["experience_required"])

	for _, pos := range positions {
		m, _ := pos.(map[string]any)
		if m == nil {
			continue
		}
		p.Analysis.KeyResponsibilities = mergeList(p.Analysis.KeyResponsibilities, list(m["responsibilities"]))
		p.Analysis.EssentialQualifications = mergeList(p.Analysis.EssentialQualifications, list(m["essential_qualifications"]))
		p.Analysis.PreferredQualifications = mergeList(p.Analysis.PreferredQualifications, list(m["preferred_qualifications"]))
		p.Analysis.ToolsAndKnowledge = mergeList(p.Analysis.ToolsAndKnowledge, list(m["tech_stack"]))
		p.Analysis.ToolsAndKnowledge = mergeList(p.Analysis.ToolsAndKnowledge, list(m["tools"]))
	}

	p.Analysis.WorkingConditions.Salary = salary(first["salary"])
	conditions := object(first, "working_conditions")
	p.Analysis.WorkingConditions.Schedule.WorkHours = scalar(conditions["work_hours"])
	p.Analysis.WorkingConditions.Location.Address = scalar(conditions["location"])

	return p
}

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	o, _ := m[key].(map[string]any)
	return o
}

// scalar coerces a JSON leaf into an optional string; blank and "null" are unset
func scalar(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(s), "null") {
		return nil
	}
	return String(s)
}

// list accepts an array of leaves or a single string
func list(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s := scalar(item); s != nil {
				out = append(out, *s)
			}
		}
		return out
	case string:
		if s := scalar(t); s != nil {
			return []string{*s}
		}
	}
	return nil
}

// salary accepts a plain string or an {amount, details} object
func salary(v any) *string {
	m, ok := v.(map[string]any)
	if !ok {
		return scalar(v)
	}
	var parts []string
	for _, key := range []string{"amount", "details"} {
		if s := scalar(m[key]); s != nil {
			parts = append(parts, *s)
		}
	}
	return String(strings.Join(parts, " "))
}
