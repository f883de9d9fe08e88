package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		partials []*Partial
		check    func(t *testing.T, r *Record)
	}{
		{
			name: "first non-empty title wins",
			partials: []*Partial{
				{JobSummary: JobSummary{Title: ptr("A")}},
				{JobSummary: JobSummary{Title: ptr("B")}},
			},
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, "A", *r.JobSummary.Title)
			},
		},
		{
			name: "blank scalar does not claim the field",
			partials: []*Partial{
				{JobSummary: JobSummary{Title: ptr("   ")}},
				{JobSummary: JobSummary{Title: ptr("Backend Engineer")}},
			},
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, "Backend Engineer", *r.JobSummary.Title)
			},
		},
		{
			name: "benefits union keeps first-seen order",
			partials: []*Partial{
				{Analysis: Analysis{Benefits: []string{"X", "Y"}}},
				{Analysis: Analysis{Benefits: []string{"Y", "Z"}}},
			},
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, []string{"X", "Y", "Z"}, r.Analysis.Benefits)
			},
		},
		{
			name: "nested leaves merge independently",
			partials: []*Partial{
				{Analysis: Analysis{WorkingConditions: WorkingConditions{
					Location: Location{Address: ptr("Seoul Gangnam-gu")},
				}}},
				{Analysis: Analysis{WorkingConditions: WorkingConditions{
					Location: Location{Address: ptr("Busan"), Notes: ptr("5 min from station")},
					Schedule: Schedule{WorkDays: ptr("Mon-Fri")},
				}}},
			},
			check: func(t *testing.T, r *Record) {
				wc := r.Analysis.WorkingConditions
				assert.Equal(t, "Seoul Gangnam-gu", *wc.Location.Address)
				assert.Equal(t, "5 min from station", *wc.Location.Notes)
				assert.Equal(t, "Mon-Fri", *wc.Schedule.WorkDays)
				assert.Nil(t, wc.Schedule.WorkHours)
			},
		},
		{
			name: "failed pages are skipped",
			partials: []*Partial{
				nil,
				{CompanyInfo: CompanyInfo{Name: ptr("Acme")}},
				nil,
			},
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, "Acme", *r.CompanyInfo.Name)
			},
		},
		{
			name:     "no partials leaves everything unset",
			partials: nil,
			check: func(t *testing.T, r *Record) {
				assert.Nil(t, r.JobSummary.Title)
				assert.NotNil(t, r.Analysis.Benefits)
				assert.Empty(t, r.Analysis.Benefits)
			},
		},
		{
			name: "blank list items are dropped",
			partials: []*Partial{
				{Analysis: Analysis{ToolsAndKnowledge: []string{"Go", "", "  ", "Go", "SQL"}}},
			},
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, []string{"Go", "SQL"}, r.Analysis.ToolsAndKnowledge)
			},
		},
		{
			name: "list dedup is exact string match",
			partials: []*Partial{
				{Analysis: Analysis{Benefits: []string{"X", "X "}}},
				{Analysis: Analysis{Benefits: []string{"X", "x"}}},
			},
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, []string{"X", "X ", "x"}, r.Analysis.Benefits)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Reconcile(tt.partials))
		})
	}
}

func TestReconcile_SinglePartialIsIdentity(t *testing.T) {
	p := &Partial{
		Meta:        Meta{URL: ptr("https://jobs.example.com/1")},
		CompanyInfo: CompanyInfo{Name: ptr("Acme"), EmployeeCount: ptr("120")},
		JobSummary:  JobSummary{Title: ptr("Software Engineer")},
		Analysis: Analysis{
			KeyResponsibilities: []string{"Build APIs"},
			Benefits:            []string{"Lunch", "Stock options"},
			WorkingConditions:   WorkingConditions{Salary: ptr("Negotiable")},
		},
	}

	r := Reconcile([]*Partial{p})

	want := p.Clone()
	fillListsOf(want)
	assert.Equal(t, want, r)
}

func TestReconcile_DoesNotAliasInput(t *testing.T) {
	p := &Partial{Analysis: Analysis{Benefits: []string{"Lunch"}}}
	r := Reconcile([]*Partial{p})

	r.Analysis.Benefits[0] = "changed"
	assert.Equal(t, "Lunch", p.Analysis.Benefits[0])
}

func TestReconcile_SerializesAbsentAsNull(t *testing.T) {
	r := Reconcile([]*Partial{{JobSummary: JobSummary{Title: ptr("Designer")}}})

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "Designer", doc["job_summary"]["title"])
	assert.Nil(t, doc["job_summary"]["company"])
	assert.Contains(t, doc["job_summary"], "company")
	assert.Equal(t, []any{}, doc["analysis"]["benefits"])
}

func TestApplyHints(t *testing.T) {
	r := Reconcile([]*Partial{{
		JobSummary: JobSummary{Title: ptr("Extracted Title")},
	}})

	ApplyHints(r, Hints{
		Company:  "Hint Corp",
		Title:    "Hint Title",
		Salary:   "50M KRW",
		Location: "Seoul",
		Deadline: "until filled",
	})

	assert.Equal(t, "Extracted Title", *r.JobSummary.Title)
	assert.Equal(t, "Hint Corp", *r.CompanyInfo.Name)
	assert.Equal(t, "Hint Corp", *r.JobSummary.Company)
	assert.Equal(t, "50M KRW", *r.Analysis.WorkingConditions.Salary)
	assert.Equal(t, "Seoul", *r.Analysis.WorkingConditions.Location.Address)
	assert.Equal(t, "until filled", *r.Timeline.DeadlineText)
	assert.Nil(t, r.CompanyInfo.Description)
}

func TestApplyMeta(t *testing.T) {
	r := &Record{Meta: Meta{URL: ptr("https://from-model")}}

	ApplyMeta(r, "https://from-request", "2026-10-18")

	assert.Equal(t, "https://from-model", *r.Meta.URL)
	assert.Equal(t, "2026-10-18", *r.Meta.CapturedAt)
}

func TestHints_Lines(t *testing.T) {
	assert.True(t, Hints{Company: "  "}.IsEmpty())
	assert.Equal(t,
		[]string{"company: Acme", "deadline: 2026-11-01"},
		Hints{Deadline: "2026-11-01", Company: "Acme"}.Lines(),
	)
}

func fillListsOf(r *Record) {
	for _, l := range []*[]string{
		&r.Analysis.KeyResponsibilities,
		&r.Analysis.EssentialQualifications,
		&r.Analysis.PreferredQualifications,
		&r.Analysis.CoreCompetencies,
		&r.Analysis.ToolsAndKnowledge,
		&r.Analysis.HiringProcess,
		&r.Analysis.Benefits,
	} {
		if *l == nil {
			*l = []string{}
		}
	}
}
