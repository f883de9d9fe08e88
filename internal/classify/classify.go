// Package classify assigns an industry to a posting from its company name and title.
package classify

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultIndustry is returned when no keyword matches
const DefaultIndustry = "Other"

type category struct {
	name     string
	keywords []string
}

// categories is checked in order; the first category with a matching keyword wins.
// Keywords that appear across industries (engineer, data, app) are left out so
// they cannot shadow a later category.
var categories = []category{
	{"IT/Software", []string{"software", "developer", "programmer", "backend", "frontend", "fullstack", "devops", "data engineer", "data scientist", "machine learning", "ai", "cloud", "web", "소프트웨어", "개발자", "백엔드", "프론트엔드", "데이터 엔지니어"}},
	{"Finance", []string{"bank", "finance", "financial", "securities", "insurance", "investment", "accounting", "capital", "은행", "금융", "증권", "보험", "투자", "회계"}},
	{"Healthcare", []string{"hospital", "medical", "health", "pharma", "clinic", "nurse", "bio", "병원", "의료", "제약", "바이오", "간호"}},
	{"Education", []string{"school", "education", "academy", "university", "teacher", "tutor", "학교", "교육", "학원", "대학", "강사"}},
	{"Manufacturing", []string{"manufacturing", "factory", "production", "semiconductor", "automotive", "chemical", "mechanical", "제조", "공장", "생산", "반도체", "자동차", "화학"}},
	{"Retail", []string{"retail", "store", "shop", "commerce", "mart", "sales", "유통", "매장", "쇼핑", "커머스", "마트", "판매"}},
	{"Construction", []string{"construction", "architecture", "civil", "building", "건설", "건축", "토목", "시공"}},
	{"Media", []string{"media", "broadcast", "news", "entertainment", "game", "film", "design", "미디어", "방송", "언론", "엔터", "게임", "영상", "디자인"}},
	{"Service", []string{"service", "hotel", "restaurant", "logistics", "delivery", "cafe", "consulting", "서비스", "호텔", "외식", "물류", "배송", "카페", "컨설팅"}},
}

var matchers = compile(categories)

type matcher struct {
	name   string
	words  *regexp.Regexp
	hangul []string
}

func compile(cats []category) []matcher {
	out := make([]matcher, 0, len(cats))
	for _, c := range cats {
		m := matcher{name: c.name}
		var ascii []string
		for _, kw := range c.keywords {
			if isASCII(kw) {
				ascii = append(ascii, regexp.QuoteMeta(kw))
			} else {
				m.hangul = append(m.hangul, kw)
			}
		}
		if len(ascii) > 0 {
			m.words = regexp.MustCompile(`\b(?:` + strings.Join(ascii, "|") + `)\b`)
		}
		out = append(out, m)
	}
	return out
}

// Industry classifies a posting; the same inputs always yield the same category
func Industry(company, title string) string {
	text := strings.ToLower(company + " " + title)
	if strings.TrimSpace(text) == "" {
		return DefaultIndustry
	}

	for _, m := range matchers {
		if m.words != nil && m.words.MatchString(text) {
			return m.name
		}
		for _, kw := range m.hangul {
			if strings.Contains(text, kw) {
				return m.name
			}
		}
	}
	return DefaultIndustry
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
