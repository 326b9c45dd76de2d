package recommend

import (
	"sort"
	"strings"
)

// Category is a coarse news topic bucket used for exploration planning and
// reader personas.
type Category string

const (
	CategoryTech     Category = "TECH"
	CategoryEconomy  Category = "ECONOMY"
	CategoryPolitics Category = "POLITICS"
	CategorySociety  Category = "SOCIETY"
	CategoryCulture  Category = "CULTURE"
	CategoryGeneral  Category = "GENERAL"
)

// categoryKeywords maps each category to the tag keywords that count toward
// it. A user tag scores for the first category containing any keyword of it.
var categoryKeywords = map[Category][]string{
	CategoryTech:     {"AI", "반도체", "애플", "삼성", "IT", "개발", "코딩", "소프트웨어", "테크", "모바일", "게임", "과학"},
	CategoryEconomy:  {"주식", "투자", "금리", "부동산", "시장", "환율", "은행", "경제", "재테크", "코스피", "나스닥"},
	CategoryPolitics: {"대통령", "국회", "선거", "정당", "법안", "정책", "외교", "북한", "총선", "의원"},
	CategorySociety:  {"사건", "사고", "날씨", "교통", "교육", "환경", "복지", "노동", "인권"},
	CategoryCulture:  {"영화", "드라마", "여행", "음식", "책", "예술", "공연", "연예", "스포츠"},
}

// scoredCategories is the fixed iteration order for scoring; map iteration
// order would make strong/weak selection nondeterministic.
var scoredCategories = []Category{
	CategoryTech, CategoryEconomy, CategoryPolitics, CategorySociety, CategoryCulture,
}

// Starter pair for users with no tagged reading history.
var (
	DefaultStrongCategories = []Category{CategoryTech}
	DefaultWeakCategories   = []Category{CategoryCulture, CategorySociety}
)

// CategoryScores counts tag hits per category.
func CategoryScores(tags []string) map[Category]float64 {
	scores := make(map[Category]float64, len(scoredCategories))
	for _, c := range scoredCategories {
		scores[c] = 0
	}
	for _, tag := range tags {
		for _, c := range scoredCategories {
			if tagMatches(tag, categoryKeywords[c]) {
				scores[c]++
				break
			}
		}
	}
	return scores
}

// StrongWeakCategories splits the taxonomy into the user's top interests
// (score > 0, at most 2) and their least-read categories (at most 2). Users
// with no scoring tags get the starter pair.
func StrongWeakCategories(tags []string) (strong, weak []Category) {
	scores := CategoryScores(tags)

	ordered := make([]Category, len(scoredCategories))
	copy(ordered, scoredCategories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return scores[ordered[i]] > scores[ordered[j]]
	})

	for _, c := range ordered {
		if scores[c] > 0 && len(strong) < 2 {
			strong = append(strong, c)
		}
	}
	if len(strong) == 0 {
		return DefaultStrongCategories, DefaultWeakCategories
	}

	for i := len(ordered) - 1; i >= 0 && len(weak) < 2; i-- {
		c := ordered[i]
		if !containsCategory(strong, c) {
			weak = append(weak, c)
		}
	}
	return strong, weak
}

func tagMatches(tag string, keywords []string) bool {
	for _, k := range keywords {
		if containsFold(tag, k) {
			return true
		}
	}
	return false
}

func containsCategory(list []Category, c Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

// Persona describes the reader archetype shown on the stats endpoint.
type Persona struct {
	Title     string   `json:"title"`
	Category  Category `json:"category"`
	Level     int      `json:"level"`
	ReadCount int      `json:"read_count"`
}

var personaTitles = map[Category][3]string{
	CategoryTech:     {"💾 IT 꿈나무", "💻 판교의 등대", "🤖 미래에서 온 터미네이터"},
	CategoryEconomy:  {"🪙 저금통 요정", "📈 차트 분석가", "🐺 여의도의 늑대"},
	CategoryPolitics: {"📰 조간신문 독자", "⚖️ 여의도 평론가", "👑 킹메이커"},
	CategorySociety:  {"👀 이웃집 관찰자", "📢 사회부 기자", "🌍 세상을 바꾸는 활동가"},
	CategoryCulture:  {"🍿 팝콘 러버", "🎨 힙한 영감 수집가", "🍷 고독한 미식가"},
	CategoryGeneral:  {"🌱 뉴스 입문자", "📚 잡학다식 척척박사", "🧠 걸어다니는 백과사전"},
}

// DeterminePersona picks a reader persona from tag distribution and read
// volume. A dominant category needs at least 3 tag hits; otherwise the
// reader is a generalist.
func DeterminePersona(tags []string, readCount int) Persona {
	if readCount == 0 {
		return Persona{Title: "👻 투명한 유령", Category: CategoryGeneral, Level: 1}
	}

	scores := CategoryScores(tags)
	dominant := CategoryGeneral
	best := 0.0
	for _, c := range scoredCategories {
		if scores[c] > best {
			best = scores[c]
			dominant = c
		}
	}
	if best < 3 {
		dominant = CategoryGeneral
	}

	level := 1
	switch {
	case readCount >= 50:
		level = 3
	case readCount >= 10:
		level = 2
	}

	return Persona{
		Title:     personaTitles[dominant][level-1],
		Category:  dominant,
		Level:     level,
		ReadCount: readCount,
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
