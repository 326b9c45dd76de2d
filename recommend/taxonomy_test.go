package recommend

import "testing"

func TestStrongWeakCategories(t *testing.T) {
	tags := []string{"AI", "반도체", "개발", "주식", "투자", "영화"}
	strong, weak := StrongWeakCategories(tags)

	if len(strong) != 2 || strong[0] != CategoryTech || strong[1] != CategoryEconomy {
		t.Errorf("strong = %v, want [TECH ECONOMY]", strong)
	}
	if len(weak) != 2 {
		t.Fatalf("weak = %v, want 2 categories", weak)
	}
	for _, w := range weak {
		if containsCategory(strong, w) {
			t.Errorf("weak category %s also appears in strong", w)
		}
		if scores := CategoryScores(tags); scores[w] > scores[strong[len(strong)-1]] {
			t.Errorf("weak category %s outscores the weakest strong category", w)
		}
	}
}

func TestStrongWeakCategoriesDefaults(t *testing.T) {
	strong, weak := StrongWeakCategories(nil)
	if len(strong) == 0 || len(weak) == 0 {
		t.Fatal("empty history must fall back to the starter pair")
	}
	if strong[0] != CategoryTech {
		t.Errorf("default strong = %v", strong)
	}
}

func TestCategoryScoresFirstMatchWins(t *testing.T) {
	// "과학" belongs to TECH in the taxonomy; a tag scores for exactly one
	// category even when multiple would match substrings.
	scores := CategoryScores([]string{"과학기술"})
	if scores[CategoryTech] != 1 {
		t.Errorf("TECH score = %f, want 1", scores[CategoryTech])
	}
	var total float64
	for _, s := range scores {
		total += s
	}
	if total != 1 {
		t.Errorf("tag counted %f times across categories, want once", total)
	}
}

func TestDeterminePersona(t *testing.T) {
	ghost := DeterminePersona(nil, 0)
	if ghost.Title != "👻 투명한 유령" {
		t.Errorf("zero-read persona = %q", ghost.Title)
	}

	techTags := []string{"AI", "반도체", "개발", "코딩"}
	p := DeterminePersona(techTags, 12)
	if p.Category != CategoryTech || p.Level != 2 {
		t.Errorf("persona = %+v, want TECH lvl2", p)
	}
	if p.Title != personaTitles[CategoryTech][1] {
		t.Errorf("title = %q", p.Title)
	}

	// Fewer than 3 hits in the leading category degrades to GENERAL.
	g := DeterminePersona([]string{"AI", "주식"}, 60)
	if g.Category != CategoryGeneral || g.Level != 3 {
		t.Errorf("persona = %+v, want GENERAL lvl3", g)
	}
}
