package facts

import "regexp"

// Справочник населенных пунктов Тюменской области. Шаблоны учитывают
// падежные формы: "в Тюмени" должно давать "Тюмень", но "Тюменская
// область" не должна засчитываться как город. Первый найденный пункт
// в порядке списка побеждает.
var gazetteer = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"Тюмень", regexp.MustCompile(`(?i)тюмен(ь|и|ью)`)},
	{"Тобольск", regexp.MustCompile(`(?i)тобольск`)},
	{"Ишим", regexp.MustCompile(`(?i)ишим`)},
	{"Ялуторовск", regexp.MustCompile(`(?i)ялуторовск`)},
	{"Заводоуковск", regexp.MustCompile(`(?i)заводоуковск`)},
	{"Голышманово", regexp.MustCompile(`(?i)голышманов`)},
	{"Вагай", regexp.MustCompile(`(?i)вага[йеяю]`)},
	{"Упорово", regexp.MustCompile(`(?i)упоров`)},
	{"Омутинское", regexp.MustCompile(`(?i)омутинск`)},
	{"Армизонское", regexp.MustCompile(`(?i)армизон`)},
	{"Бердюжье", regexp.MustCompile(`(?i)бердюж`)},
	{"Абатское", regexp.MustCompile(`(?i)абатск`)},
	{"Викулово", regexp.MustCompile(`(?i)викулов(о|ск)`)},
	{"Сорокино", regexp.MustCompile(`(?i)сорокин(о|ск)`)},
	{"Юргинское", regexp.MustCompile(`(?i)юргинск`)},
	{"Нижняя Тавда", regexp.MustCompile(`(?i)тавд`)},
	{"Ярково", regexp.MustCompile(`(?i)ярков(о|ск)`)},
	{"Казанское", regexp.MustCompile(`(?i)казанск`)},
	{"Исетское", regexp.MustCompile(`(?i)исетск`)},
	{"Сладково", regexp.MustCompile(`(?i)сладков(о|ск)`)},
}

// Запасной вариант: слово перед "район", "округ" или "муниципалитет".
var districtPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([а-яё]+)\s+район`),
	regexp.MustCompile(`(?i)([а-яё]+)\s+округ`),
	regexp.MustCompile(`(?i)([а-яё]+)\s+муниципалитет`),
}

// ExtractLocation находит населенный пункт в тексте. Пустая строка
// означает, что локализовать сообщение не удалось.
func ExtractLocation(text string) string {
	for _, entry := range gazetteer {
		if entry.Pattern.MatchString(text) {
			return entry.Name
		}
	}
	for _, pattern := range districtPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
