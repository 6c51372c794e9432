package fetch

import (
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "обычный текст",
			input:    "В Тюмени зарегистрировано 73 обращения",
			expected: "В Тюмени зарегистрировано 73 обращения",
		},
		{
			name:     "null-байты",
			input:    "текст\x00с\x00мусором",
			expected: "текстсмусором",
		},
		{
			name:     "управляющие символы",
			input:    "строка\x01\x02\x03конец",
			expected: "строкаконец",
		},
		{
			name:     "переводы строк сохраняются",
			input:    "первая\nвторая\tтретья",
			expected: "первая\nвторая\tтретья",
		},
		{
			name:     "пробелы по краям",
			input:    "  текст  ",
			expected: "текст",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.input)
			if got != tt.expected {
				t.Errorf("Ожидалось %q, получено %q", tt.expected, got)
			}
		})
	}
}

func TestValidateHTML(t *testing.T) {
	valid := "<html><body>" + strings.Repeat("Новости о клещах в Тюменской области. ", 5) + "</body></html>"
	if err := ValidateHTML([]byte(valid)); err != nil {
		t.Errorf("Валидный HTML не должен отклоняться: %v", err)
	}

	if err := ValidateHTML([]byte("коротко")); err == nil {
		t.Error("Слишком короткий ответ должен отклоняться")
	}

	garbage := strings.Repeat("a", 300)
	if err := ValidateHTML([]byte(garbage)); err == nil {
		t.Error("Мусорные повторы должны отклоняться")
	}
}

func TestHasRepeatedChars(t *testing.T) {
	if hasRepeatedChars("нормальный текст без повторов", 100) {
		t.Error("Обычный текст не должен считаться мусором")
	}
	if !hasRepeatedChars(strings.Repeat("x", 150), 100) {
		t.Error("150 одинаковых символов подряд должны считаться мусором")
	}
}
