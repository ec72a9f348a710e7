// Package leadform распознаёт автоматические заявки из рекламных лид-форм.
// Такие заявки не должны занимать очередь агента, поэтому чат с ними
// принудительно остаётся без назначения.
package leadform

import "strings"

// Известные метки полей лид-формы. Строка текста считается совпавшей,
// если начинается с метки (без учёта регистра).
var fieldLabels = []string{
	"full name",
	"phone number",
	"email",
	"city",
	"what is your child's age",
	"what is your primary goal",
}

// Минимум совпавших строк, чтобы счесть текст лид-формой.
const minMatches = 3

// IsLeadForm сообщает, похож ли текст на выгрузку рекламной лид-формы.
// Чистая функция без ввода-вывода.
func IsLeadForm(text string) bool {
	lines := splitLines(text)
	if len(lines) < 2 {
		return false
	}

	matches := 0
	for _, line := range lines {
		if matchesLabel(line) {
			matches++
			if matches >= minMatches {
				return true
			}
		}
	}
	return false
}

// splitLines разбивает текст на непустые строки без краевых пробелов.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func matchesLabel(line string) bool {
	lower := strings.ToLower(line)
	for _, label := range fieldLabels {
		if strings.HasPrefix(lower, label) {
			return true
		}
	}
	return false
}
