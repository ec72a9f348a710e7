package leadform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLeadForm(t *testing.T) {
	t.Run("заявка из рекламной формы", func(t *testing.T) {
		text := "What is your Child's age ?: 16 months to 3 years\n" +
			"What is your primary goal for your child's development?: Early learning\n" +
			"Full name: Nikita Mahajan\n" +
			"Phone number: 098661 18236"
		assert.True(t, IsLeadForm(text))
	})

	t.Run("обычное сообщение", func(t *testing.T) {
		assert.False(t, IsLeadForm("Hi, I'm interested in your program"))
	})

	t.Run("меньше двух строк не считается формой", func(t *testing.T) {
		// Одна строка содержит метку, но форма из одной строки невозможна
		assert.False(t, IsLeadForm("Full name: Nikita Mahajan"))
	})

	t.Run("двух совпадений недостаточно", func(t *testing.T) {
		text := "Full name: Nikita Mahajan\n" +
			"Phone number: 098661 18236\n" +
			"Когда удобно созвониться?"
		assert.False(t, IsLeadForm(text))
	})

	t.Run("ровно три совпадения", func(t *testing.T) {
		text := "Full name: Nikita Mahajan\n" +
			"Email: nikita@example.com\n" +
			"City: Mumbai"
		assert.True(t, IsLeadForm(text))
	})

	t.Run("регистр меток не важен", func(t *testing.T) {
		text := "FULL NAME: Nikita\n" +
			"PHONE NUMBER: 1234\n" +
			"EMAIL: n@example.com"
		assert.True(t, IsLeadForm(text))
	})

	t.Run("метка должна быть префиксом строки", func(t *testing.T) {
		// Метки встречаются в середине строк, префиксных совпадений нет
		text := "My full name is Nikita\n" +
			"Here is my phone number: 1234\n" +
			"Send to my email please"
		assert.False(t, IsLeadForm(text))
	})

	t.Run("пустые строки не считаются", func(t *testing.T) {
		text := "\n\n  \nFull name: A\n\nPhone number: 1\n\nCity: X\n\n"
		assert.True(t, IsLeadForm(text))
	})

	t.Run("пустой текст", func(t *testing.T) {
		assert.False(t, IsLeadForm(""))
	})
}
