package game

import (
	"fmt"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

var defaultBoard = []struct {
	name  string
	clues [5][2]string
}{
	{"History", [5][2]string{
		{"This war lasted from 1939 to 1945", "What is World War II?"},
		{"This document was signed in 1776", "What is the Declaration of Independence?"},
		{"This president issued the Emancipation Proclamation", "Who is Abraham Lincoln?"},
		{"The Berlin Wall fell in this year", "What is 1989?"},
		{"This empire was ruled by Julius Caesar", "What is the Roman Empire?"},
	}},
	{"Science", [5][2]string{
		{"This is the chemical symbol for gold", "What is Au?"},
		{"This planet is known as the Red Planet", "What is Mars?"},
		{"This is the powerhouse of the cell", "What is mitochondria?"},
		{"This force keeps planets in orbit", "What is gravity?"},
		{"This scientist developed the theory of relativity", "Who is Albert Einstein?"},
	}},
	{"Geography", [5][2]string{
		{"This is the capital of France", "What is Paris?"},
		{"This is the longest river in the world", "What is the Nile?"},
		{"This is the largest continent", "What is Asia?"},
		{"This mountain is the tallest in the world", "What is Mount Everest?"},
		{"This is the smallest country in the world", "What is Vatican City?"},
	}},
	{"Literature", [5][2]string{
		{"This author wrote 'Romeo and Juliet'", "Who is William Shakespeare?"},
		{"This novel features a character named Atticus Finch", "What is 'To Kill a Mockingbird'?"},
		{"This dystopian novel was written by George Orwell", "What is '1984'?"},
		{"This epic poem was written by Homer", "What is 'The Odyssey'?"},
		{"This Russian author wrote 'War and Peace'", "Who is Leo Tolstoy?"},
	}},
	{"Sports", [5][2]string{
		{"This sport is known as 'America's pastime'", "What is baseball?"},
		{"This tournament is known as 'The Masters'", "What is golf?"},
		{"This country has won the most FIFA World Cups", "What is Brazil?"},
		{"This boxer was known as 'The Greatest'", "Who is Muhammad Ali?"},
		{"This is the number of players on a basketball team", "What is 5?"},
	}},
}

// DefaultBoard returns a fresh copy of the built-in five-by-five board.
// Question ids are "{category}-{row}" and values run 200 to 1000.
func DefaultBoard() []models.Category {
	cats := make([]models.Category, 0, len(defaultBoard))
	for ci, c := range defaultBoard {
		catID := fmt.Sprint(ci + 1)
		qs := make([]models.Question, 0, len(c.clues))
		for qi, clue := range c.clues {
			qs = append(qs, models.Question{
				ID:       fmt.Sprintf("%s-%d", catID, qi+1),
				Question: clue[0],
				Answer:   clue[1],
				Value:    (qi + 1) * 200,
			})
		}
		cats = append(cats, models.Category{ID: catID, Name: c.name, Questions: qs})
	}
	return cats
}
