package scoring

import (
	"sort"

	"classroom-quiz-service/internal/domain"
)

// Compact strips answers down to question id and value, ordered by question
// id. Unanswered entries are dropped.
func Compact(answers map[int]domain.Answer) []domain.CompactAnswer {
	out := make([]domain.CompactAnswer, 0, len(answers))
	for id, answer := range answers {
		if answer.IsZero() {
			continue
		}
		out = append(out, domain.CompactAnswer{QuestionID: id, Answer: answer})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// CompactDetails is Compact for already expanded answers.
func CompactDetails(details []domain.AnswerDetail) []domain.CompactAnswer {
	answers := make(map[int]domain.Answer, len(details))
	for _, d := range details {
		answers[d.QuestionID] = d.UserAnswer
	}
	return Compact(answers)
}

// AnswerMap turns compacted answers back into a lookup keyed by question id.
func AnswerMap(compact []domain.CompactAnswer) map[int]domain.Answer {
	answers := make(map[int]domain.Answer, len(compact))
	for _, c := range compact {
		answers[c.QuestionID] = c.Answer
	}
	return answers
}

// Expand re-joins stored answers with the bank, in bank order, recomputing
// correctness. Answers for questions no longer in the bank are ignored.
func Expand(bank []domain.Question, compact []domain.CompactAnswer) []domain.AnswerDetail {
	answers := AnswerMap(compact)
	details := make([]domain.AnswerDetail, 0, len(bank))
	for _, q := range bank {
		answer := answers[q.ID]
		correct := IsCorrect(q, answer)
		points := 0
		if correct {
			points = 1
		}
		details = append(details, domain.AnswerDetail{
			QuestionID:    q.ID,
			Type:          q.Type,
			Topic:         q.Topic,
			Prompt:        q.Prompt,
			Options:       q.Options,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       correct,
			Points:        points,
			Explanation:   q.Explanation,
		})
	}
	return details
}

// FilterToBank drops answers whose question id is not part of the bank.
func FilterToBank(bank []domain.Question, answers map[int]domain.Answer) map[int]domain.Answer {
	known := make(map[int]struct{}, len(bank))
	for _, q := range bank {
		known[q.ID] = struct{}{}
	}
	out := make(map[int]domain.Answer, len(answers))
	for id, answer := range answers {
		if _, ok := known[id]; ok {
			out[id] = answer
		}
	}
	return out
}
