// Package domain contains core domain types for the counselor application.
package domain

import "strings"

// TotalQuestions is the number of guided onboarding questions.
const TotalQuestions = 8

// QuestionAnswer is a single onboarding answer keyed by its question number.
type QuestionAnswer struct {
	QuestionNumber int    `json:"questionNumber"`
	Answer         string `json:"answer"`
}

// UserProfile identifies a student and carries the onboarding answers.
type UserProfile struct {
	ID             string           `json:"id,omitempty"`
	Name           string           `json:"name"`
	Email          string           `json:"email,omitempty"`
	Phone          string           `json:"phone,omitempty"`
	Grade          string           `json:"grade"`
	GPA            string           `json:"gpa"`
	GPAType        string           `json:"gpaType,omitempty"`
	DreamSchool    string           `json:"dreamSchool,omitempty"`
	Major          string           `json:"major,omitempty"`
	SATScore       string           `json:"satScore,omitempty"`
	ACTScore       string           `json:"actScore,omitempty"`
	StrongSubjects []string         `json:"strongSubjects,omitempty"`
	WeakSubjects   []string         `json:"weakSubjects,omitempty"`
	RegularCourses []string         `json:"regularCourses,omitempty"`
	APCourses      []string         `json:"apCourses,omitempty"`
	Honors         []string         `json:"honors,omitempty"`
	QuestionsAsked int              `json:"questionsAsked"`
	QuestionsLeft  *int             `json:"questionsLeft,omitempty"`
	Answers        []QuestionAnswer `json:"answers,omitempty"`
}

// Remaining returns a questionsLeft counter set to n.
func Remaining(n int) *int {
	return &n
}

// IsOnboardingComplete reports whether the guided questions are finished.
// A profile without a questionsLeft counter is only complete once it holds
// every answer.
func (p *UserProfile) IsOnboardingComplete() bool {
	if p.QuestionsLeft != nil && *p.QuestionsLeft == 0 {
		return true
	}
	return len(p.Answers) >= TotalQuestions
}

// Left returns the questions still to ask, counting missing answers when
// the profile carries no counter.
func (p *UserProfile) Left() int {
	if p.QuestionsLeft != nil {
		return *p.QuestionsLeft
	}
	return max(0, TotalQuestions-len(p.Answers))
}

// MissingRequiredFields returns the required fields that are empty, in order.
func (p *UserProfile) MissingRequiredFields() []string {
	var missing []string
	if strings.TrimSpace(p.Grade) == "" {
		missing = append(missing, "grade")
	}
	if strings.TrimSpace(p.GPA) == "" {
		missing = append(missing, "gpa")
	}
	return missing
}

// GPAScale returns the GPA type or "unweighted" when none was given.
func (p *UserProfile) GPAScale() string {
	if p.GPAType == "" {
		return "unweighted"
	}
	return p.GPAType
}

// RecordAnswer appends the next onboarding answer and advances the counters.
// The new answer is numbered after the questions already asked.
func (p *UserProfile) RecordAnswer(answer string) QuestionAnswer {
	qa := QuestionAnswer{QuestionNumber: p.QuestionsAsked + 1, Answer: answer}
	p.Answers = append(p.Answers, qa)
	p.QuestionsAsked++
	p.QuestionsLeft = Remaining(max(0, p.Left()-1))
	return qa
}
