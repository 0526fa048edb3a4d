package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIsOnboardingComplete(t *testing.T) {
	t.Parallel()

	eight := make([]QuestionAnswer, TotalQuestions)
	tests := []struct {
		name    string
		profile UserProfile
		want    bool
	}{
		{"questions remaining", UserProfile{QuestionsLeft: Remaining(3)}, false},
		{"no questions left", UserProfile{QuestionsLeft: Remaining(0)}, true},
		{"eight answers", UserProfile{QuestionsLeft: Remaining(2), Answers: eight}, true},
		{"seven answers", UserProfile{QuestionsLeft: Remaining(1), Answers: eight[:7]}, false},
		{"no counter", UserProfile{}, false},
		{"no counter with eight answers", UserProfile{Answers: eight}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.profile.IsOnboardingComplete(); got != tt.want {
				t.Fatalf("IsOnboardingComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMissingRequiredFields(t *testing.T) {
	t.Parallel()

	p := UserProfile{Grade: "11th"}
	got := p.MissingRequiredFields()
	if len(got) != 1 || got[0] != "gpa" {
		t.Fatalf("expected [gpa], got %v", got)
	}

	p = UserProfile{}
	if got := strings.Join(p.MissingRequiredFields(), ", "); got != "grade, gpa" {
		t.Fatalf("expected grade, gpa, got %q", got)
	}
}

func TestRecordAnswerKeepsCountersConsistent(t *testing.T) {
	t.Parallel()

	p := UserProfile{QuestionsLeft: Remaining(TotalQuestions)}
	for i := 0; i < TotalQuestions+1; i++ {
		p.RecordAnswer("answer")
	}
	if p.Left() != 0 {
		t.Fatalf("QuestionsLeft should stop at 0, got %d", p.Left())
	}
	if p.Answers[2].QuestionNumber != 3 {
		t.Fatalf("expected third answer numbered 3, got %d", p.Answers[2].QuestionNumber)
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"user", "system", "assistant"} {
		if _, err := ParseRole(s); err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseRole("tool"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestLastIsUserSkipsSystemTurns(t *testing.T) {
	t.Parallel()

	turns := []ChatTurn{
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleSystem, Content: "context"},
	}
	if !LastIsUser(turns) {
		t.Fatal("expected last non-system turn to be the user")
	}
	if LastIsUser(turns[:1]) {
		t.Fatal("assistant-only history should not report a user turn")
	}
}

func TestAnalysisWithDefaults(t *testing.T) {
	t.Parallel()

	p := &UserProfile{Name: "Ada", Grade: "11th", GPA: "3.8", DreamSchool: "MIT"}
	a := Analysis{
		ActionItems: ActionItems{HighPriority: []ActionItem{{Title: "Keep it", Description: "custom"}}},
	}.WithDefaults(p)

	if a.CurrentStatus != "Ada is currently in 11th with a GPA of 3.8." {
		t.Fatalf("unexpected current status %q", a.CurrentStatus)
	}
	if a.CollegeRecommendations.Target.Name != "MIT" {
		t.Fatalf("target should default to dream school, got %q", a.CollegeRecommendations.Target.Name)
	}
	if a.CollegeRecommendations.Reach.Name != "Stanford University" {
		t.Fatalf("unexpected reach school %q", a.CollegeRecommendations.Reach.Name)
	}
	if a.ActionItems.HighPriority[0].Title != "Keep it" {
		t.Fatal("provided high priority items must be kept")
	}
	if a.ActionItems.LowPriority[0].Title != "College Essay Planning" {
		t.Fatalf("unexpected low priority default %q", a.ActionItems.LowPriority[0].Title)
	}

	data, err := json.Marshal(a.Programs)
	if err != nil {
		t.Fatalf("marshal programs: %v", err)
	}
	if strings.Contains(string(data), "null") {
		t.Fatalf("program lists must encode as arrays: %s", data)
	}
}
