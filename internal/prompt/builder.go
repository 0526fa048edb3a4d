package prompt

import (
	"fmt"
	"strings"

	"github.com/sevenedu/counselor/internal/domain"
)

// Mode selects how much guidance surrounds the student summary.
type Mode int

const (
	// Advanced wraps the summary with the counselor persona and guidelines.
	Advanced Mode = iota
	// Basic sends the student summary alone.
	Basic
)

// ModeFor maps the wire advancedMode flag to a Mode.
func ModeFor(advanced bool) Mode {
	if advanced {
		return Advanced
	}
	return Basic
}

func (m Mode) String() string {
	if m == Basic {
		return "basic"
	}
	return "advanced"
}

var topicLabels = map[int]string{
	1: "Sports Activities",
	2: "Music Activities",
	3: "Art Activities",
	4: "Club Participation",
	5: "Volunteer Work",
	6: "Character Traits",
	7: "Academic Achievements",
	8: "Additional Information",
}

// TopicLabel returns the onboarding topic for a question number.
func TopicLabel(questionNumber int) string {
	if label, ok := topicLabels[questionNumber]; ok {
		return label
	}
	return fmt.Sprintf("Question %d", questionNumber)
}

// Builder produces system turns from a profile and the configured templates.
type Builder struct {
	tmpl *Templates
}

// NewBuilder creates a Builder. A nil t uses the embedded templates.
func NewBuilder(t *Templates) (*Builder, error) {
	if t == nil {
		var err error
		if t, err = DefaultTemplates(); err != nil {
			return nil, err
		}
	}
	return &Builder{tmpl: t}, nil
}

// SystemMessage builds the counselor system turn for the given mode.
// The student summary is always present.
func (b *Builder) SystemMessage(p *domain.UserProfile, mode Mode) domain.ChatTurn {
	summary := StudentSummary(p)
	if mode == Basic {
		return domain.ChatTurn{Role: domain.RoleSystem, Content: "\n" + summary + "\n"}
	}

	var sb strings.Builder
	sb.WriteString(b.tmpl.Counselor.Preamble)
	sb.WriteString("\n")
	sb.WriteString(summary)
	sb.WriteString("\n")
	sb.WriteString(b.tmpl.Counselor.Guidelines)
	return domain.ChatTurn{Role: domain.RoleSystem, Content: sb.String()}
}

// Apply returns history with every system turn removed and the counselor
// system turn placed first.
func (b *Builder) Apply(history []domain.ChatTurn, p *domain.UserProfile, mode Mode) []domain.ChatTurn {
	return withSystem(history, b.SystemMessage(p, mode))
}

// GuidedSystemMessage builds the system turn for the onboarding interview.
func (b *Builder) GuidedSystemMessage(p *domain.UserProfile) domain.ChatTurn {
	var sb strings.Builder
	sb.WriteString(b.tmpl.Guided.Intro)
	sb.WriteString("\n\nCurrent Student Context:\n")
	fmt.Fprintf(&sb, "- Grade: %s\n", p.Grade)
	fmt.Fprintf(&sb, "- GPA: %s (%s)\n", p.GPA, p.GPAScale())
	fmt.Fprintf(&sb, "- Dream School: %s\n", orDefault(p.DreamSchool, "Not specified"))
	fmt.Fprintf(&sb, "- Intended Major: %s\n", orDefault(p.Major, "Not specified"))
	fmt.Fprintf(&sb, "- Test Scores: %s\n", testScores(p))
	fmt.Fprintf(&sb, "- Strong Subjects: %s\n", joinOr(p.StrongSubjects, "Not specified"))
	fmt.Fprintf(&sb, "- Weak Subjects: %s\n", joinOr(p.WeakSubjects, "Not specified"))
	sb.WriteString("\n")
	sb.WriteString(b.tmpl.Guided.Guidelines)
	return domain.ChatTurn{Role: domain.RoleSystem, Content: sb.String()}
}

// Guided returns history prepared for the onboarding interview.
func (b *Builder) Guided(history []domain.ChatTurn, p *domain.UserProfile) []domain.ChatTurn {
	return withSystem(history, b.GuidedSystemMessage(p))
}

// Analysis returns the system and user turns for a readiness analysis.
func (b *Builder) Analysis(p *domain.UserProfile) []domain.ChatTurn {
	var sb strings.Builder
	sb.WriteString(b.tmpl.Analysis.Request)
	sb.WriteString("\n\nStudent Background Information:\n")
	fmt.Fprintf(&sb, "- Name: %s\n", orDefault(p.Name, "Not specified"))
	fmt.Fprintf(&sb, "- Email: %s\n", orDefault(p.Email, "Not specified"))
	fmt.Fprintf(&sb, "- Phone: %s\n", orDefault(p.Phone, "Not specified"))
	fmt.Fprintf(&sb, "- Grade: %s\n", orDefault(p.Grade, "Not specified"))
	fmt.Fprintf(&sb, "- GPA: %s (%s)\n", orDefault(p.GPA, "Not specified"), p.GPAScale())
	fmt.Fprintf(&sb, "- Dream School: %s\n", orDefault(p.DreamSchool, "Not specified"))
	fmt.Fprintf(&sb, "- Intended Major: %s\n", orDefault(p.Major, "Not specified"))
	fmt.Fprintf(&sb, "- SAT Score: %s\n", orDefault(p.SATScore, "Not specified"))
	fmt.Fprintf(&sb, "- ACT Score: %s\n", orDefault(p.ACTScore, "Not specified"))
	fmt.Fprintf(&sb, "- Regular Courses: %s\n", joinOr(p.RegularCourses, "None specified"))
	fmt.Fprintf(&sb, "- AP Courses: %s\n", joinOr(p.APCourses, "None specified"))
	sb.WriteString("\nAdditional Context from Parent Interviews:\n")
	for i, qa := range p.Answers {
		fmt.Fprintf(&sb, "Question %d: %s\n", i+1, qa.Answer)
	}
	sb.WriteString("\n")
	sb.WriteString(b.tmpl.Analysis.Closing)

	return []domain.ChatTurn{
		{Role: domain.RoleSystem, Content: b.tmpl.Analysis.System},
		{Role: domain.RoleUser, Content: sb.String()},
	}
}

// StudentSummary renders the deterministic profile summary block.
func StudentSummary(p *domain.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("Student Profile Summary:\n")
	fmt.Fprintf(&sb, "- Name: %s\n", orDefault(p.Name, "Not provided"))
	fmt.Fprintf(&sb, "- Grade: %s\n", p.Grade)
	fmt.Fprintf(&sb, "- GPA: %s (%s)\n", p.GPA, p.GPAScale())
	fmt.Fprintf(&sb, "- Dream School: %s\n", orDefault(p.DreamSchool, "Not specified"))
	fmt.Fprintf(&sb, "- Intended Major: %s\n", orDefault(p.Major, "Not specified"))
	fmt.Fprintf(&sb, "- Test Scores: %s\n", testScores(p))
	fmt.Fprintf(&sb, "- Academic Strengths: %s\n", joinOr(p.StrongSubjects, "Not specified"))
	fmt.Fprintf(&sb, "- Academic Weaknesses: %s\n", joinOr(p.WeakSubjects, "Not specified"))
	if len(p.RegularCourses) > 0 {
		fmt.Fprintf(&sb, "- Regular Courses: %s\n", strings.Join(p.RegularCourses, ", "))
	}
	if len(p.APCourses) > 0 {
		fmt.Fprintf(&sb, "- AP/Advanced Courses: %s\n", strings.Join(p.APCourses, ", "))
	}
	if len(p.Honors) > 0 {
		fmt.Fprintf(&sb, "- Honors: %s\n", strings.Join(p.Honors, ", "))
	}

	sb.WriteString("\nStudent Personal Information:\n")
	if len(p.Answers) == 0 {
		sb.WriteString("No personal information provided during onboarding\n")
		return sb.String()
	}
	for _, qa := range p.Answers {
		fmt.Fprintf(&sb, "- %s: %s\n", TopicLabel(qa.QuestionNumber), qa.Answer)
	}
	return sb.String()
}

func withSystem(history []domain.ChatTurn, system domain.ChatTurn) []domain.ChatTurn {
	out := make([]domain.ChatTurn, 0, len(history)+1)
	out = append(out, system)
	for _, turn := range history {
		if turn.Role == domain.RoleSystem {
			continue
		}
		out = append(out, turn)
	}
	return out
}

func testScores(p *domain.UserProfile) string {
	sat := "SAT: Not provided"
	if p.SATScore != "" {
		sat = "SAT: " + p.SATScore
	}
	act := "ACT: Not provided"
	if p.ACTScore != "" {
		act = "ACT: " + p.ACTScore
	}
	return sat + " " + act
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
