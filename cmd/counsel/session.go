package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sevenedu/counselor/internal/client"
	"github.com/sevenedu/counselor/internal/domain"
	"github.com/sevenedu/counselor/internal/state"
	"github.com/sevenedu/counselor/internal/stream"
)

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// prompter reads one line of input. *liner.State satisfies it.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// session is one interactive counseling session bound to local state.
type session struct {
	st       *state.Store
	api      *client.Client
	out      io.Writer
	render   func(markdown string) string
	stream   bool
	advanced bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Interrupt cancels the in-flight request, if any. It reports whether
// there was one.
func (s *session) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

func (s *session) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return ctx, func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}
}

// ensureProfile collects the basic profile when none is saved.
func (s *session) ensureProfile(ctx context.Context, in prompter) error {
	if s.st.Profile() != nil {
		return nil
	}
	fmt.Fprintln(s.out, "Welcome to 7Edu! Let's start with a few details about you.")

	ask := func(label string, required bool) (string, error) {
		for {
			v, err := in.Prompt(label + ": ")
			if err != nil {
				return "", err
			}
			v = strings.TrimSpace(v)
			if v != "" || !required {
				return v, nil
			}
			fmt.Fprintf(s.out, "%s is required.\n", label)
		}
	}

	var p domain.UserProfile
	fields := []struct {
		label    string
		required bool
		dst      *string
	}{
		{"Name", true, &p.Name},
		{"Grade (e.g. 11th)", true, &p.Grade},
		{"GPA", true, &p.GPA},
		{"GPA type (weighted/unweighted)", false, &p.GPAType},
		{"Dream school", false, &p.DreamSchool},
		{"Intended major", false, &p.Major},
		{"SAT score", false, &p.SATScore},
		{"ACT score", false, &p.ACTScore},
	}
	for _, f := range fields {
		v, err := ask(f.label, f.required)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	lists := []struct {
		label string
		dst   *[]string
	}{
		{"Strong subjects (comma separated)", &p.StrongSubjects},
		{"Subjects to improve (comma separated)", &p.WeakSubjects},
		{"AP courses (comma separated)", &p.APCourses},
		{"Regular courses (comma separated)", &p.RegularCourses},
		{"Honors and awards (comma separated)", &p.Honors},
	}
	for _, l := range lists {
		v, err := ask(l.label, false)
		if err != nil {
			return err
		}
		*l.dst = splitList(v)
	}

	saved, err := s.st.SaveOnboarding(ctx, p)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	fmt.Fprintf(s.out, "Thanks, %s! I'll ask you %d questions to get to know you.\n", saved.Name, domain.TotalQuestions)
	return nil
}

// currentChat returns the selected chat, creating one when none exists.
func (s *session) currentChat(ctx context.Context) (domain.Chat, error) {
	if c, ok := s.st.CurrentChat(); ok {
		return c, nil
	}
	return s.st.CreateChat(ctx, s.profileName())
}

func (s *session) profileName() string {
	if p := s.st.Profile(); p != nil {
		return p.Name
	}
	return ""
}

// Handle processes one input line.
func (s *session) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "/") {
		return s.command(ctx, line)
	}
	return s.chat(ctx, line)
}

func (s *session) command(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return errQuit
	case "/new":
		c, err := s.st.CreateChat(ctx, s.profileName())
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, c.Messages[0].Content)
	case "/chats":
		cur, _ := s.st.CurrentChat()
		for i, c := range s.st.Chats() {
			marker := " "
			if c.ID == cur.ID {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %d. %s (%d messages)\n", marker, i+1, c.Title, len(c.Messages))
		}
	case "/switch":
		n, err := strconv.Atoi(arg)
		list := s.st.Chats()
		if err != nil || n < 1 || n > len(list) {
			return fmt.Errorf("usage: /switch <1-%d>", len(list))
		}
		if err := s.st.SetCurrentChat(list[n-1].ID); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Switched to %q\n", list[n-1].Title)
	case "/rename":
		if arg == "" {
			return errors.New("usage: /rename <title>")
		}
		c, err := s.currentChat(ctx)
		if err != nil {
			return err
		}
		return s.st.RenameChat(ctx, c.ID, arg)
	case "/delete":
		c, ok := s.st.CurrentChat()
		if !ok {
			return errors.New("no chat selected")
		}
		if err := s.st.DeleteChat(ctx, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Deleted %q\n", c.Title)
	case "/analysis":
		return s.analysis(ctx)
	case "/basic":
		s.advanced = false
		fmt.Fprintln(s.out, "Basic mode: replies use your profile summary only.")
	case "/advanced":
		s.advanced = true
		fmt.Fprintln(s.out, "Advanced mode: full counselor guidance enabled.")
	case "/help":
		fmt.Fprintln(s.out, helpText)
	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

const helpText = `Commands:
  /new              start a new conversation
  /chats            list conversations
  /switch <n>       switch to conversation n
  /rename <title>   rename the current conversation
  /delete           delete the current conversation
  /analysis         generate your college-readiness analysis
  /basic            use basic mode
  /advanced         use advanced mode
  /quit             exit`

// chat sends text in the current chat and prints the reply.
func (s *session) chat(ctx context.Context, text string) error {
	p := s.st.Profile()
	if p == nil {
		return state.ErrNoProfile
	}
	c, err := s.currentChat(ctx)
	if err != nil {
		return err
	}
	if _, err := s.st.AddMessage(ctx, c.ID, domain.RoleUser, text); err != nil {
		return err
	}
	history, err := s.st.History(c.ID)
	if err != nil {
		return err
	}

	req := client.Request{Messages: history, Profile: *p, AdvancedMode: s.advanced}
	reqCtx, done := s.begin(ctx)
	defer done()

	var reply string
	if s.stream {
		reply, err = s.streamReply(reqCtx, req)
	} else {
		var r *client.Reply
		r, err = s.api.Send(reqCtx, req)
		if err == nil {
			reply = r.Message
			fmt.Fprint(s.out, s.render(reply))
		}
	}
	if reply != "" {
		if _, addErr := s.st.AddMessage(ctx, c.ID, domain.RoleAssistant, reply); addErr != nil {
			return addErr
		}
	}
	if err != nil {
		return err
	}

	if !p.IsOnboardingComplete() {
		qa, err := s.st.RecordAnswer(ctx, text)
		if err != nil {
			return err
		}
		if qa.QuestionNumber >= domain.TotalQuestions {
			fmt.Fprintln(s.out, "\nOnboarding complete! Ask me anything about your college journey, or try /analysis.")
		}
	}
	return nil
}

// streamReply prints deltas as they arrive and returns whatever text was
// received, even when the stream fails part way.
func (s *session) streamReply(ctx context.Context, req client.Request) (string, error) {
	var (
		received strings.Builder
		failure  error
	)
	s.api.Stream(ctx, req, stream.Handler{
		OnChunk: func(text string) {
			received.WriteString(text)
			fmt.Fprint(s.out, text)
		},
		OnError: func(err error) { failure = err },
	})
	fmt.Fprintln(s.out)

	if errors.Is(failure, stream.ErrCanceled) {
		fmt.Fprintln(s.out, "[cancelled]")
		return received.String(), nil
	}
	return received.String(), failure
}

func (s *session) analysis(ctx context.Context) error {
	p := s.st.Profile()
	if p == nil {
		return state.ErrNoProfile
	}
	reqCtx, done := s.begin(ctx)
	defer done()

	fmt.Fprintln(s.out, "Generating your analysis...")
	a, err := s.api.Analyze(reqCtx, *p)
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, s.render(analysisMarkdown(a)))
	return nil
}

func analysisMarkdown(a *domain.Analysis) string {
	var b strings.Builder
	b.WriteString("# College Readiness Analysis\n\n")
	b.WriteString(a.CurrentStatus + "\n\n")

	b.WriteString("## College Recommendations\n\n")
	for _, pick := range []struct {
		label   string
		college *domain.College
	}{
		{"Reach", a.CollegeRecommendations.Reach},
		{"Target", a.CollegeRecommendations.Target},
		{"Safety", a.CollegeRecommendations.Safety},
	} {
		if pick.college == nil {
			continue
		}
		fmt.Fprintf(&b, "- **%s: %s** (average GPA %s). %s\n", pick.label, pick.college.Name, pick.college.AverageGPA, pick.college.Description)
	}

	b.WriteString("\n## Action Items\n\n")
	for _, group := range []struct {
		label string
		items []domain.ActionItem
	}{
		{"High priority", a.ActionItems.HighPriority},
		{"Medium priority", a.ActionItems.MediumPriority},
		{"Low priority", a.ActionItems.LowPriority},
	} {
		for _, item := range group.items {
			fmt.Fprintf(&b, "- *%s*: **%s**. %s\n", group.label, item.Title, item.Description)
		}
	}

	programs := []struct {
		label string
		list  []domain.Program
	}{
		{"Academic", a.Programs.Academic},
		{"Research", a.Programs.Research},
		{"Social impact", a.Programs.SocialImpact},
		{"Summer", a.Programs.Summer},
		{"Industry", a.Programs.Industry},
	}
	header := false
	for _, group := range programs {
		for _, prog := range group.list {
			if !header {
				b.WriteString("\n## Programs\n\n")
				header = true
			}
			fmt.Fprintf(&b, "- *%s*: **%s**. %s\n", group.label, prog.Name, prog.Description)
		}
	}
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
