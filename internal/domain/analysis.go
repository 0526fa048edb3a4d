package domain

import "fmt"

// College is a single school recommendation.
type College struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AverageGPA  string `json:"averageGpa"`
}

// CollegeRecommendations groups target, reach and safety picks.
type CollegeRecommendations struct {
	Target *College `json:"target"`
	Reach  *College `json:"reach"`
	Safety *College `json:"safety"`
}

// ActionItem is a prioritized recommendation.
type ActionItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ActionItems holds recommendations by priority.
type ActionItems struct {
	HighPriority   []ActionItem `json:"highPriority"`
	MediumPriority []ActionItem `json:"mediumPriority"`
	LowPriority    []ActionItem `json:"lowPriority"`
}

// Program is a suggested enrichment program.
type Program struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Programs holds suggested programs by category.
type Programs struct {
	Academic     []Program `json:"academic"`
	Research     []Program `json:"research"`
	SocialImpact []Program `json:"socialImpact"`
	Summer       []Program `json:"summer"`
	Industry     []Program `json:"industry"`
}

// Analysis is the college-readiness report generated from a profile.
type Analysis struct {
	CurrentStatus          string                 `json:"currentStatus"`
	CollegeRecommendations CollegeRecommendations `json:"collegeRecommendations"`
	ActionItems            ActionItems            `json:"actionItems"`
	Programs               Programs               `json:"programs"`
}

// WithDefaults fills every section the model left out.
func (a Analysis) WithDefaults(p *UserProfile) Analysis {
	if a.CurrentStatus == "" {
		a.CurrentStatus = fmt.Sprintf("%s is currently in %s with a GPA of %s.", p.Name, p.Grade, p.GPA)
	}

	recs := &a.CollegeRecommendations
	if recs.Target == nil {
		recs.Target = &College{
			Name:        p.DreamSchool,
			Description: "Target school based on your academic profile",
			AverageGPA:  "3.7",
		}
	}
	if recs.Reach == nil {
		recs.Reach = &College{
			Name:        "Stanford University",
			Description: "Reach school that would be challenging but possible",
			AverageGPA:  "3.9",
		}
	}
	if recs.Safety == nil {
		recs.Safety = &College{
			Name:        "University of Washington",
			Description: "Safety school with higher acceptance rate",
			AverageGPA:  "3.2",
		}
	}

	items := &a.ActionItems
	if len(items.HighPriority) == 0 {
		items.HighPriority = []ActionItem{{
			Title:       "GPA Improvement",
			Description: "Focus on maintaining or improving GPA in core academic subjects",
		}}
	}
	if len(items.MediumPriority) == 0 {
		items.MediumPriority = []ActionItem{{
			Title:       "Standardized Test Prep",
			Description: "Begin SAT/ACT preparation with practice tests and study materials",
		}}
	}
	if len(items.LowPriority) == 0 {
		items.LowPriority = []ActionItem{{
			Title:       "College Essay Planning",
			Description: "Start brainstorming personal statement topics",
		}}
	}

	progs := &a.Programs
	for _, list := range []*[]Program{&progs.Academic, &progs.Research, &progs.SocialImpact, &progs.Summer, &progs.Industry} {
		if *list == nil {
			*list = []Program{}
		}
	}
	return a
}
