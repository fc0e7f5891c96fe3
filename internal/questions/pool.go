package questions

import (
	"strings"
	"time"

	"github.com/chadiek/interview-coach/internal/domain"
)

// staticPool is the last-resort question tier. It is small on purpose: it only
// has to top up a session when both the cache and the generator come up short.
var staticPool = map[domain.QuestionType][]domain.QuestionDraft{
	domain.QuestionTechnical: {
		{
			Type:       domain.QuestionTechnical,
			Text:       "Walk me through a system you designed or significantly changed. What were the hardest trade-offs?",
			Keywords:   []string{"trade-offs", "design", "constraints"},
			TimeBudget: 90 * time.Second,
		},
		{
			Type:       domain.QuestionTechnical,
			Text:       "Describe a production bug you diagnosed. How did you narrow it down, and what did you change afterwards?",
			Keywords:   []string{"debugging", "root cause", "postmortem"},
			TimeBudget: 90 * time.Second,
		},
		{
			Type:       domain.QuestionTechnical,
			Text:       "How do you decide when a piece of code needs a test, and what kind of test do you reach for first?",
			Keywords:   []string{"testing", "coverage", "unit vs integration"},
			TimeBudget: 60 * time.Second,
		},
	},
	domain.QuestionBehavioral: {
		{
			Type:       domain.QuestionBehavioral,
			Text:       "Tell me about a time you disagreed with a teammate on a technical decision. How was it resolved?",
			Keywords:   []string{"conflict", "collaboration", "compromise"},
			TimeBudget: 90 * time.Second,
		},
		{
			Type:       domain.QuestionBehavioral,
			Text:       "Describe a project that did not go as planned. What did you learn from it?",
			Keywords:   []string{"failure", "learning", "ownership"},
			TimeBudget: 90 * time.Second,
		},
	},
	domain.QuestionSituational: {
		{
			Type:       domain.QuestionSituational,
			Text:       "You inherit a service with no documentation and the only person who knew it has left. Where do you start?",
			Keywords:   []string{"onboarding", "reading code", "prioritization"},
			TimeBudget: 90 * time.Second,
		},
		{
			Type:       domain.QuestionSituational,
			Text:       "A release you shipped this morning is causing elevated error rates. What do you do in the first ten minutes?",
			Keywords:   []string{"incident", "rollback", "communication"},
			TimeBudget: 60 * time.Second,
		},
	},
	domain.QuestionGeneral: {
		{
			Type:       domain.QuestionGeneral,
			Text:       "Why are you interested in this role, and what would make the first six months a success for you?",
			Keywords:   []string{"motivation", "goals"},
			TimeBudget: 60 * time.Second,
		},
		{
			Type:       domain.QuestionGeneral,
			Text:       "What part of your current work would you most like to stop doing, and what would you do instead?",
			Keywords:   []string{"self-awareness", "growth"},
			TimeBudget: 60 * time.Second,
		},
	},
}

// staticDrafts returns up to n drafts, cycling through question types so a
// topped-up session still has some variety. Drafts whose text is already in
// seen are skipped.
func staticDrafts(n int, seen map[string]bool) []domain.QuestionDraft {
	order := []domain.QuestionType{
		domain.QuestionTechnical,
		domain.QuestionBehavioral,
		domain.QuestionSituational,
		domain.QuestionGeneral,
	}
	var out []domain.QuestionDraft
	idx := map[domain.QuestionType]int{}
	for len(out) < n {
		progressed := false
		for _, qt := range order {
			if len(out) >= n {
				break
			}
			pool := staticPool[qt]
			for idx[qt] < len(pool) {
				d := pool[idx[qt]]
				idx[qt]++
				if seen[normalize(d.Text)] {
					continue
				}
				seen[normalize(d.Text)] = true
				out = append(out, d)
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
