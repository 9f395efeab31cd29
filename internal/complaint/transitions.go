package complaint

import (
	"strings"

	"raggingwatch/internal/models"
)

// transitions lists, per current status, the statuses an admin may move a
// complaint to. Every state is reachable from every state, itself included,
// so resolved and closed complaints can be reopened.
var transitions = map[models.Status][]models.Status{
	models.StatusPending: {
		models.StatusPending, models.StatusUnderReview, models.StatusInvestigating, models.StatusResolved, models.StatusClosed,
	},
	models.StatusUnderReview: {
		models.StatusPending, models.StatusUnderReview, models.StatusInvestigating, models.StatusResolved, models.StatusClosed,
	},
	models.StatusInvestigating: {
		models.StatusPending, models.StatusUnderReview, models.StatusInvestigating, models.StatusResolved, models.StatusClosed,
	},
	models.StatusResolved: {
		models.StatusPending, models.StatusUnderReview, models.StatusInvestigating, models.StatusResolved, models.StatusClosed,
	},
	models.StatusClosed: {
		models.StatusPending, models.StatusUnderReview, models.StatusInvestigating, models.StatusResolved, models.StatusClosed,
	},
}

func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus accepts the display form ("Under Review") case-insensitively,
// with underscores standing in for spaces.
func ParseStatus(s string) (models.Status, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	for _, st := range models.Statuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}
