package engine

import "github.com/claude/repcycle/internal/models"

// advanceCursor computes the position after completing the session at cur.
// Rolls into the next week when the completed session was the week's last,
// and reports finished (with writeCursor=false, there is nothing further to
// point to) when the program's last week is exhausted. The cursor never
// skips and never repeats a session.
func advanceCursor(cur models.Cursor, sessionsInCurrentWeek, totalWeeks int) (next models.Cursor, writeCursor bool) {
	next = models.Cursor{
		Week:         cur.Week,
		SessionIndex: cur.SessionIndex + 1,
	}
	if next.SessionIndex > sessionsInCurrentWeek {
		next.Week = cur.Week + 1
		next.SessionIndex = 1
	}
	if next.Week > totalWeeks {
		next.Finished = true
		return next, false
	}
	return next, true
}
