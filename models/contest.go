package models

import (
	"fmt"
	"time"
)

const (
	ContestStatusScheduled = "scheduled"
	ContestStatusActive    = "active"
	ContestStatusCompleted = "completed"
)

// ContestDuration is fixed: every contest runs exactly two hours.
const ContestDuration = 2 * time.Hour

// ProblemIndices are the slots a contest's problem set may fill, in checking order.
var ProblemIndices = []string{"A", "B", "C", "D", "E", "F"}

// ProblemPoints maps a problem index to its fixed point value.
var ProblemPoints = map[string]int{
	"A": 100,
	"B": 200,
	"C": 300,
	"D": 400,
	"E": 500,
	"F": 600,
}

// Contest is a timed 1v1 match. It is created either from an accepted
// Challenge or for a TournamentMatch (at most one of the two links is set).
type Contest struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	ChallengeID       *string   `json:"challenge_id,omitempty" gorm:"uniqueIndex"`
	TournamentMatchID *string   `json:"tournament_match_id,omitempty" gorm:"uniqueIndex"`
	User1ID           string    `json:"user1_id" gorm:"not null;index"`
	User2ID           string    `json:"user2_id" gorm:"not null;index"`
	Difficulty        int       `json:"difficulty" gorm:"not null"` // 1-4
	StartTime         time.Time `json:"start_time" gorm:"not null;index"`
	EndTime           time.Time `json:"end_time" gorm:"not null"`
	Status            string    `json:"status" gorm:"default:'scheduled';index"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
}

var contestStatusOrder = map[string]int{
	ContestStatusScheduled: 0,
	ContestStatusActive:    1,
	ContestStatusCompleted: 2,
}

// Advance moves the contest to the next status. Transitions are forward-only
// and single-step; anything else is a programming error surfaced to the caller.
func (c *Contest) Advance(next string) error {
	from, ok := contestStatusOrder[c.Status]
	to, ok2 := contestStatusOrder[next]
	if !ok || !ok2 || to != from+1 {
		return fmt.Errorf("illegal contest transition %s -> %s", c.Status, next)
	}
	c.Status = next
	return nil
}

// ContestProblem is one slot (A-F) of a contest's problem set. SolvedBy is
// set once by the first participant the judge reports a solving submission
// for; it is never overwritten.
type ContestProblem struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	ContestID    string     `json:"contest_id" gorm:"not null;index"`
	ProblemIndex string     `json:"problem_index" gorm:"not null"` // A-F
	ProblemCode  string     `json:"problem_code" gorm:"not null"`  // e.g. "1234A"
	ProblemURL   string     `json:"problem_url" gorm:"not null"`
	Points       int        `json:"points" gorm:"not null"`
	Division     int        `json:"division" gorm:"not null"`
	SolvedBy     *string    `json:"solved_by,omitempty" gorm:"index"`
	SolvedAt     *time.Time `json:"solved_at,omitempty"`
}

// ContestScore is the per-participant running total. It is a projection,
// recomputed in full from the solved problems whenever one of them changes,
// never incremented in place.
type ContestScore struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	ContestID   string    `json:"contest_id" gorm:"not null;index:idx_contest_user,unique"`
	UserID      string    `json:"user_id" gorm:"not null;index:idx_contest_user,unique"`
	TotalPoints int       `json:"total_points" gorm:"default:0"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
