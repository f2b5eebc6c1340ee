package models

import (
	"fmt"
	"math/bits"
	"time"
)

const (
	TournamentStatusPending   = "pending"
	TournamentStatusActive    = "active"
	TournamentStatusCompleted = "completed"

	TournamentSlotPending  = "PENDING"
	TournamentSlotAccepted = "ACCEPTED"

	TournamentInviteStatusPending  = "pending"
	TournamentInviteStatusAccepted = "accepted"
	TournamentInviteStatusRejected = "rejected"

	TournamentMatchStatusScheduled = "scheduled"
	TournamentMatchStatusActive    = "active"
	TournamentMatchStatusCompleted = "completed"
)

// ValidParticipantCounts are the bracket sizes a tournament may be created with.
var ValidParticipantCounts = map[int]bool{4: true, 8: true, 16: true, 32: true, 64: true}

// Tournament is a single-elimination bracket of 1v1 contests.
type Tournament struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	CreatorID       string     `json:"creator_id" gorm:"not null;index"`
	NumParticipants int        `json:"num_participants" gorm:"not null"`
	Difficulty      int        `json:"difficulty" gorm:"not null"` // 1-4
	Status          string     `json:"status" gorm:"default:'pending';index"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// NumRounds is log2 of the participant count.
func (t *Tournament) NumRounds() int {
	return bits.Len(uint(t.NumParticipants)) - 1
}

var tournamentStatusOrder = map[string]int{
	TournamentStatusPending:   0,
	TournamentStatusActive:    1,
	TournamentStatusCompleted: 2,
}

// Advance moves the tournament forward one status; never backwards.
func (t *Tournament) Advance(next string) error {
	from, ok := tournamentStatusOrder[t.Status]
	to, ok2 := tournamentStatusOrder[next]
	if !ok || !ok2 || to != from+1 {
		return fmt.Errorf("illegal tournament transition %s -> %s", t.Status, next)
	}
	t.Status = next
	return nil
}

// TournamentSlot is a numbered bracket position. All N slots are created with
// the tournament and never added or removed afterwards.
type TournamentSlot struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;index"`
	SlotNumber   int       `json:"slot_number" gorm:"not null"`
	UserID       *string   `json:"user_id,omitempty" gorm:"index"`
	Status       string    `json:"status" gorm:"default:'PENDING'"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TournamentInvite proposes filling one slot with one user. A slot may
// accumulate many invites over time but at most one accepted one.
type TournamentInvite struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	TournamentID  string     `json:"tournament_id" gorm:"not null;index"`
	SlotID        string     `json:"slot_id" gorm:"not null;index"`
	InvitedUserID string     `json:"invited_user_id" gorm:"not null;index"`
	Status        string     `json:"status" gorm:"default:'pending'"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

// TournamentRoundSchedule fixes the start time of one round. Each round
// implicitly spans ContestDuration. Immutable once the tournament is active.
type TournamentRoundSchedule struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;index"`
	RoundNumber  int       `json:"round_number" gorm:"not null"`
	StartTime    time.Time `json:"start_time" gorm:"not null"`
}

// TournamentMatch is one bracket pairing. MatchNumber is the 1-based ordinal
// within the round, assigned at generation time; winners advance paired in
// MatchNumber order, which preserves the creation order of their source
// matches.
type TournamentMatch struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	TournamentID string     `json:"tournament_id" gorm:"not null;index;index:idx_round_match,unique"`
	RoundNumber  int        `json:"round_number" gorm:"not null;index:idx_round_match,unique"`
	MatchNumber  int        `json:"match_number" gorm:"not null;index:idx_round_match,unique"`
	Slot1ID      string     `json:"slot1_id" gorm:"not null"`
	Slot2ID      string     `json:"slot2_id" gorm:"not null"`
	User1ID      string     `json:"user1_id" gorm:"not null"`
	User2ID      string     `json:"user2_id" gorm:"not null"`
	ContestID    *string    `json:"contest_id,omitempty" gorm:"uniqueIndex"`
	WinnerID     *string    `json:"winner_id,omitempty"`
	Status       string     `json:"status" gorm:"default:'scheduled'"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

var matchStatusOrder = map[string]int{
	TournamentMatchStatusScheduled: 0,
	TournamentMatchStatusActive:    1,
	TournamentMatchStatusCompleted: 2,
}

// Advance moves the match forward; scheduled -> completed is allowed because
// a match whose contest finishes is completed regardless of whether anyone
// observed the active phase.
func (m *TournamentMatch) Advance(next string) error {
	from, ok := matchStatusOrder[m.Status]
	to, ok2 := matchStatusOrder[next]
	if !ok || !ok2 || to <= from {
		return fmt.Errorf("illegal match transition %s -> %s", m.Status, next)
	}
	m.Status = next
	return nil
}
