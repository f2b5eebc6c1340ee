package models

import (
	"time"
)

const (
	ChallengeStatusPending  = "pending"
	ChallengeStatusAccepted = "accepted"
	ChallengeStatusRejected = "rejected"
	ChallengeStatusExpired  = "expired"
)

// Challenge is a 1v1 duel proposal. Accepting it creates the backing Contest.
type Challenge struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	ChallengerID       string    `json:"challenger_id" gorm:"not null;index"`
	ChallengedID       string    `json:"challenged_id" gorm:"not null;index"`
	Difficulty         int       `json:"difficulty" gorm:"not null"` // 1-4
	SuggestedStartTime time.Time `json:"suggested_start_time" gorm:"not null"`
	Status             string    `json:"status" gorm:"default:'pending'"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
}
