package models

import (
	"time"
)

// User is a registered player, identified by their Codeforces handle.
// Accounts start unconfirmed; ownership of the handle is proven by submitting
// to problem 4A before the confirmation deadline (see ConfirmationService).
type User struct {
	ID                   string     `json:"id" gorm:"primaryKey"`
	Handle               string     `json:"handle" gorm:"uniqueIndex;not null"`
	PasswordHash         string     `json:"-" gorm:"not null"`
	Rating               int        `json:"rating" gorm:"default:1000;not null;index"`
	IsConfirmed          bool       `json:"is_confirmed" gorm:"default:false"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline,omitempty"`
	CreatedAt            time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// RatingHistory is the immutable record of one rating application.
// Exactly one pair of rows (one per participant) may exist per contest;
// their presence is the guard that keeps rating changes from being applied
// twice for the same contest.
type RatingHistory struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"not null;index"`
	ContestID    string    `json:"contest_id" gorm:"not null;index"`
	RatingBefore int       `json:"rating_before" gorm:"not null"`
	RatingAfter  int       `json:"rating_after" gorm:"not null"`
	RatingChange int       `json:"rating_change" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}
