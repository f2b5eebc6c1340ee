package services

import (
	"context"
	"log"
	"time"

	"cp-vs-backend/models"

	"gorm.io/gorm"
)

// confirmationProblem is the problem an unconfirmed user must submit to in
// order to prove they own the handle ("Watermelon"). Any verdict counts.
const confirmationProblem = "4A"

// ConfirmationService confirms handle ownership for new accounts. A user
// registers with a handle, then has until their deadline to submit anything
// to the confirmation problem from that handle.
type ConfirmationService struct {
	DB    *gorm.DB
	Judge JudgeAPI
}

func NewConfirmationService(db *gorm.DB, judge JudgeAPI) *ConfirmationService {
	return &ConfirmationService{DB: db, Judge: judge}
}

// Sweep checks every unconfirmed user whose deadline has not passed. Judge
// failures are contained per user; the next sweep retries.
func (s *ConfirmationService) Sweep(ctx context.Context) {
	var users []models.User
	err := s.DB.Where("is_confirmed = ? AND confirmation_deadline > ?", false, time.Now().UTC()).
		Find(&users).Error
	if err != nil {
		log.Printf("[Confirmation] pending user query failed: %v", err)
		return
	}

	for i := range users {
		if err := s.checkUser(ctx, &users[i]); err != nil {
			log.Printf("[Confirmation] check failed for %s: %v", users[i].Handle, err)
		}
	}
}

func (s *ConfirmationService) checkUser(ctx context.Context, user *models.User) error {
	since := user.CreatedAt.Unix()
	sub, err := s.Judge.CheckAnySubmission(ctx, user.Handle, confirmationProblem, since)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	err = s.DB.Model(&models.User{}).
		Where("id = ? AND is_confirmed = ?", user.ID, false).
		Updates(map[string]interface{}{"is_confirmed": true, "confirmation_deadline": nil}).Error
	if err != nil {
		return err
	}
	log.Printf("[Confirmation] handle %s confirmed", user.Handle)
	return nil
}
