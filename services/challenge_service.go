package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"cp-vs-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChallengeService struct {
	DB       *gorm.DB
	Contests *ContestService
}

func NewChallengeService(db *gorm.DB, contests *ContestService) *ChallengeService {
	return &ChallengeService{DB: db, Contests: contests}
}

// Create validates and stores a pending challenge. The overlap pre-check
// gives the challenger early feedback; the authoritative check runs again at
// acceptance, when the contest is actually created.
func (s *ChallengeService) Create(challengerID, challengedHandle string, difficulty int, start time.Time) (*models.Challenge, error) {
	if difficulty < 1 || difficulty > 4 {
		return nil, fmt.Errorf("%w: difficulty must be between 1 and 4", ErrValidation)
	}
	if !start.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: suggested start time must be in the future", ErrValidation)
	}

	var challenged models.User
	if err := s.DB.First(&challenged, "handle = ?", challengedHandle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no user with handle %s", ErrNotFound, challengedHandle)
		}
		return nil, err
	}
	if challenged.ID == challengerID {
		return nil, fmt.Errorf("%w: cannot challenge yourself", ErrValidation)
	}

	var pending int64
	err := s.DB.Model(&models.Challenge{}).
		Where("status = ?", models.ChallengeStatusPending).
		Where("(challenger_id = ? AND challenged_id = ?) OR (challenger_id = ? AND challenged_id = ?)",
			challengerID, challenged.ID, challenged.ID, challengerID).
		Count(&pending).Error
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, fmt.Errorf("%w: a pending challenge between these users already exists", ErrConflict)
	}

	end := start.Add(models.ContestDuration)
	overlapping, err := s.Contests.findOverlapping(s.DB, []string{challengerID, challenged.ID}, start, end, false, false)
	if err != nil {
		return nil, err
	}
	if overlapping != nil {
		return nil, fmt.Errorf("%w: one of the users already has a contest at that time", ErrConflict)
	}

	challenge := &models.Challenge{
		ID:                 uuid.NewString(),
		ChallengerID:       challengerID,
		ChallengedID:       challenged.ID,
		Difficulty:         difficulty,
		SuggestedStartTime: start,
		Status:             models.ChallengeStatusPending,
	}
	if err := s.DB.Create(challenge).Error; err != nil {
		return nil, err
	}
	return challenge, nil
}

// Accept turns a pending challenge into a scheduled contest. Only the
// challenged user may accept. A challenge whose start time has passed is
// expired instead.
func (s *ChallengeService) Accept(challengeID, userID string) (*models.Contest, error) {
	challenge, err := s.fetch(challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.ChallengedID != userID {
		return nil, fmt.Errorf("%w: only the challenged user can accept", ErrForbidden)
	}
	if challenge.Status != models.ChallengeStatusPending {
		return nil, fmt.Errorf("%w: challenge is %s", ErrConflict, challenge.Status)
	}
	if !challenge.SuggestedStartTime.After(time.Now().UTC()) {
		s.expire(challenge)
		return nil, fmt.Errorf("%w: challenge start time has passed", ErrConflict)
	}

	contest, err := s.Contests.CreateContestFromChallenge(challenge)
	if err != nil {
		return nil, err
	}

	// Guarded so a concurrent accept flips the status exactly once; the
	// contest creation above is idempotent by challenge link either way.
	err = s.DB.Model(&models.Challenge{}).
		Where("id = ? AND status = ?", challenge.ID, models.ChallengeStatusPending).
		Update("status", models.ChallengeStatusAccepted).Error
	if err != nil {
		return nil, err
	}
	return contest, nil
}

// Reject declines a pending challenge. Only the challenged user may reject.
func (s *ChallengeService) Reject(challengeID, userID string) error {
	challenge, err := s.fetch(challengeID)
	if err != nil {
		return err
	}
	if challenge.ChallengedID != userID {
		return fmt.Errorf("%w: only the challenged user can reject", ErrForbidden)
	}
	if challenge.Status != models.ChallengeStatusPending {
		return fmt.Errorf("%w: challenge is %s", ErrConflict, challenge.Status)
	}
	return s.DB.Model(challenge).Update("status", models.ChallengeStatusRejected).Error
}

// ListForUser returns all challenges the user sent or received, newest first.
func (s *ChallengeService) ListForUser(userID string) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.Where("challenger_id = ? OR challenged_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&challenges).Error
	return challenges, err
}

// ExpirePendingSweep marks pending challenges whose proposed start has
// passed without a response.
func (s *ChallengeService) ExpirePendingSweep() {
	res := s.DB.Model(&models.Challenge{}).
		Where("status = ? AND suggested_start_time <= ?", models.ChallengeStatusPending, time.Now().UTC()).
		Update("status", models.ChallengeStatusExpired)
	if res.Error != nil {
		log.Printf("[Sweep] challenge expiry failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[Sweep] expired %d stale challenges", res.RowsAffected)
	}
}

func (s *ChallengeService) fetch(challengeID string) (*models.Challenge, error) {
	var challenge models.Challenge
	if err := s.DB.First(&challenge, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
		}
		return nil, err
	}
	return &challenge, nil
}

func (s *ChallengeService) expire(challenge *models.Challenge) {
	err := s.DB.Model(challenge).
		Where("status = ?", models.ChallengeStatusPending).
		Update("status", models.ChallengeStatusExpired).Error
	if err != nil {
		log.Printf("[Challenge] expiring challenge %s failed: %v", challenge.ID, err)
	}
}

// --- HTTP handlers ---

type createChallengeRequest struct {
	ChallengedHandle   string    `json:"challenged_handle"`
	Difficulty         int       `json:"difficulty"`
	SuggestedStartTime time.Time `json:"suggested_start_time"`
}

func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req createChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ChallengedHandle == "" {
		return c.Status(400).JSON(fiber.Map{"error": "challenged_handle is required"})
	}

	challenge, err := s.Create(userID, req.ChallengedHandle, req.Difficulty, req.SuggestedStartTime.UTC())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(challenge)
}

func (s *ChallengeService) GetMyChallenges(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	challenges, err := s.ListForUser(userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(challenges)
}

func (s *ChallengeService) AcceptChallenge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	contest, err := s.Accept(c.Params("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(contest)
}

func (s *ChallengeService) RejectChallenge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if err := s.Reject(c.Params("id"), userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": models.ChallengeStatusRejected})
}
