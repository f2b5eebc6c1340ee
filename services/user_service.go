package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cp-vs-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// confirmationWindow is how long a new account has to prove handle ownership.
const confirmationWindow = 24 * time.Hour

const tokenLifetime = 72 * time.Hour

type UserService struct {
	DB        *gorm.DB
	Judge     JudgeAPI
	JWTSecret string
}

func NewUserService(db *gorm.DB, judge JudgeAPI, jwtSecret string) *UserService {
	return &UserService{DB: db, Judge: judge, JWTSecret: jwtSecret}
}

// Register creates an unconfirmed account for an existing Codeforces handle.
// The handle is validated against the judge; ownership is proven later via
// the confirmation sweep.
func (s *UserService) RegisterUser(ctx context.Context, handle, password string) (*models.User, error) {
	if handle == "" || password == "" {
		return nil, fmt.Errorf("%w: handle and password are required", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	var existing models.User
	err := s.DB.First(&existing, "handle = ?", handle).Error
	if err == nil {
		return nil, fmt.Errorf("%w: handle %s is already registered", ErrConflict, handle)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	valid, err := s.Judge.ValidateHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("%w: handle %s does not exist on the judge", ErrValidation, handle)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().UTC().Add(confirmationWindow)
	user := &models.User{
		ID:                   uuid.NewString(),
		Handle:               handle,
		PasswordHash:         string(hash),
		Rating:               1000,
		IsConfirmed:          false,
		ConfirmationDeadline: &deadline,
	}
	if err := s.DB.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// LoginUser checks credentials and issues a signed token.
func (s *UserService) LoginUser(handle, password string) (string, *models.User, error) {
	var user models.User
	if err := s.DB.First(&user, "handle = ?", handle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: invalid handle or password", ErrUnauthorized)
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("%w: invalid handle or password", ErrUnauthorized)
	}

	claims := jwt.MapClaims{
		"sub": user.ID,
		"exp": time.Now().Add(tokenLifetime).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.JWTSecret))
	if err != nil {
		return "", nil, err
	}
	return signed, &user, nil
}

// Leaderboard returns confirmed users by rating, best first.
func (s *UserService) Leaderboard(limit int) ([]models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var users []models.User
	err := s.DB.Where("is_confirmed = ?", true).
		Order("rating DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// RatingHistoryFor returns a user's rating changes, newest first.
func (s *UserService) RatingHistoryFor(userID string) ([]models.RatingHistory, error) {
	var history []models.RatingHistory
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&history).Error
	return history, err
}

// --- HTTP handlers ---

type credentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

func (s *UserService) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	user, err := s.RegisterUser(c.Context(), req.Handle, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(user)
}

func (s *UserService) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	token, user, err := s.LoginUser(req.Handle, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

func (s *UserService) Me(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondError(c, fmt.Errorf("%w: user %s", ErrNotFound, userID))
	}
	return c.JSON(user)
}

func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(400).JSON(fiber.Map{"error": "query parameter q is required"})
	}

	var users []models.User
	err := s.DB.Where("handle LIKE ?", query+"%").
		Order("handle ASC").
		Limit(20).
		Find(&users).Error
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

func (s *UserService) GetLeaderboard(c *fiber.Ctx) error {
	users, err := s.Leaderboard(c.QueryInt("limit"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

func (s *UserService) GetRatingHistory(c *fiber.Ctx) error {
	history, err := s.RatingHistoryFor(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(history)
}
