package services

import (
	"context"
	"testing"

	"cp-vs-backend/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserFixture(t *testing.T) (*UserService, *fakeJudge) {
	t.Helper()
	db := newTestDB(t)
	judge := newFakeJudge()
	return NewUserService(db, judge, "test-secret"), judge
}

func TestRegisterUser(t *testing.T) {
	svc, judge := newUserFixture(t)
	judge.valid["tourist"] = true
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "", "password123")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.RegisterUser(ctx, "tourist", "short")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.RegisterUser(ctx, "ghost", "password123")
	assert.ErrorIs(t, err, ErrValidation) // unknown judge handle

	user, err := svc.RegisterUser(ctx, "tourist", "password123")
	require.NoError(t, err)
	assert.Equal(t, 1000, user.Rating)
	assert.False(t, user.IsConfirmed)
	require.NotNil(t, user.ConfirmationDeadline)
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err = svc.RegisterUser(ctx, "tourist", "password123")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc, judge := newUserFixture(t)
	judge.valid["alice"] = true

	registered, err := svc.RegisterUser(context.Background(), "alice", "password123")
	require.NoError(t, err)

	_, _, err = svc.LoginUser("alice", "wrong-password")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = svc.LoginUser("nobody", "password123")
	assert.ErrorIs(t, err, ErrUnauthorized)

	tokenStr, user, err := svc.LoginUser("alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, registered.ID, claims["sub"])
}

func TestLeaderboardOrdersConfirmedByRating(t *testing.T) {
	svc, _ := newUserFixture(t)

	createTestUser(t, svc.DB, "low", 900)
	createTestUser(t, svc.DB, "high", 1400)
	createTestUser(t, svc.DB, "mid", 1100)

	unconfirmed := createTestUser(t, svc.DB, "pending", 2000)
	require.NoError(t, svc.DB.Model(unconfirmed).Update("is_confirmed", false).Error)

	users, err := svc.Leaderboard(10)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "high", users[0].Handle)
	assert.Equal(t, "mid", users[1].Handle)
	assert.Equal(t, "low", users[2].Handle)
}

func TestRatingHistoryFor(t *testing.T) {
	svc, _ := newUserFixture(t)
	user := createTestUser(t, svc.DB, "alice", 1016)

	require.NoError(t, svc.DB.Create(&models.RatingHistory{
		ID: "h1", UserID: user.ID, ContestID: "c1",
		RatingBefore: 1000, RatingAfter: 1016, RatingChange: 16,
	}).Error)

	history, err := svc.RatingHistoryFor(user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 16, history[0].RatingChange)
}
