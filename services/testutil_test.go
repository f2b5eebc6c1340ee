package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cp-vs-backend/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every session on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RatingHistory{},
		&models.Challenge{},
		&models.Contest{},
		&models.ContestProblem{},
		&models.ContestScore{},
		&models.Tournament{},
		&models.TournamentSlot{},
		&models.TournamentInvite{},
		&models.TournamentRoundSchedule{},
		&models.TournamentMatch{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, handle string, rating int) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.NewString(),
		Handle:       handle,
		PasswordHash: "x",
		Rating:       rating,
		IsConfirmed:  true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// fakeJudge is a scripted JudgeAPI. Submissions are keyed by handle and
// problem code; the since floor is honored like the real client.
type fakeJudge struct {
	mu sync.Mutex

	solved    map[string]map[string]bool
	subs      map[string]map[string]*Submission
	anySubs   map[string]map[string]*Submission
	problems  []JudgeProblem
	divisions map[int]int
	valid     map[string]bool

	subErr error
	calls  int
}

func newFakeJudge() *fakeJudge {
	return &fakeJudge{
		solved:    make(map[string]map[string]bool),
		subs:      make(map[string]map[string]*Submission),
		anySubs:   make(map[string]map[string]*Submission),
		divisions: make(map[int]int),
		valid:     make(map[string]bool),
	}
}

func (f *fakeJudge) addSubmission(handle, code string, at int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[handle] == nil {
		f.subs[handle] = make(map[string]*Submission)
	}
	f.subs[handle][code] = &Submission{
		ID:                  at,
		CreationTimeSeconds: at,
		Verdict:             "OK",
	}
}

func (f *fakeJudge) SolvedProblems(ctx context.Context, handle string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.solved[handle]))
	for code := range f.solved[handle] {
		out[code] = true
	}
	return out, nil
}

func (f *fakeJudge) CheckSubmission(ctx context.Context, handle, problemCode string, since int64) (*Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	sub := f.subs[handle][problemCode]
	if sub == nil || sub.CreationTimeSeconds < since {
		return nil, nil
	}
	return sub, nil
}

func (f *fakeJudge) CheckAnySubmission(ctx context.Context, handle, problemCode string, since int64) (*Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := f.anySubs[handle][problemCode]
	if sub == nil || sub.CreationTimeSeconds < since {
		return nil, nil
	}
	return sub, nil
}

func (f *fakeJudge) Problems(ctx context.Context) ([]JudgeProblem, error) {
	return f.problems, nil
}

func (f *fakeJudge) ContestDivisions(ctx context.Context) (map[int]int, error) {
	return f.divisions, nil
}

func (f *fakeJudge) ValidateHandle(ctx context.Context, handle string) (bool, error) {
	return f.valid[handle], nil
}

// addFakeProblems seeds n judge contests in a division with full A-F sets at
// the given ratings.
func (f *fakeJudge) addFakeProblems(division int, contestIDs []int, ratings map[string]int) {
	for _, cid := range contestIDs {
		f.divisions[cid] = division
		for index, rating := range ratings {
			f.problems = append(f.problems, JudgeProblem{
				ContestID: cid,
				Index:     index,
				Rating:    rating,
				Name:      fmt.Sprintf("Problem %d%s", cid, index),
			})
		}
	}
}

// seedContest inserts a contest with zero scores, bypassing overlap checks.
func seedContest(t *testing.T, db *gorm.DB, user1, user2 *models.User, status string, start time.Time) *models.Contest {
	t.Helper()
	contest := &models.Contest{
		ID:         uuid.NewString(),
		User1ID:    user1.ID,
		User2ID:    user2.ID,
		Difficulty: 2,
		StartTime:  start,
		EndTime:    start.Add(models.ContestDuration),
		Status:     status,
	}
	require.NoError(t, db.Create(contest).Error)
	for _, userID := range []string{user1.ID, user2.ID} {
		require.NoError(t, db.Create(&models.ContestScore{
			ID:        uuid.NewString(),
			ContestID: contest.ID,
			UserID:    userID,
		}).Error)
	}
	return contest
}

func seedProblem(t *testing.T, db *gorm.DB, contestID, index string) *models.ContestProblem {
	t.Helper()
	problem := &models.ContestProblem{
		ID:           uuid.NewString(),
		ContestID:    contestID,
		ProblemIndex: index,
		ProblemCode:  "100" + index,
		ProblemURL:   "https://codeforces.com/contest/100/problem/" + index,
		Points:       models.ProblemPoints[index],
		Division:     3,
	}
	require.NoError(t, db.Create(problem).Error)
	return problem
}
