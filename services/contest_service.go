package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cp-vs-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ContestService drives a contest through scheduled -> active -> completed.
// All state lives in the database; every sweep re-reads it, and every
// mutation is one committed transaction sized to a single semantic step, so
// a crash mid-sweep loses at most the in-flight step.
type ContestService struct {
	DB       *gorm.DB
	Judge    JudgeAPI
	Selector *ProblemSelector

	// Notification hooks, wired at startup. The scheduler uses the first two
	// to manage per-contest poll jobs; the tournament service registers the
	// third to advance brackets. Nil hooks are skipped.
	OnContestActivated func(contestID string)
	OnContestRetired   func(contestID string)
	OnContestCompleted func(contestID string)
}

func NewContestService(db *gorm.DB, judge JudgeAPI) *ContestService {
	return &ContestService{
		DB:       db,
		Judge:    judge,
		Selector: NewProblemSelector(judge),
	}
}

// findOverlapping returns a scheduled/active contest of any of the given
// users whose window overlaps [start, end). The strict variant uses the
// half-open test (start < other.end && end > other.start); the inclusive
// variant also rejects exact boundary touches and is used for tournament
// rounds, where it additionally skips tournament-backed contests (sibling
// round timing is validated when the schedule is set).
func (s *ContestService) findOverlapping(db *gorm.DB, userIDs []string, start, end time.Time, inclusive, excludeTournament bool) (*models.Contest, error) {
	query := db.Where("status IN ?", []string{models.ContestStatusScheduled, models.ContestStatusActive}).
		Where("user1_id IN ? OR user2_id IN ?", userIDs, userIDs)
	if inclusive {
		query = query.Where("start_time <= ? AND end_time >= ?", end, start)
	} else {
		query = query.Where("start_time < ? AND end_time > ?", end, start)
	}
	if excludeTournament {
		query = query.Where("tournament_match_id IS NULL")
	}

	var contest models.Contest
	if err := query.First(&contest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contest, nil
}

// CreateContestFromChallenge creates the contest backing an accepted
// challenge. Idempotent: if the challenge already has a contest it is
// returned as-is.
func (s *ContestService) CreateContestFromChallenge(challenge *models.Challenge) (*models.Contest, error) {
	var existing models.Contest
	err := s.DB.First(&existing, "challenge_id = ?", challenge.ID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	start := challenge.SuggestedStartTime
	end := start.Add(models.ContestDuration)

	overlapping, err := s.findOverlapping(s.DB, []string{challenge.ChallengerID, challenge.ChallengedID}, start, end, false, false)
	if err != nil {
		return nil, err
	}
	if overlapping != nil {
		return nil, fmt.Errorf("%w: one of the users already has a contest during %s - %s",
			ErrConflict, overlapping.StartTime.Format(time.RFC3339), overlapping.EndTime.Format(time.RFC3339))
	}

	challengeID := challenge.ID
	contest := &models.Contest{
		ID:          uuid.NewString(),
		ChallengeID: &challengeID,
		User1ID:     challenge.ChallengerID,
		User2ID:     challenge.ChallengedID,
		Difficulty:  challenge.Difficulty,
		StartTime:   start,
		EndTime:     end,
		Status:      models.ContestStatusScheduled,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(contest).Error; err != nil {
			return err
		}
		return createZeroScores(tx, contest)
	})
	if err != nil {
		return nil, err
	}
	return contest, nil
}

// CreateTournamentContest creates the contest backing a tournament match,
// inside the caller's transaction. Rejects only collisions with the users'
// non-tournament contests, using the inclusive overlap test.
func (s *ContestService) CreateTournamentContest(tx *gorm.DB, matchID, user1ID, user2ID string, difficulty int, start time.Time) (*models.Contest, error) {
	end := start.Add(models.ContestDuration)

	overlapping, err := s.findOverlapping(tx, []string{user1ID, user2ID}, start, end, true, true)
	if err != nil {
		return nil, err
	}
	if overlapping != nil {
		return nil, fmt.Errorf("%w: participant has a non-tournament contest during %s - %s",
			ErrConflict, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	contest := &models.Contest{
		ID:                uuid.NewString(),
		TournamentMatchID: &matchID,
		User1ID:           user1ID,
		User2ID:           user2ID,
		Difficulty:        difficulty,
		StartTime:         start,
		EndTime:           end,
		Status:            models.ContestStatusScheduled,
	}
	if err := tx.Create(contest).Error; err != nil {
		return nil, err
	}
	if err := createZeroScores(tx, contest); err != nil {
		return nil, err
	}
	return contest, nil
}

func createZeroScores(tx *gorm.DB, contest *models.Contest) error {
	for _, userID := range []string{contest.User1ID, contest.User2ID} {
		score := &models.ContestScore{
			ID:        uuid.NewString(),
			ContestID: contest.ID,
			UserID:    userID,
		}
		if err := tx.Create(score).Error; err != nil {
			return err
		}
	}
	return nil
}

// AssignProblemsSweep populates problem sets for contests starting within
// the next minute. One-shot per contest: any existing problem row
// short-circuits reselection.
func (s *ContestService) AssignProblemsSweep(ctx context.Context) {
	now := time.Now().UTC()
	var contests []models.Contest
	err := s.DB.Where("status = ? AND start_time > ? AND start_time <= ?",
		models.ContestStatusScheduled, now, now.Add(time.Minute)).
		Find(&contests).Error
	if err != nil {
		log.Printf("[Sweep] problem assignment query failed: %v", err)
		return
	}

	for i := range contests {
		if err := s.assignProblems(ctx, &contests[i]); err != nil {
			log.Printf("[Sweep] problem assignment failed for contest %s: %v", contests[i].ID, err)
		}
	}
}

func (s *ContestService) assignProblems(ctx context.Context, contest *models.Contest) error {
	var count int64
	if err := s.DB.Model(&models.ContestProblem{}).Where("contest_id = ?", contest.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var user1, user2 models.User
	if err := s.DB.First(&user1, "id = ?", contest.User1ID).Error; err != nil {
		return err
	}
	if err := s.DB.First(&user2, "id = ?", contest.User2ID).Error; err != nil {
		return err
	}

	selected, err := s.Selector.SelectProblems(ctx, user1.Handle, user2.Handle, contest.Difficulty)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("%w: selector produced no problems for contest %s", ErrInvariant, contest.ID)
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-check inside the transaction: a concurrent sweep may have won.
		var n int64
		if err := tx.Model(&models.ContestProblem{}).Where("contest_id = ?", contest.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, p := range selected {
			row := &models.ContestProblem{
				ID:           uuid.NewString(),
				ContestID:    contest.ID,
				ProblemIndex: p.ProblemIndex,
				ProblemCode:  p.ProblemCode,
				ProblemURL:   p.ProblemURL,
				Points:       p.Points,
				Division:     p.Division,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ActivateScheduledSweep flips every due contest to active and hands it to
// the scheduler for per-contest polling.
func (s *ContestService) ActivateScheduledSweep(ctx context.Context) {
	var contests []models.Contest
	err := s.DB.Where("status = ? AND start_time <= ?", models.ContestStatusScheduled, time.Now().UTC()).
		Find(&contests).Error
	if err != nil {
		log.Printf("[Sweep] activation query failed: %v", err)
		return
	}

	for i := range contests {
		contest := &contests[i]
		if err := contest.Advance(models.ContestStatusActive); err != nil {
			log.Printf("[Sweep] %v", err)
			continue
		}
		res := s.DB.Model(&models.Contest{}).
			Where("id = ? AND status = ?", contest.ID, models.ContestStatusScheduled).
			Update("status", models.ContestStatusActive)
		if res.Error != nil {
			log.Printf("[Sweep] activation failed for contest %s: %v", contest.ID, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue // another sweep got there first
		}
		log.Printf("[Sweep] contest %s activated", contest.ID)
		if s.OnContestActivated != nil {
			s.OnContestActivated(contest.ID)
		}
	}
}

// CheckAllActive polls every active contest. This is the safety net behind
// the per-contest jobs: both paths are idempotent, so double polling is
// harmless and a job lost across a restart is picked up here.
func (s *ContestService) CheckAllActive(ctx context.Context) {
	var contests []models.Contest
	if err := s.DB.Where("status = ?", models.ContestStatusActive).Find(&contests).Error; err != nil {
		log.Printf("[Sweep] active contest query failed: %v", err)
		return
	}
	for i := range contests {
		if err := s.CheckSubmissions(ctx, contests[i].ID); err != nil {
			log.Printf("[Sweep] submission check failed for contest %s: %v", contests[i].ID, err)
		}
	}
}

// CheckSubmissions runs one poll tick for a contest: for every unsolved
// problem, both participants are looked up on the judge concurrently; the
// earlier judge-reported solve wins, exact ties go to participant 1, and the
// first write per problem is final. Once the wall clock passes end_time the
// contest is completed, ratings applied and the bracket notified.
func (s *ContestService) CheckSubmissions(ctx context.Context, contestID string) error {
	var contest models.Contest
	if err := s.DB.First(&contest, "id = ?", contestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if contest.Status != models.ContestStatusActive {
		return nil
	}

	var total int64
	if err := s.DB.Model(&models.ContestProblem{}).Where("contest_id = ?", contest.ID).Count(&total).Error; err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	var user1, user2 models.User
	if err := s.DB.First(&user1, "id = ?", contest.User1ID).Error; err != nil {
		return err
	}
	if err := s.DB.First(&user2, "id = ?", contest.User2ID).Error; err != nil {
		return err
	}

	var unsolved []models.ContestProblem
	err := s.DB.Where("contest_id = ? AND solved_by IS NULL", contest.ID).
		Order("problem_index ASC").
		Find(&unsolved).Error
	if err != nil {
		return err
	}

	since := contest.StartTime.Unix()
	for i := range unsolved {
		problem := &unsolved[i]

		var sub1, sub2 *Submission
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sub, err := s.Judge.CheckSubmission(gctx, user1.Handle, problem.ProblemCode, since)
			sub1 = sub
			return err
		})
		g.Go(func() error {
			sub, err := s.Judge.CheckSubmission(gctx, user2.Handle, problem.ProblemCode, since)
			sub2 = sub
			return err
		})
		if err := g.Wait(); err != nil {
			// One bad lookup skips just this problem; the next tick retries.
			log.Printf("[Checker] judge lookup failed for %s in contest %s: %v", problem.ProblemCode, contest.ID, err)
			continue
		}

		solverID, solvedAt := decideSolver(sub1, sub2, user1.ID, user2.ID)
		if solverID == "" {
			continue
		}
		if err := s.recordSolve(contest.ID, problem.ID, solverID, solvedAt); err != nil {
			log.Printf("[Checker] recording solve for %s failed: %v", problem.ProblemCode, err)
		}
	}

	if !time.Now().UTC().Before(contest.EndTime) {
		return s.completeContest(&contest)
	}
	return nil
}

// decideSolver applies the tie-break: earlier judge timestamp wins, an exact
// tie goes to participant 1.
func decideSolver(sub1, sub2 *Submission, user1ID, user2ID string) (string, time.Time) {
	switch {
	case sub1 == nil && sub2 == nil:
		return "", time.Time{}
	case sub2 == nil:
		return user1ID, time.Unix(sub1.CreationTimeSeconds, 0).UTC()
	case sub1 == nil:
		return user2ID, time.Unix(sub2.CreationTimeSeconds, 0).UTC()
	case sub2.CreationTimeSeconds < sub1.CreationTimeSeconds:
		return user2ID, time.Unix(sub2.CreationTimeSeconds, 0).UTC()
	default:
		return user1ID, time.Unix(sub1.CreationTimeSeconds, 0).UTC()
	}
}

// recordSolve sets solver and timestamp once (first write wins) and
// recomputes the score projection in the same transaction.
func (s *ContestService) recordSolve(contestID, problemID, solverID string, solvedAt time.Time) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ContestProblem{}).
			Where("id = ? AND solved_by IS NULL", problemID).
			Updates(map[string]interface{}{"solved_by": solverID, "solved_at": solvedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already solved; first write wins
		}
		return s.RecalculateScores(tx, contestID)
	})
}

// RecalculateScores rebuilds both participants' totals from the full solved
// set. It is a pure projection: calling it any number of times yields the
// same rows, which is what makes missed or duplicated solve events safe.
func (s *ContestService) RecalculateScores(db *gorm.DB, contestID string) error {
	var contest models.Contest
	if err := db.First(&contest, "id = ?", contestID).Error; err != nil {
		return err
	}

	var solved []models.ContestProblem
	if err := db.Where("contest_id = ? AND solved_by IS NOT NULL", contestID).Find(&solved).Error; err != nil {
		return err
	}

	totals := map[string]int{contest.User1ID: 0, contest.User2ID: 0}
	for _, p := range solved {
		totals[*p.SolvedBy] += p.Points
	}

	for userID, points := range totals {
		err := db.Model(&models.ContestScore{}).
			Where("contest_id = ? AND user_id = ?", contestID, userID).
			Update("total_points", points).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// completeContest transitions active -> completed, applies ratings, notifies
// the bracket and retires the poll job. The guarded update makes the
// transition itself race-safe; everything downstream is idempotent.
func (s *ContestService) completeContest(contest *models.Contest) error {
	if err := contest.Advance(models.ContestStatusCompleted); err != nil {
		return err
	}
	res := s.DB.Model(&models.Contest{}).
		Where("id = ? AND status = ?", contest.ID, models.ContestStatusActive).
		Update("status", contest.Status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil // a concurrent tick completed it
	}
	log.Printf("[Checker] contest %s completed", contest.ID)

	if err := s.applyRatings(contest); err != nil {
		// Ratings stay pending; the history guard lets the reconciliation
		// sweep finish the job without double-applying.
		log.Printf("[Checker] rating application failed for contest %s: %v", contest.ID, err)
	}

	if contest.TournamentMatchID != nil && s.OnContestCompleted != nil {
		s.OnContestCompleted(contest.ID)
	}
	if s.OnContestRetired != nil {
		s.OnContestRetired(contest.ID)
	}
	return nil
}

// ReconcileCompletedSweep repairs completion side effects that did not make
// it past the status commit: a crash or store failure after the COMPLETED
// transition can leave a contest without its rating pair, or a tournament
// match that never heard its contest finished. Both repairs re-drive from
// durable state and both downstream paths are idempotent, so sweeping them
// repeatedly is safe.
func (s *ContestService) ReconcileCompletedSweep(ctx context.Context) {
	var unrated []models.Contest
	err := s.DB.Where("status = ?", models.ContestStatusCompleted).
		Where("id NOT IN (?)", s.DB.Model(&models.RatingHistory{}).Select("contest_id")).
		Find(&unrated).Error
	if err != nil {
		log.Printf("[Sweep] unrated contest query failed: %v", err)
		return
	}
	for i := range unrated {
		if err := s.applyRatings(&unrated[i]); err != nil {
			log.Printf("[Sweep] rating reconciliation failed for contest %s: %v", unrated[i].ID, err)
		}
	}

	if s.OnContestCompleted == nil {
		return
	}
	var stalled []models.Contest
	err = s.DB.Where("status = ? AND tournament_match_id IS NOT NULL", models.ContestStatusCompleted).
		Where("tournament_match_id IN (?)", s.DB.Model(&models.TournamentMatch{}).
			Select("id").
			Where("status <> ?", models.TournamentMatchStatusCompleted)).
		Find(&stalled).Error
	if err != nil {
		log.Printf("[Sweep] stalled match query failed: %v", err)
		return
	}
	for i := range stalled {
		log.Printf("[Sweep] re-delivering completion of contest %s", stalled[i].ID)
		s.OnContestCompleted(stalled[i].ID)
	}
}

// applyRatings applies the Elo outcome of a completed contest to both users
// and writes the immutable history pair. The existence of any history row
// for the contest is the idempotency guard.
func (s *ContestService) applyRatings(contest *models.Contest) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.RatingHistory{}).Where("contest_id = ?", contest.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		points, err := s.finalPoints(tx, contest)
		if err != nil {
			return err
		}

		var user1, user2 models.User
		if err := tx.First(&user1, "id = ?", contest.User1ID).Error; err != nil {
			return err
		}
		if err := tx.First(&user2, "id = ?", contest.User2ID).Error; err != nil {
			return err
		}

		score1, score2 := ContestOutcome(points[contest.User1ID], points[contest.User2ID])
		new1, new2, change1, change2 := CalculateElo(user1.Rating, user2.Rating, score1, score2, DefaultKFactor)

		if err := tx.Model(&models.User{}).Where("id = ?", user1.ID).Update("rating", new1).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user2.ID).Update("rating", new2).Error; err != nil {
			return err
		}

		entries := []models.RatingHistory{
			{ID: uuid.NewString(), UserID: user1.ID, ContestID: contest.ID, RatingBefore: user1.Rating, RatingAfter: new1, RatingChange: change1},
			{ID: uuid.NewString(), UserID: user2.ID, ContestID: contest.ID, RatingBefore: user2.Rating, RatingAfter: new2, RatingChange: change2},
		}
		for i := range entries {
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		log.Printf("[Rating] contest %s: %s %+d, %s %+d", contest.ID, user1.Handle, change1, user2.Handle, change2)
		return nil
	})
}

func (s *ContestService) finalPoints(db *gorm.DB, contest *models.Contest) (map[string]int, error) {
	var scores []models.ContestScore
	if err := db.Where("contest_id = ?", contest.ID).Find(&scores).Error; err != nil {
		return nil, err
	}
	points := map[string]int{contest.User1ID: 0, contest.User2ID: 0}
	for _, score := range scores {
		points[score.UserID] = score.TotalPoints
	}
	return points, nil
}

// FinalScores exposes the per-user totals of a contest, used by the
// tournament service to pick match winners.
func (s *ContestService) FinalScores(contestID string) (map[string]int, error) {
	var contest models.Contest
	if err := s.DB.First(&contest, "id = ?", contestID).Error; err != nil {
		return nil, err
	}
	return s.finalPoints(s.DB, &contest)
}

// --- HTTP handlers ---

func (s *ContestService) GetMyContests(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	query := s.DB.Where("user1_id = ? OR user2_id = ?", userID, userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var contests []models.Contest
	if err := query.Order("start_time DESC").Find(&contests).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(contests)
}

func (s *ContestService) GetUpcoming(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var contests []models.Contest
	err := s.DB.Where("(user1_id = ? OR user2_id = ?) AND status = ?",
		userID, userID, models.ContestStatusScheduled).
		Order("start_time ASC").
		Find(&contests).Error
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(contests)
}

func (s *ContestService) GetContestByID(c *fiber.Ctx) error {
	var contest models.Contest
	if err := s.DB.First(&contest, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fmt.Errorf("%w: contest %s", ErrNotFound, c.Params("id")))
		}
		return respondError(c, err)
	}

	var scores []models.ContestScore
	if err := s.DB.Where("contest_id = ?", contest.ID).Find(&scores).Error; err != nil {
		return respondError(c, err)
	}

	// The problem set stays hidden until the contest actually starts.
	problems := []models.ContestProblem{}
	if contest.Status != models.ContestStatusScheduled {
		err := s.DB.Where("contest_id = ?", contest.ID).
			Order("problem_index ASC").
			Find(&problems).Error
		if err != nil {
			return respondError(c, err)
		}
	}

	return c.JSON(fiber.Map{
		"contest":  contest,
		"problems": problems,
		"scores":   scores,
	})
}

func (s *ContestService) GetContestProblems(c *fiber.Ctx) error {
	var contest models.Contest
	if err := s.DB.First(&contest, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fmt.Errorf("%w: contest %s", ErrNotFound, c.Params("id")))
		}
		return respondError(c, err)
	}
	if contest.Status == models.ContestStatusScheduled {
		return respondError(c, fmt.Errorf("%w: contest has not started", ErrConflict))
	}

	var problems []models.ContestProblem
	err := s.DB.Where("contest_id = ?", contest.ID).
		Order("problem_index ASC").
		Find(&problems).Error
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(problems)
}

func (s *ContestService) GetLatestCompleted(c *fiber.Ctx) error {
	var contests []models.Contest
	err := s.DB.Where("status = ?", models.ContestStatusCompleted).
		Order("end_time DESC").
		Limit(20).
		Find(&contests).Error
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(contests)
}
