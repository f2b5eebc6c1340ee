package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"cp-vs-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type tournamentFixture struct {
	db    *gorm.DB
	svc   *TournamentService
	users []*models.User
}

func newTournamentFixture(t *testing.T, participants int) *tournamentFixture {
	t.Helper()
	db := newTestDB(t)
	contests := NewContestService(db, newFakeJudge())
	svc := NewTournamentService(db, contests)

	handles := []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "henry"}
	users := make([]*models.User, 0, participants)
	for i := 0; i < participants; i++ {
		users = append(users, createTestUser(t, db, handles[i], 1000))
	}
	return &tournamentFixture{db: db, svc: svc, users: users}
}

func (f *tournamentFixture) createTournament(t *testing.T) *models.Tournament {
	t.Helper()
	tournament, err := f.svc.Create(f.users[0].ID, len(f.users), 2)
	require.NoError(t, err)
	return tournament
}

func (f *tournamentFixture) fillSlots(t *testing.T, tournament *models.Tournament) {
	t.Helper()
	var slots []models.TournamentSlot
	require.NoError(t, f.db.Where("tournament_id = ?", tournament.ID).Order("slot_number ASC").Find(&slots).Error)
	for i := range slots {
		require.NoError(t, f.db.Model(&slots[i]).
			Updates(map[string]interface{}{"user_id": f.users[i].ID, "status": models.TournamentSlotAccepted}).Error)
	}
}

func (f *tournamentFixture) schedule(t *testing.T, tournament *models.Tournament) []RoundScheduleEntry {
	t.Helper()
	rounds := tournament.NumRounds()
	entries := make([]RoundScheduleEntry, 0, rounds)
	base := time.Now().UTC().Add(time.Hour)
	for r := 1; r <= rounds; r++ {
		entries = append(entries, RoundScheduleEntry{
			RoundNumber: r,
			StartTime:   base.Add(time.Duration(r-1) * 3 * time.Hour),
		})
	}
	require.NoError(t, f.svc.SetRoundSchedules(tournament.ID, f.users[0].ID, entries))
	return entries
}

// finishMatchContest settles the contest behind a match with the given
// totals, the way the contest lifecycle would.
func (f *tournamentFixture) finishMatchContest(t *testing.T, match *models.TournamentMatch, points1, points2 int) string {
	t.Helper()
	require.NotNil(t, match.ContestID)

	var contest models.Contest
	require.NoError(t, f.db.First(&contest, "id = ?", *match.ContestID).Error)

	require.NoError(t, f.db.Model(&models.ContestScore{}).
		Where("contest_id = ? AND user_id = ?", contest.ID, contest.User1ID).
		Update("total_points", points1).Error)
	require.NoError(t, f.db.Model(&models.ContestScore{}).
		Where("contest_id = ? AND user_id = ?", contest.ID, contest.User2ID).
		Update("total_points", points2).Error)
	require.NoError(t, f.db.Model(&models.Contest{}).
		Where("id = ?", contest.ID).
		Update("status", models.ContestStatusCompleted).Error)
	return contest.ID
}

func (f *tournamentFixture) roundMatches(t *testing.T, tournamentID string, round int) []models.TournamentMatch {
	t.Helper()
	var matches []models.TournamentMatch
	require.NoError(t, f.db.Where("tournament_id = ? AND round_number = ?", tournamentID, round).
		Order("match_number ASC").Find(&matches).Error)
	return matches
}

func TestCreateTournamentValidation(t *testing.T) {
	f := newTournamentFixture(t, 4)

	_, err := f.svc.Create(f.users[0].ID, 5, 2)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(f.users[0].ID, 4, 9)
	assert.ErrorIs(t, err, ErrValidation)

	tournament, err := f.svc.Create(f.users[0].ID, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, tournament.NumRounds())

	var slots int64
	require.NoError(t, f.db.Model(&models.TournamentSlot{}).Where("tournament_id = ?", tournament.ID).Count(&slots).Error)
	assert.EqualValues(t, 4, slots)
}

func TestSetRoundSchedulesValidation(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	base := time.Now().UTC().Add(time.Hour)

	// Wrong count.
	err := f.svc.SetRoundSchedules(tournament.ID, f.users[0].ID, []RoundScheduleEntry{
		{RoundNumber: 1, StartTime: base},
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Duplicate round numbers.
	err = f.svc.SetRoundSchedules(tournament.ID, f.users[0].ID, []RoundScheduleEntry{
		{RoundNumber: 1, StartTime: base},
		{RoundNumber: 1, StartTime: base.Add(3 * time.Hour)},
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Round 2 starting inside round 1.
	err = f.svc.SetRoundSchedules(tournament.ID, f.users[0].ID, []RoundScheduleEntry{
		{RoundNumber: 1, StartTime: base},
		{RoundNumber: 2, StartTime: base.Add(time.Hour)},
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Not the creator.
	err = f.svc.SetRoundSchedules(tournament.ID, f.users[1].ID, []RoundScheduleEntry{
		{RoundNumber: 1, StartTime: base},
		{RoundNumber: 2, StartTime: base.Add(3 * time.Hour)},
	})
	assert.ErrorIs(t, err, ErrForbidden)

	// Back-to-back rounds are valid.
	err = f.svc.SetRoundSchedules(tournament.ID, f.users[0].ID, []RoundScheduleEntry{
		{RoundNumber: 1, StartTime: base},
		{RoundNumber: 2, StartTime: base.Add(models.ContestDuration)},
	})
	assert.NoError(t, err)
}

func TestStartGeneratesFirstRound(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	entries := f.schedule(t, tournament)

	started, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusActive, started.Status)
	require.NotNil(t, started.StartTime)

	matches := f.roundMatches(t, tournament.ID, 1)
	require.Len(t, matches, 2)

	// Slots pair by number: 1v2 and 3v4.
	assert.Equal(t, f.users[0].ID, matches[0].User1ID)
	assert.Equal(t, f.users[1].ID, matches[0].User2ID)
	assert.Equal(t, f.users[2].ID, matches[1].User1ID)
	assert.Equal(t, f.users[3].ID, matches[1].User2ID)

	for _, match := range matches {
		require.NotNil(t, match.ContestID)
		var contest models.Contest
		require.NoError(t, f.db.First(&contest, "id = ?", *match.ContestID).Error)
		assert.Equal(t, entries[0].StartTime.Unix(), contest.StartTime.Unix())
		assert.Equal(t, entries[0].StartTime.Add(models.ContestDuration).Unix(), contest.EndTime.Unix())
		require.NotNil(t, contest.TournamentMatchID)
		assert.Equal(t, match.ID, *contest.TournamentMatchID)

		var scores int64
		require.NoError(t, f.db.Model(&models.ContestScore{}).Where("contest_id = ?", contest.ID).Count(&scores).Error)
		assert.EqualValues(t, 2, scores)
	}
}

func TestStartRequiresFullSlotsAndSchedules(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)

	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	assert.ErrorIs(t, err, ErrConflict) // empty slots

	f.fillSlots(t, tournament)
	_, err = f.svc.Start(tournament.ID, f.users[0].ID)
	assert.ErrorIs(t, err, ErrConflict) // no schedules

	f.schedule(t, tournament)
	_, err = f.svc.Start(tournament.ID, f.users[1].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Start(tournament.ID, f.users[0].ID)
	assert.NoError(t, err)

	// Starting twice is a conflict.
	_, err = f.svc.Start(tournament.ID, f.users[0].ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRoundAdvancement(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	f.schedule(t, tournament)
	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)

	matches := f.roundMatches(t, tournament.ID, 1)
	require.Len(t, matches, 2)

	// First match done: alice beats bob. Round 2 must wait.
	contest1 := f.finishMatchContest(t, &matches[0], 300, 100)
	require.NoError(t, f.svc.HandleContestCompleted(contest1))
	assert.Empty(t, f.roundMatches(t, tournament.ID, 2))

	var match1 models.TournamentMatch
	require.NoError(t, f.db.First(&match1, "id = ?", matches[0].ID).Error)
	assert.Equal(t, models.TournamentMatchStatusCompleted, match1.Status)
	require.NotNil(t, match1.WinnerID)
	assert.Equal(t, f.users[0].ID, *match1.WinnerID)

	// Second match done: dave beats carol. Round 2 appears, winners paired
	// in match order.
	contest2 := f.finishMatchContest(t, &matches[1], 0, 600)
	require.NoError(t, f.svc.HandleContestCompleted(contest2))

	round2 := f.roundMatches(t, tournament.ID, 2)
	require.Len(t, round2, 1)
	assert.Equal(t, f.users[0].ID, round2[0].User1ID)
	assert.Equal(t, f.users[3].ID, round2[0].User2ID)
	require.NotNil(t, round2[0].ContestID)

	// Duplicate delivery generates nothing new.
	require.NoError(t, f.svc.HandleContestCompleted(contest2))
	assert.Len(t, f.roundMatches(t, tournament.ID, 2), 1)
}

func TestConcurrentCompletionGeneratesRoundOnce(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	f.schedule(t, tournament)
	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)

	matches := f.roundMatches(t, tournament.ID, 1)
	contest1 := f.finishMatchContest(t, &matches[0], 300, 100)
	require.NoError(t, f.svc.HandleContestCompleted(contest1))

	// Deliver the round-closing completion from two goroutines at once.
	// The single-connection fixture serializes the transactions; under real
	// concurrency the unique (tournament, round, match) index backstops the
	// check-before-create guard.
	contest2 := f.finishMatchContest(t, &matches[1], 0, 600)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.HandleContestCompleted(contest2)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, f.roundMatches(t, tournament.ID, 2), 1)
}

func TestReconcileRedeliversMatchCompletion(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	f.schedule(t, tournament)
	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)

	// Both round-1 contests completed, but the completion events were lost
	// before reaching the bracket.
	matches := f.roundMatches(t, tournament.ID, 1)
	f.finishMatchContest(t, &matches[0], 300, 100)
	f.finishMatchContest(t, &matches[1], 0, 600)

	for _, match := range f.roundMatches(t, tournament.ID, 1) {
		assert.Equal(t, models.TournamentMatchStatusScheduled, match.Status)
	}

	// Wired as at startup: the sweep re-delivers from durable state.
	f.svc.Contests.OnContestCompleted = func(contestID string) {
		require.NoError(t, f.svc.HandleContestCompleted(contestID))
	}
	f.svc.Contests.ReconcileCompletedSweep(context.Background())

	for _, match := range f.roundMatches(t, tournament.ID, 1) {
		assert.Equal(t, models.TournamentMatchStatusCompleted, match.Status)
	}
	round2 := f.roundMatches(t, tournament.ID, 2)
	require.Len(t, round2, 1)
	assert.Equal(t, f.users[0].ID, round2[0].User1ID)
	assert.Equal(t, f.users[3].ID, round2[0].User2ID)

	// A second sweep finds nothing left to repair.
	f.svc.Contests.ReconcileCompletedSweep(context.Background())
	assert.Len(t, f.roundMatches(t, tournament.ID, 2), 1)
}

func TestTieAdvancesContestUser1(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	f.schedule(t, tournament)
	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)

	matches := f.roundMatches(t, tournament.ID, 1)
	contestID := f.finishMatchContest(t, &matches[0], 200, 200)
	require.NoError(t, f.svc.HandleContestCompleted(contestID))

	var match models.TournamentMatch
	require.NoError(t, f.db.First(&match, "id = ?", matches[0].ID).Error)
	require.NotNil(t, match.WinnerID)
	assert.Equal(t, matches[0].User1ID, *match.WinnerID)
}

func TestFinalRoundCompletesTournament(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	f.schedule(t, tournament)
	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)

	for _, match := range f.roundMatches(t, tournament.ID, 1) {
		contestID := f.finishMatchContest(t, &match, 300, 100)
		require.NoError(t, f.svc.HandleContestCompleted(contestID))
	}

	final := f.roundMatches(t, tournament.ID, 2)
	require.Len(t, final, 1)
	contestID := f.finishMatchContest(t, &final[0], 100, 400)
	require.NoError(t, f.svc.HandleContestCompleted(contestID))

	var reloaded models.Tournament
	require.NoError(t, f.db.First(&reloaded, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusCompleted, reloaded.Status)

	var finalMatch models.TournamentMatch
	require.NoError(t, f.db.First(&finalMatch, "id = ?", final[0].ID).Error)
	assert.Equal(t, f.users[2].ID, *finalMatch.WinnerID)
}

func TestInviteFlow(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.schedule(t, tournament)

	invite, err := f.svc.SendInvite(tournament.ID, f.users[0].ID, 1, "bob")
	require.NoError(t, err)

	// A second pending invite for the same user is rejected.
	_, err = f.svc.SendInvite(tournament.ID, f.users[0].ID, 2, "bob")
	assert.ErrorIs(t, err, ErrConflict)

	// Only the invitee may respond.
	err = f.svc.AcceptInvite(invite.ID, f.users[2].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.AcceptInvite(invite.ID, f.users[1].ID))

	var slot models.TournamentSlot
	require.NoError(t, f.db.First(&slot, "tournament_id = ? AND slot_number = ?", tournament.ID, 1).Error)
	require.NotNil(t, slot.UserID)
	assert.Equal(t, f.users[1].ID, *slot.UserID)
	assert.Equal(t, models.TournamentSlotAccepted, slot.Status)

	var reloaded models.TournamentInvite
	require.NoError(t, f.db.First(&reloaded, "id = ?", invite.ID).Error)
	assert.Equal(t, models.TournamentInviteStatusAccepted, reloaded.Status)
	assert.NotNil(t, reloaded.RespondedAt)

	// The slot is taken now.
	_, err = f.svc.SendInvite(tournament.ID, f.users[0].ID, 1, "carol")
	assert.ErrorIs(t, err, ErrConflict)

	// Rejection leaves the slot open.
	invite2, err := f.svc.SendInvite(tournament.ID, f.users[0].ID, 2, "carol")
	require.NoError(t, err)
	require.NoError(t, f.svc.RejectInvite(invite2.ID, f.users[2].ID))

	slot = models.TournamentSlot{}
	require.NoError(t, f.db.First(&slot, "tournament_id = ? AND slot_number = ?", tournament.ID, 2).Error)
	assert.Nil(t, slot.UserID)
}

func TestInviteScheduleConflict(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	entries := f.schedule(t, tournament)

	// Bob already has a plain contest during round 1.
	seedContest(t, f.db, f.users[1], f.users[2], models.ContestStatusScheduled, entries[0].StartTime)

	_, err := f.svc.SendInvite(tournament.ID, f.users[0].ID, 1, "bob")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreatorJoinSlot(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)

	require.NoError(t, f.svc.JoinSlot(tournament.ID, f.users[0].ID, 1))

	// Creator cannot hold two slots.
	err := f.svc.JoinSlot(tournament.ID, f.users[0].ID, 2)
	assert.ErrorIs(t, err, ErrConflict)

	// Non-creator cannot self-assign.
	err = f.svc.JoinSlot(tournament.ID, f.users[1].ID, 2)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBracketProjection(t *testing.T) {
	f := newTournamentFixture(t, 4)
	tournament := f.createTournament(t)
	f.fillSlots(t, tournament)
	f.schedule(t, tournament)
	_, err := f.svc.Start(tournament.ID, f.users[0].ID)
	require.NoError(t, err)

	rounds, err := f.svc.Bracket(tournament.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)

	assert.Equal(t, 1, rounds[0].RoundNumber)
	assert.Len(t, rounds[0].Matches, 2)
	require.NotNil(t, rounds[0].StartTime)

	// Round 2 is scheduled but not yet generated.
	assert.Equal(t, 2, rounds[1].RoundNumber)
	assert.Empty(t, rounds[1].Matches)
	assert.NotNil(t, rounds[1].StartTime)
}
