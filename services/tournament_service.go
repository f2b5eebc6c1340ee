package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"cp-vs-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TournamentService owns the single-elimination bracket: slot filling through
// invites, round schedules, bracket generation and advancement. Contests
// backing the matches are created through ContestService so the overlap rules
// stay in one place.
type TournamentService struct {
	DB       *gorm.DB
	Contests *ContestService
}

func NewTournamentService(db *gorm.DB, contests *ContestService) *TournamentService {
	return &TournamentService{DB: db, Contests: contests}
}

// Create stores a new pending tournament together with its full set of empty
// slots. Slots are fixed at creation and only ever filled, never added.
func (s *TournamentService) Create(creatorID string, numParticipants, difficulty int) (*models.Tournament, error) {
	if !models.ValidParticipantCounts[numParticipants] {
		return nil, fmt.Errorf("%w: participant count must be one of 4, 8, 16, 32, 64", ErrValidation)
	}
	if difficulty < 1 || difficulty > 4 {
		return nil, fmt.Errorf("%w: difficulty must be between 1 and 4", ErrValidation)
	}

	tournament := &models.Tournament{
		ID:              uuid.NewString(),
		CreatorID:       creatorID,
		NumParticipants: numParticipants,
		Difficulty:      difficulty,
		Status:          models.TournamentStatusPending,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tournament).Error; err != nil {
			return err
		}
		for n := 1; n <= numParticipants; n++ {
			slot := &models.TournamentSlot{
				ID:           uuid.NewString(),
				TournamentID: tournament.ID,
				SlotNumber:   n,
				Status:       models.TournamentSlotPending,
			}
			if err := tx.Create(slot).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tournament, nil
}

// RoundScheduleEntry is one round's proposed start time.
type RoundScheduleEntry struct {
	RoundNumber int       `json:"round_number"`
	StartTime   time.Time `json:"start_time"`
}

// SetRoundSchedules replaces the tournament's full round schedule. Every
// round must be covered exactly once, all starts must be in the future, and
// consecutive rounds must not overlap (each round spans ContestDuration).
func (s *TournamentService) SetRoundSchedules(tournamentID, userID string, entries []RoundScheduleEntry) error {
	tournament, err := s.fetch(tournamentID)
	if err != nil {
		return err
	}
	if tournament.CreatorID != userID {
		return fmt.Errorf("%w: only the creator can set round schedules", ErrForbidden)
	}
	if tournament.Status != models.TournamentStatusPending {
		return fmt.Errorf("%w: tournament is %s", ErrConflict, tournament.Status)
	}

	rounds := tournament.NumRounds()
	if len(entries) != rounds {
		return fmt.Errorf("%w: expected %d round schedules, got %d", ErrValidation, rounds, len(entries))
	}

	seen := make(map[int]bool, len(entries))
	now := time.Now().UTC()
	for _, e := range entries {
		if e.RoundNumber < 1 || e.RoundNumber > rounds {
			return fmt.Errorf("%w: round number %d out of range 1..%d", ErrValidation, e.RoundNumber, rounds)
		}
		if seen[e.RoundNumber] {
			return fmt.Errorf("%w: duplicate schedule for round %d", ErrValidation, e.RoundNumber)
		}
		seen[e.RoundNumber] = true
		if !e.StartTime.After(now) {
			return fmt.Errorf("%w: round %d start time must be in the future", ErrValidation, e.RoundNumber)
		}
	}

	ordered := make([]RoundScheduleEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RoundNumber < ordered[j].RoundNumber })
	for i := 1; i < len(ordered); i++ {
		prevEnd := ordered[i-1].StartTime.Add(models.ContestDuration)
		if ordered[i].StartTime.Before(prevEnd) {
			return fmt.Errorf("%w: round %d starts before round %d ends", ErrValidation, ordered[i].RoundNumber, ordered[i-1].RoundNumber)
		}
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tournament_id = ?", tournament.ID).Delete(&models.TournamentRoundSchedule{}).Error; err != nil {
			return err
		}
		for _, e := range ordered {
			row := &models.TournamentRoundSchedule{
				ID:           uuid.NewString(),
				TournamentID: tournament.ID,
				RoundNumber:  e.RoundNumber,
				StartTime:    e.StartTime.UTC(),
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SendInvite proposes filling a slot with a user. The invitee's existing
// non-tournament contests are checked against every scheduled round up front
// so an invite that could never be honored is rejected immediately.
func (s *TournamentService) SendInvite(tournamentID, creatorID string, slotNumber int, invitedHandle string) (*models.TournamentInvite, error) {
	tournament, err := s.fetch(tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.CreatorID != creatorID {
		return nil, fmt.Errorf("%w: only the creator can send invites", ErrForbidden)
	}
	if tournament.Status != models.TournamentStatusPending {
		return nil, fmt.Errorf("%w: tournament is %s", ErrConflict, tournament.Status)
	}

	var slot models.TournamentSlot
	err = s.DB.First(&slot, "tournament_id = ? AND slot_number = ?", tournament.ID, slotNumber).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: slot %d", ErrNotFound, slotNumber)
		}
		return nil, err
	}
	if slot.UserID != nil {
		return nil, fmt.Errorf("%w: slot %d is already taken", ErrConflict, slotNumber)
	}

	var invited models.User
	if err := s.DB.First(&invited, "handle = ?", invitedHandle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no user with handle %s", ErrNotFound, invitedHandle)
		}
		return nil, err
	}

	var slotted int64
	err = s.DB.Model(&models.TournamentSlot{}).
		Where("tournament_id = ? AND user_id = ?", tournament.ID, invited.ID).
		Count(&slotted).Error
	if err != nil {
		return nil, err
	}
	if slotted > 0 {
		return nil, fmt.Errorf("%w: %s already holds a slot in this tournament", ErrConflict, invited.Handle)
	}

	var pending int64
	err = s.DB.Model(&models.TournamentInvite{}).
		Where("tournament_id = ? AND invited_user_id = ? AND status = ?",
			tournament.ID, invited.ID, models.TournamentInviteStatusPending).
		Count(&pending).Error
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, fmt.Errorf("%w: %s already has a pending invite to this tournament", ErrConflict, invited.Handle)
	}

	if err := s.checkScheduleConflicts(tournament.ID, invited.ID); err != nil {
		return nil, err
	}

	invite := &models.TournamentInvite{
		ID:            uuid.NewString(),
		TournamentID:  tournament.ID,
		SlotID:        slot.ID,
		InvitedUserID: invited.ID,
		Status:        models.TournamentInviteStatusPending,
	}
	if err := s.DB.Create(invite).Error; err != nil {
		return nil, err
	}
	return invite, nil
}

// checkScheduleConflicts rejects a participant whose own non-tournament
// contests collide with any scheduled round, using the inclusive overlap
// test. Rounds of this or other tournaments are not considered.
func (s *TournamentService) checkScheduleConflicts(tournamentID, userID string) error {
	var schedules []models.TournamentRoundSchedule
	err := s.DB.Where("tournament_id = ?", tournamentID).
		Order("round_number ASC").
		Find(&schedules).Error
	if err != nil {
		return err
	}
	for _, sched := range schedules {
		end := sched.StartTime.Add(models.ContestDuration)
		overlapping, err := s.Contests.findOverlapping(s.DB, []string{userID}, sched.StartTime, end, true, true)
		if err != nil {
			return err
		}
		if overlapping != nil {
			return fmt.Errorf("%w: user has a contest during round %d", ErrConflict, sched.RoundNumber)
		}
	}
	return nil
}

// AcceptInvite binds the invitee to the invite's slot. The slot write is
// guarded on the slot still being empty, so two accepted invites can never
// land on the same slot.
func (s *TournamentService) AcceptInvite(inviteID, userID string) error {
	invite, err := s.fetchInvite(inviteID)
	if err != nil {
		return err
	}
	if invite.InvitedUserID != userID {
		return fmt.Errorf("%w: invite belongs to another user", ErrForbidden)
	}
	if invite.Status != models.TournamentInviteStatusPending {
		return fmt.Errorf("%w: invite is %s", ErrConflict, invite.Status)
	}

	tournament, err := s.fetch(invite.TournamentID)
	if err != nil {
		return err
	}
	if tournament.Status != models.TournamentStatusPending {
		return fmt.Errorf("%w: tournament is %s", ErrConflict, tournament.Status)
	}

	if err := s.checkScheduleConflicts(tournament.ID, userID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TournamentSlot{}).
			Where("id = ? AND user_id IS NULL", invite.SlotID).
			Updates(map[string]interface{}{"user_id": userID, "status": models.TournamentSlotAccepted})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: slot was taken in the meantime", ErrConflict)
		}
		return tx.Model(&models.TournamentInvite{}).
			Where("id = ?", invite.ID).
			Updates(map[string]interface{}{"status": models.TournamentInviteStatusAccepted, "responded_at": now}).Error
	})
}

// RejectInvite declines a pending invite; the slot stays open.
func (s *TournamentService) RejectInvite(inviteID, userID string) error {
	invite, err := s.fetchInvite(inviteID)
	if err != nil {
		return err
	}
	if invite.InvitedUserID != userID {
		return fmt.Errorf("%w: invite belongs to another user", ErrForbidden)
	}
	if invite.Status != models.TournamentInviteStatusPending {
		return fmt.Errorf("%w: invite is %s", ErrConflict, invite.Status)
	}
	now := time.Now().UTC()
	return s.DB.Model(&models.TournamentInvite{}).
		Where("id = ?", invite.ID).
		Updates(map[string]interface{}{"status": models.TournamentInviteStatusRejected, "responded_at": now}).Error
}

// JoinSlot lets the creator take a slot in their own bracket.
func (s *TournamentService) JoinSlot(tournamentID, creatorID string, slotNumber int) error {
	tournament, err := s.fetch(tournamentID)
	if err != nil {
		return err
	}
	if tournament.CreatorID != creatorID {
		return fmt.Errorf("%w: only the creator can self-assign a slot", ErrForbidden)
	}
	if tournament.Status != models.TournamentStatusPending {
		return fmt.Errorf("%w: tournament is %s", ErrConflict, tournament.Status)
	}

	var slotted int64
	err = s.DB.Model(&models.TournamentSlot{}).
		Where("tournament_id = ? AND user_id = ?", tournament.ID, creatorID).
		Count(&slotted).Error
	if err != nil {
		return err
	}
	if slotted > 0 {
		return fmt.Errorf("%w: creator already holds a slot", ErrConflict)
	}

	if err := s.checkScheduleConflicts(tournament.ID, creatorID); err != nil {
		return err
	}

	res := s.DB.Model(&models.TournamentSlot{}).
		Where("tournament_id = ? AND slot_number = ? AND user_id IS NULL", tournament.ID, slotNumber).
		Updates(map[string]interface{}{"user_id": creatorID, "status": models.TournamentSlotAccepted})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: slot %d is not available", ErrConflict, slotNumber)
	}
	return nil
}

// Start generates round 1 and activates the tournament. All slots must be
// filled and every round must be scheduled. Slots are paired by number:
// 1v2, 3v4, and so on.
func (s *TournamentService) Start(tournamentID, userID string) (*models.Tournament, error) {
	tournament, err := s.fetch(tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.CreatorID != userID {
		return nil, fmt.Errorf("%w: only the creator can start the tournament", ErrForbidden)
	}
	if tournament.Status != models.TournamentStatusPending {
		return nil, fmt.Errorf("%w: tournament is %s", ErrConflict, tournament.Status)
	}

	var slots []models.TournamentSlot
	err = s.DB.Where("tournament_id = ?", tournament.ID).
		Order("slot_number ASC").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		if slot.UserID == nil {
			return nil, fmt.Errorf("%w: slot %d is still empty", ErrConflict, slot.SlotNumber)
		}
	}

	var scheduleCount int64
	err = s.DB.Model(&models.TournamentRoundSchedule{}).
		Where("tournament_id = ?", tournament.ID).
		Count(&scheduleCount).Error
	if err != nil {
		return nil, err
	}
	if int(scheduleCount) != tournament.NumRounds() {
		return nil, fmt.Errorf("%w: all %d rounds must be scheduled before starting", ErrConflict, tournament.NumRounds())
	}

	firstRound, err := s.roundSchedule(s.DB, tournament.ID, 1)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		pairs := make([][2]models.TournamentSlot, 0, len(slots)/2)
		for i := 0; i+1 < len(slots); i += 2 {
			pairs = append(pairs, [2]models.TournamentSlot{slots[i], slots[i+1]})
		}
		if len(pairs) != tournament.NumParticipants/2 {
			return fmt.Errorf("%w: expected %d first-round matches, got %d", ErrInvariant, tournament.NumParticipants/2, len(pairs))
		}

		for i, pair := range pairs {
			if err := s.createMatch(tx, tournament, 1, i+1, pair[0], pair[1], firstRound.StartTime); err != nil {
				return err
			}
		}

		if err := tournament.Advance(models.TournamentStatusActive); err != nil {
			return err
		}
		return tx.Model(&models.Tournament{}).
			Where("id = ?", tournament.ID).
			Updates(map[string]interface{}{"status": models.TournamentStatusActive, "start_time": now}).Error
	})
	if err != nil {
		return nil, err
	}
	tournament.StartTime = &now
	return tournament, nil
}

// createMatch writes one bracket match plus its backing contest.
func (s *TournamentService) createMatch(tx *gorm.DB, tournament *models.Tournament, round, matchNumber int, slot1, slot2 models.TournamentSlot, start time.Time) error {
	end := start.Add(models.ContestDuration)
	match := &models.TournamentMatch{
		ID:           uuid.NewString(),
		TournamentID: tournament.ID,
		RoundNumber:  round,
		MatchNumber:  matchNumber,
		Slot1ID:      slot1.ID,
		Slot2ID:      slot2.ID,
		User1ID:      *slot1.UserID,
		User2ID:      *slot2.UserID,
		Status:       models.TournamentMatchStatusScheduled,
		StartTime:    &start,
		EndTime:      &end,
	}
	if err := tx.Create(match).Error; err != nil {
		return err
	}

	contest, err := s.Contests.CreateTournamentContest(tx, match.ID, match.User1ID, match.User2ID, tournament.Difficulty, start)
	if err != nil {
		return err
	}
	return tx.Model(&models.TournamentMatch{}).
		Where("id = ?", match.ID).
		Update("contest_id", contest.ID).Error
}

// HandleContestCompleted records a match result and, when the round is done,
// either finishes the tournament or generates the next round. Safe against
// duplicate delivery: the match write is guarded and next-round generation
// checks for existing matches inside the transaction, backed by the unique
// (tournament, round, match) index.
func (s *TournamentService) HandleContestCompleted(contestID string) error {
	var contest models.Contest
	if err := s.DB.First(&contest, "id = ?", contestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if contest.TournamentMatchID == nil {
		return nil
	}

	var match models.TournamentMatch
	if err := s.DB.First(&match, "id = ?", *contest.TournamentMatchID).Error; err != nil {
		return err
	}
	if match.Status == models.TournamentMatchStatusCompleted {
		return nil
	}

	points, err := s.Contests.finalPoints(s.DB, &contest)
	if err != nil {
		return err
	}
	// Higher total wins; a tie advances participant 1 of the contest.
	winnerID := contest.User1ID
	if points[contest.User2ID] > points[contest.User1ID] {
		winnerID = contest.User2ID
	}

	if err := match.Advance(models.TournamentMatchStatusCompleted); err != nil {
		return err
	}
	res := s.DB.Model(&models.TournamentMatch{}).
		Where("id = ? AND status <> ?", match.ID, models.TournamentMatchStatusCompleted).
		Updates(map[string]interface{}{"winner_id": winnerID, "status": match.Status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil // a concurrent delivery settled this match
	}
	log.Printf("[Tournament] match %d of round %d in tournament %s won by %s",
		match.MatchNumber, match.RoundNumber, match.TournamentID, winnerID)

	return s.advanceRound(match.TournamentID, match.RoundNumber)
}

// advanceRound runs after a match completes: once every match of the round
// is done it either completes the tournament or pairs the winners into the
// next round.
func (s *TournamentService) advanceRound(tournamentID string, round int) error {
	tournament, err := s.fetch(tournamentID)
	if err != nil {
		return err
	}

	var open int64
	err = s.DB.Model(&models.TournamentMatch{}).
		Where("tournament_id = ? AND round_number = ? AND status <> ?",
			tournamentID, round, models.TournamentMatchStatusCompleted).
		Count(&open).Error
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}

	if round == tournament.NumRounds() {
		if tournament.Status != models.TournamentStatusActive {
			return nil
		}
		if err := tournament.Advance(models.TournamentStatusCompleted); err != nil {
			return err
		}
		res := s.DB.Model(&models.Tournament{}).
			Where("id = ? AND status = ?", tournamentID, models.TournamentStatusActive).
			Update("status", tournament.Status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			log.Printf("[Tournament] tournament %s completed", tournamentID)
		}
		return nil
	}

	next := round + 1
	schedule, err := s.roundSchedule(s.DB, tournamentID, next)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no schedule for round %d of tournament %s", ErrInvariant, next, tournamentID)
		}
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		// Guard: another completion delivery may have generated this round.
		var existing int64
		err := tx.Model(&models.TournamentMatch{}).
			Where("tournament_id = ? AND round_number = ?", tournamentID, next).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		var completed []models.TournamentMatch
		err = tx.Where("tournament_id = ? AND round_number = ?", tournamentID, round).
			Order("match_number ASC").
			Find(&completed).Error
		if err != nil {
			return err
		}

		for i := 0; i+1 < len(completed); i += 2 {
			m1, m2 := completed[i], completed[i+1]
			if m1.WinnerID == nil || m2.WinnerID == nil {
				return fmt.Errorf("%w: completed match without winner in round %d", ErrInvariant, round)
			}
			slot1, err := s.winnerSlot(tx, &m1)
			if err != nil {
				return err
			}
			slot2, err := s.winnerSlot(tx, &m2)
			if err != nil {
				return err
			}
			if err := s.createMatch(tx, tournament, next, i/2+1, slot1, slot2, schedule.StartTime); err != nil {
				return err
			}
		}
		log.Printf("[Tournament] round %d of tournament %s generated", next, tournamentID)
		return nil
	})
}

// winnerSlot resolves the slot the match's winner occupies, so next-round
// matches keep pointing at real bracket positions.
func (s *TournamentService) winnerSlot(tx *gorm.DB, match *models.TournamentMatch) (models.TournamentSlot, error) {
	slotID := match.Slot1ID
	if *match.WinnerID == match.User2ID {
		slotID = match.Slot2ID
	}
	var slot models.TournamentSlot
	err := tx.First(&slot, "id = ?", slotID).Error
	return slot, err
}

func (s *TournamentService) roundSchedule(db *gorm.DB, tournamentID string, round int) (*models.TournamentRoundSchedule, error) {
	var schedule models.TournamentRoundSchedule
	err := db.First(&schedule, "tournament_id = ? AND round_number = ?", tournamentID, round).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *TournamentService) fetch(tournamentID string) (*models.Tournament, error) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tournament %s", ErrNotFound, tournamentID)
		}
		return nil, err
	}
	return &tournament, nil
}

func (s *TournamentService) fetchInvite(inviteID string) (*models.TournamentInvite, error) {
	var invite models.TournamentInvite
	if err := s.DB.First(&invite, "id = ?", inviteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invite %s", ErrNotFound, inviteID)
		}
		return nil, err
	}
	return &invite, nil
}

// BracketMatch is one match as shown in the bracket view.
type BracketMatch struct {
	ID          string     `json:"id"`
	MatchNumber int        `json:"match_number"`
	User1ID     string     `json:"user1_id"`
	User2ID     string     `json:"user2_id"`
	ContestID   *string    `json:"contest_id,omitempty"`
	WinnerID    *string    `json:"winner_id,omitempty"`
	Status      string     `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// BracketRound groups the matches of one round.
type BracketRound struct {
	RoundNumber int            `json:"round_number"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	Matches     []BracketMatch `json:"matches"`
}

// Bracket assembles the read-only bracket projection: every round that
// should exist, scheduled or not yet generated.
func (s *TournamentService) Bracket(tournamentID string) ([]BracketRound, error) {
	tournament, err := s.fetch(tournamentID)
	if err != nil {
		return nil, err
	}

	var schedules []models.TournamentRoundSchedule
	if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&schedules).Error; err != nil {
		return nil, err
	}
	startByRound := make(map[int]time.Time, len(schedules))
	for _, sched := range schedules {
		startByRound[sched.RoundNumber] = sched.StartTime
	}

	var matches []models.TournamentMatch
	err = s.DB.Where("tournament_id = ?", tournamentID).
		Order("round_number ASC, match_number ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	matchesByRound := make(map[int][]BracketMatch)
	for _, m := range matches {
		matchesByRound[m.RoundNumber] = append(matchesByRound[m.RoundNumber], BracketMatch{
			ID:          m.ID,
			MatchNumber: m.MatchNumber,
			User1ID:     m.User1ID,
			User2ID:     m.User2ID,
			ContestID:   m.ContestID,
			WinnerID:    m.WinnerID,
			Status:      m.Status,
			StartTime:   m.StartTime,
			EndTime:     m.EndTime,
		})
	}

	rounds := make([]BracketRound, 0, tournament.NumRounds())
	for r := 1; r <= tournament.NumRounds(); r++ {
		round := BracketRound{RoundNumber: r, Matches: matchesByRound[r]}
		if start, ok := startByRound[r]; ok {
			startCopy := start
			round.StartTime = &startCopy
		}
		if round.Matches == nil {
			round.Matches = []BracketMatch{}
		}
		rounds = append(rounds, round)
	}
	return rounds, nil
}

// --- HTTP handlers ---

type createTournamentRequest struct {
	NumParticipants int `json:"num_participants"`
	Difficulty      int `json:"difficulty"`
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req createTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	tournament, err := s.Create(userID, req.NumParticipants, req.Difficulty)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(tournament)
}

func (s *TournamentService) GetAllTournaments(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	if err := s.DB.Order("created_at DESC").Find(&tournaments).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(tournaments)
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	tournament, err := s.fetch(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	var slots []models.TournamentSlot
	err = s.DB.Where("tournament_id = ?", tournament.ID).
		Order("slot_number ASC").
		Find(&slots).Error
	if err != nil {
		return respondError(c, err)
	}

	var schedules []models.TournamentRoundSchedule
	err = s.DB.Where("tournament_id = ?", tournament.ID).
		Order("round_number ASC").
		Find(&schedules).Error
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"tournament":      tournament,
		"slots":           slots,
		"round_schedules": schedules,
	})
}

type setSchedulesRequest struct {
	Schedules []RoundScheduleEntry `json:"schedules"`
}

func (s *TournamentService) SetSchedules(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req setSchedulesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := s.SetRoundSchedules(c.Params("id"), userID, req.Schedules); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "scheduled"})
}

type inviteRequest struct {
	SlotNumber    int    `json:"slot_number"`
	InvitedHandle string `json:"invited_handle"`
}

func (s *TournamentService) InviteUser(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req inviteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.InvitedHandle == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invited_handle is required"})
	}

	invite, err := s.SendInvite(c.Params("id"), userID, req.SlotNumber, req.InvitedHandle)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(invite)
}

func (s *TournamentService) GetMyInvites(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var invites []models.TournamentInvite
	err := s.DB.Where("invited_user_id = ? AND status = ?", userID, models.TournamentInviteStatusPending).
		Order("created_at DESC").
		Find(&invites).Error
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(invites)
}

func (s *TournamentService) AcceptInviteHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if err := s.AcceptInvite(c.Params("invite_id"), userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": models.TournamentInviteStatusAccepted})
}

func (s *TournamentService) RejectInviteHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if err := s.RejectInvite(c.Params("invite_id"), userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": models.TournamentInviteStatusRejected})
}

type joinSlotRequest struct {
	SlotNumber int `json:"slot_number"`
}

func (s *TournamentService) JoinSlotHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req joinSlotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := s.JoinSlot(c.Params("id"), userID, req.SlotNumber); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "joined"})
}

func (s *TournamentService) StartTournament(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	tournament, err := s.Start(c.Params("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tournament)
}

func (s *TournamentService) GetBracket(c *fiber.Ctx) error {
	rounds, err := s.Bracket(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rounds)
}
