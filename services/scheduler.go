package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// SchedulerService owns the gocron scheduler and every recurring sweep.
// Besides the fixed sweeps it manages one poll job per active contest,
// named check_contest_<id>, added on activation and removed on completion.
// The CheckAllActive sweep stays on as a safety net for jobs lost across a
// restart.
type SchedulerService struct {
	sched         gocron.Scheduler
	contests      *ContestService
	challenges    *ChallengeService
	confirmations *ConfirmationService

	mu          sync.Mutex
	contestJobs map[string]uuid.UUID
}

func NewSchedulerService(contests *ContestService, challenges *ChallengeService, confirmations *ConfirmationService) (*SchedulerService, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &SchedulerService{
		sched:         sched,
		contests:      contests,
		challenges:    challenges,
		confirmations: confirmations,
		contestJobs:   make(map[string]uuid.UUID),
	}, nil
}

// Start registers the recurring sweeps and starts the scheduler.
func (s *SchedulerService) Start() error {
	ctx := context.Background()

	jobs := []struct {
		every time.Duration
		task  func()
	}{
		{10 * time.Second, func() { s.contests.CheckAllActive(ctx) }},
		{30 * time.Second, func() { s.contests.AssignProblemsSweep(ctx) }},
		{60 * time.Second, func() { s.contests.ActivateScheduledSweep(ctx) }},
		{60 * time.Second, func() { s.contests.ReconcileCompletedSweep(ctx) }},
		{60 * time.Second, func() { s.challenges.ExpirePendingSweep() }},
		{60 * time.Second, func() { s.confirmations.Sweep(ctx) }},
	}
	for _, j := range jobs {
		if _, err := s.sched.NewJob(gocron.DurationJob(j.every), gocron.NewTask(j.task)); err != nil {
			return err
		}
	}

	s.sched.Start()
	log.Printf("[Scheduler] started with %d sweep jobs", len(jobs))
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *SchedulerService) Stop() error {
	return s.sched.Shutdown()
}

// AddContestJob starts a 10-second poll job for one contest. Idempotent:
// a second add for the same contest is a no-op.
func (s *SchedulerService) AddContestJob(contestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contestJobs[contestID]; exists {
		return
	}

	name := fmt.Sprintf("check_contest_%s", contestID)
	job, err := s.sched.NewJob(
		gocron.DurationJob(10*time.Second),
		gocron.NewTask(func() {
			if err := s.contests.CheckSubmissions(context.Background(), contestID); err != nil {
				log.Printf("[Scheduler] poll failed for contest %s: %v", contestID, err)
			}
		}),
		gocron.WithName(name),
	)
	if err != nil {
		log.Printf("[Scheduler] adding job %s failed: %v", name, err)
		return
	}
	s.contestJobs[contestID] = job.ID()
	log.Printf("[Scheduler] job %s added", name)
}

// RemoveContestJob retires the poll job of a finished contest.
func (s *SchedulerService) RemoveContestJob(contestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, exists := s.contestJobs[contestID]
	if !exists {
		return
	}
	if err := s.sched.RemoveJob(jobID); err != nil {
		log.Printf("[Scheduler] removing job for contest %s failed: %v", contestID, err)
	}
	delete(s.contestJobs, contestID)
	log.Printf("[Scheduler] job check_contest_%s removed", contestID)
}

// TracksContest reports whether a poll job is registered for the contest.
func (s *SchedulerService) TracksContest(contestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.contestJobs[contestID]
	return exists
}
