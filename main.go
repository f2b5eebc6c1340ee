package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cp-vs-backend/handlers"
	"cp-vs-backend/models"
	"cp-vs-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}
	judgeURL := os.Getenv("CODEFORCES_API_URL")
	if judgeURL == "" {
		judgeURL = "https://codeforces.com/api"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
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
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	judge := services.NewCodeforcesClient(judgeURL)

	contestService := services.NewContestService(db, judge)
	challengeService := services.NewChallengeService(db, contestService)
	tournamentService := services.NewTournamentService(db, contestService)
	confirmationService := services.NewConfirmationService(db, judge)
	userService := services.NewUserService(db, judge, jwtSecret)

	scheduler, err := services.NewSchedulerService(contestService, challengeService, confirmationService)
	if err != nil {
		log.Fatal("failed to create scheduler:", err)
	}

	// Completion wiring: contests notify the bracket and retire their own
	// poll jobs; activations add them.
	contestService.OnContestActivated = scheduler.AddContestJob
	contestService.OnContestRetired = scheduler.RemoveContestJob
	contestService.OnContestCompleted = func(contestID string) {
		if err := tournamentService.HandleContestCompleted(contestID); err != nil {
			log.Printf("[Tournament] advancement failed for contest %s: %v", contestID, err)
		}
	}

	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		AppName: "cp-vs-backend",
	})

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupUserRoutes(app, userService, jwtSecret)
	handlers.SetupChallengeRoutes(app, challengeService, jwtSecret)
	handlers.SetupContestRoutes(app, contestService, jwtSecret)
	handlers.SetupTournamentRoutes(app, tournamentService, jwtSecret)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5200"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ Codeforces polling against %s", judgeURL)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := scheduler.Stop(); err != nil {
		log.Printf("scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
