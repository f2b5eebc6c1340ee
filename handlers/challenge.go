package handlers

import (
	"cp-vs-backend/middleware"
	"cp-vs-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, challengeService *services.ChallengeService, jwtSecret string) {
	secured := app.Group("/challenges", middleware.Protected(jwtSecret))
	secured.Post("/", challengeService.CreateChallenge)
	secured.Get("/", challengeService.GetMyChallenges)
	secured.Post("/:id/accept", challengeService.AcceptChallenge)
	secured.Post("/:id/reject", challengeService.RejectChallenge)
}
