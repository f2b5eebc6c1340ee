package handlers

import (
	"cp-vs-backend/middleware"
	"cp-vs-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupContestRoutes(app *fiber.App, contestService *services.ContestService, jwtSecret string) {
	app.Get("/contests/latest", contestService.GetLatestCompleted)

	secured := app.Group("/contests", middleware.Protected(jwtSecret))
	secured.Get("/mine", contestService.GetMyContests)
	secured.Get("/upcoming", contestService.GetUpcoming)
	secured.Get("/:id", contestService.GetContestByID)
	secured.Get("/:id/problems", contestService.GetContestProblems)
}
