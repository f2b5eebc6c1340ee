package handlers

import (
	"cp-vs-backend/middleware"
	"cp-vs-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService, jwtSecret string) {
	app.Post("/auth/register", userService.Register)
	app.Post("/auth/login", userService.Login)
	app.Get("/leaderboard", userService.GetLeaderboard)

	secured := app.Group("/", middleware.Protected(jwtSecret))
	secured.Get("/users/me", userService.Me)
	secured.Get("/users/search", userService.SearchUsers)
	secured.Get("/users/:id/rating-history", userService.GetRatingHistory)
}
