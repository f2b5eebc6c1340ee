package handlers

import (
	"cp-vs-backend/middleware"
	"cp-vs-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService, jwtSecret string) {
	app.Get("/tournaments", tournamentService.GetAllTournaments)
	app.Get("/tournaments/:id", tournamentService.GetTournamentByID)
	app.Get("/tournaments/:id/bracket", tournamentService.GetBracket)

	secured := app.Group("/", middleware.Protected(jwtSecret))
	secured.Post("/tournaments", tournamentService.CreateTournament)
	secured.Put("/tournaments/:id/schedules", tournamentService.SetSchedules)
	secured.Post("/tournaments/:id/invites", tournamentService.InviteUser)
	secured.Post("/tournaments/:id/join", tournamentService.JoinSlotHandler)
	secured.Post("/tournaments/:id/start", tournamentService.StartTournament)

	secured.Get("/invites", tournamentService.GetMyInvites)
	secured.Post("/invites/:invite_id/accept", tournamentService.AcceptInviteHandler)
	secured.Post("/invites/:invite_id/reject", tournamentService.RejectInviteHandler)
}
