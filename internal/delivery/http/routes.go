package http

import (
	"net/http"

	wsDelivery "chatline/internal/delivery/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func MapHttpRoutes(r *chi.Mux, httpHandler *HttpHandler, websocketHandler *wsDelivery.WebsocketHandler, authMiddleware *AuthMiddleware) {
	r.Handle("/ws", http.HandlerFunc(websocketHandler.HandleWebSocket))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/chat/{chatId}", func(r chi.Router) {
			r.Get("/messages", http.HandlerFunc(httpHandler.GetMessages))
			r.Post("/messages", http.HandlerFunc(httpHandler.SendMessage))
			r.Get("/messages/search", http.HandlerFunc(httpHandler.SearchMessages))
			r.Get("/messages/around/{messageId}", http.HandlerFunc(httpHandler.GetMessagesAround))
			r.Get("/messages/before/{messageId}", http.HandlerFunc(httpHandler.GetMessagesBefore))
			r.Get("/messages/after/{messageId}", http.HandlerFunc(httpHandler.GetMessagesAfter))
			r.Get("/messages/{messageId}", http.HandlerFunc(httpHandler.GetMessage))
			r.Put("/messages/{messageId}", http.HandlerFunc(httpHandler.EditMessage))
			r.Delete("/messages/{messageId}", http.HandlerFunc(httpHandler.DeleteMessage))
			r.Post("/messages/{messageId}/poll/vote", http.HandlerFunc(httpHandler.VotePoll))
			r.Delete("/messages/{messageId}/poll/vote", http.HandlerFunc(httpHandler.RetractPollVote))

			r.Post("/read", http.HandlerFunc(httpHandler.MarkAsRead))
			r.Get("/unread", http.HandlerFunc(httpHandler.GetUnreadCount))

			r.Get("/members", http.HandlerFunc(httpHandler.GetRoster))
			r.Post("/members", http.HandlerFunc(httpHandler.JoinChat))
			r.Delete("/members", http.HandlerFunc(httpHandler.LeaveChat))
			r.Put("/notifications", http.HandlerFunc(httpHandler.SetNotifications))
		})

		r.Get("/unread", http.HandlerFunc(httpHandler.GetAllUnreadCounts))
		r.Post("/messages/{messageId}/transcription/retry", http.HandlerFunc(httpHandler.RetryTranscription))
	})
}
