package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the REST API and the websocket attempt channel.
func NewRouter(h *Handler, ws *WSHandler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", ActorHeader},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/quizzes/{quizID}", func(r chi.Router) {
			r.Get("/", h.GetQuiz)
			r.Put("/", h.PutQuiz)
			r.Delete("/", h.DeleteQuiz)

			r.Post("/attempts/start", h.StartAttempt)
			r.Post("/attempts/submit", h.SubmitAttempt)

			r.Get("/retakes", h.ListRetakes)
			r.Post("/retakes", h.GrantRetake)
			r.Delete("/retakes/{grantID}", h.RevokeRetake)

			r.Post("/corrections", h.ApplyCorrection)
		})

		r.Route("/attempts/{attemptID}", func(r chi.Router) {
			r.Get("/result", h.GetResult)
			r.Get("/student-result", h.GetStudentResult)
			r.Put("/score", h.ModifyScore)
			r.Get("/modifications", h.ListScoreModifications)
		})
	})
	return r
}
