package routes

import (
	"net/http"

	_ "github.com/oggyb/outreach-campaigns/internal/docs" // swagger docs
	"github.com/oggyb/outreach-campaigns/internal/response"
	swaggerHandler "github.com/swaggo/http-swagger"
)

type AppDeps struct {
	Home    HomeHandler
	Message MessageHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type HomeHandler interface {
	Index(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
}

type MessageHandler interface {
	ListMessages(w http.ResponseWriter, r *http.Request)
	GetStats(w http.ResponseWriter, r *http.Request)
	GetMessage(w http.ResponseWriter, r *http.Request)
	LaunchCampaign(w http.ResponseWriter, r *http.Request)
	RetryFailed(w http.ResponseWriter, r *http.Request)
	SendFollowups(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	StartStopScheduler(w http.ResponseWriter, r *http.Request)
	SchedulerStatus(w http.ResponseWriter, r *http.Request)
}

func Register(mux *http.ServeMux, d AppDeps) {
	mux.HandleFunc("GET /{$}", d.Home.Index)
	mux.HandleFunc("GET /health", d.Home.Health)

	mux.HandleFunc("GET /messages", d.Message.ListMessages)
	mux.HandleFunc("GET /messages/stats", d.Message.GetStats)
	mux.HandleFunc("GET /messages/{providerID}", d.Message.GetMessage)
	mux.HandleFunc("POST /messages/retry", d.Message.RetryFailed)
	mux.HandleFunc("POST /messages/followups", d.Message.SendFollowups)
	mux.HandleFunc("POST /messages/refresh", d.Message.Refresh)
	mux.HandleFunc("POST /campaigns", d.Message.LaunchCampaign)

	mux.HandleFunc("POST /scheduler", d.Message.StartStopScheduler)
	mux.HandleFunc("GET /scheduler", d.Message.SchedulerStatus)

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	//Swagger
	mux.HandleFunc("GET /swagger/", swaggerHandler.WrapHandler)

	// Fallback handler for undefined routes (404)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.RespondError(w, http.StatusNotFound, "route not found")
	}))
}
