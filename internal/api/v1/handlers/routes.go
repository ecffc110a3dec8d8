package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	v1assistant "github.com/parleyhq/parley/internal/api/v1/handlers/assistant"
	v1threads "github.com/parleyhq/parley/internal/api/v1/handlers/threads"
	v1mware "github.com/parleyhq/parley/internal/api/v1/middleware"
	"github.com/parleyhq/parley/internal/services"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()

	// Assistant v1 routes (streamed responses)
	v1assistantRouter := v1.PathPrefix("/assistant").Subrouter()
	v1assistantRouter.Handle("", v1mware.RateLimit("assistant")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1assistant.HandleMessage(services.GetAssistantService(), w, r)
	}))).Methods("POST")

	// Thread v1 routes (transcript inspection)
	v1threadsRouter := v1.PathPrefix("/threads").Subrouter()
	v1threadsRouter.Handle("/{threadId}", v1mware.RateLimit("global")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1threads.HandleGetThread(services.GetThreadService(), w, r)
	}))).Methods("GET")
}
