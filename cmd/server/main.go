package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/teamflow/teamflow/backend-go/internal/activity"
	"github.com/teamflow/teamflow/backend-go/internal/auth"
	"github.com/teamflow/teamflow/backend-go/internal/config"
	"github.com/teamflow/teamflow/backend-go/internal/db"
	"github.com/teamflow/teamflow/backend-go/internal/event"
	mw "github.com/teamflow/teamflow/backend-go/internal/middleware"
	"github.com/teamflow/teamflow/backend-go/internal/presence"
	"github.com/teamflow/teamflow/backend-go/internal/project"
	"github.com/teamflow/teamflow/backend-go/internal/task"
	"github.com/teamflow/teamflow/backend-go/internal/user"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Client().Disconnect(context.Background())

	userStore := user.NewStore(database)
	if err := userStore.EnsureIndexes(ctx); err != nil {
		slog.Error("ensure indexes", "error", err)
		os.Exit(1)
	}

	activityStore := activity.NewStore(database)

	authService := auth.NewService(userStore, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	projectService := project.NewService(database, userStore, activityStore)
	projectHandler := project.NewHandler(projectService)

	taskService := task.NewService(database, projectService, userStore, activityStore)
	taskHandler := task.NewHandler(taskService)

	eventService := event.NewService(database)
	eventHandler := event.NewHandler(eventService)

	activityHandler := activity.NewHandler(activityStore)

	// Presence engine: one registry, one room table, one roster, all owned
	// by a single router event loop.
	registry := presence.NewRegistry()
	rooms := presence.NewRoomTable()
	roster := presence.NewRoster()
	reconciler := presence.NewReconciler(userStore)
	router := presence.NewRouter(registry, rooms, roster, reconciler)
	go router.Run()

	userHandler := user.NewHandler(userStore, projectService, router)

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(strings.Split(cfg.AllowedOrigins, ",")))

	// Auth routes (public)
	r.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// Health check
	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/auth/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/auth/change-password", authHandler.ChangePassword).Methods("PUT")

	api.HandleFunc("/projects", projectHandler.List).Methods("GET")
	api.HandleFunc("/projects", projectHandler.Create).Methods("POST")
	api.HandleFunc("/projects/{projectId}", projectHandler.Get).Methods("GET")
	api.HandleFunc("/projects/{projectId}", projectHandler.Update).Methods("PUT")
	api.HandleFunc("/projects/{projectId}", projectHandler.Delete).Methods("DELETE")
	api.HandleFunc("/projects/{projectId}/invite", projectHandler.Invite).Methods("POST")
	api.HandleFunc("/projects/{projectId}/members", projectHandler.ListMembers).Methods("GET")
	api.HandleFunc("/projects/{projectId}/members/{userId}", projectHandler.RemoveMember).Methods("DELETE")

	api.HandleFunc("/tasks", taskHandler.Create).Methods("POST")
	api.HandleFunc("/tasks/project/{projectId}", taskHandler.ListByProject).Methods("GET")
	api.HandleFunc("/tasks/{taskId}", taskHandler.Get).Methods("GET")
	api.HandleFunc("/tasks/{taskId}", taskHandler.Update).Methods("PUT")
	api.HandleFunc("/tasks/{taskId}/move", taskHandler.Move).Methods("PUT")
	api.HandleFunc("/tasks/{taskId}", taskHandler.Delete).Methods("DELETE")

	api.HandleFunc("/team-events", eventHandler.List).Methods("GET")
	api.HandleFunc("/team-events", eventHandler.Create).Methods("POST")
	api.HandleFunc("/team-events/upcoming", eventHandler.Upcoming).Methods("GET")
	api.HandleFunc("/team-events/{eventId}", eventHandler.Get).Methods("GET")
	api.HandleFunc("/team-events/{eventId}", eventHandler.Update).Methods("PUT")
	api.HandleFunc("/team-events/{eventId}", eventHandler.Delete).Methods("DELETE")

	api.HandleFunc("/activities/{userId}", activityHandler.ListForUser).Methods("GET")

	api.HandleFunc("/users/online", userHandler.Online).Methods("GET")
	api.HandleFunc("/users/team", userHandler.Team).Methods("GET")
	api.HandleFunc("/users/profile", userHandler.UpdateProfile).Methods("PUT")

	// WebSocket endpoint
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, router, authService, strings.Split(cfg.AllowedOrigins, ","))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop the presence loop, then wait for pending presence writes
		// so final offline transitions reach the store.
		router.Stop()
		reconciler.Flush()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, router *presence.Router, authSvc *auth.Service, origins []string) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, err := authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		patterns = append(patterns, strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://"))
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: patterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := presence.NewClient(router, conn, uuid.New().String(), userID)
	router.Connect(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
