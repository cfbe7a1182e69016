package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cronus42/homeassistant-ollama-agent/internal/actions"
	"github.com/cronus42/homeassistant-ollama-agent/internal/agent"
	"github.com/cronus42/homeassistant-ollama-agent/internal/config"
	"github.com/cronus42/homeassistant-ollama-agent/internal/homeassistant"
	"github.com/cronus42/homeassistant-ollama-agent/internal/httpapi"
	"github.com/cronus42/homeassistant-ollama-agent/internal/llm"
	"github.com/cronus42/homeassistant-ollama-agent/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize conversation store
	var convStore store.ConversationStore
	switch cfg.History.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(cfg.History.PostgresDSN, cfg.HistoryRetention())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		convStore = pg
	default:
		convStore = store.NewMemoryStore()
	}

	// Initialize Ollama client
	ollamaClient := llm.NewOllamaClient(
		cfg.Ollama.Host,
		cfg.Ollama.Model,
		cfg.Ollama.ContextLength,
		cfg.Ollama.Temperature,
		cfg.OllamaTimeout(),
	)

	// Initialize Home Assistant client
	haClient := homeassistant.NewClient(
		cfg.HomeAssistant.URL,
		cfg.HomeAssistant.Token,
		cfg.HomeAssistant.ExposedDomains,
		cfg.HomeAssistantTimeout(),
	)

	// Initialize action catalog and dispatcher
	catalog := actions.NewCatalog()
	dispatcher := actions.NewDispatcher(catalog, haClient)

	// Initialize turn orchestrator
	orchestrator := agent.New(ollamaClient, catalog, dispatcher, haClient, convStore, cfg.History.Limit)

	// Initialize HTTP API handler
	handler := httpapi.NewHandler(cfg, ollamaClient, haClient, orchestrator)

	// Create router
	router := httpapi.NewRouter(handler, cfg)

	// Create server
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // Model turns can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Ollama agent starting on %s", cfg.ListenAddr)
		log.Printf("Using Ollama at %s with model %s", cfg.Ollama.Host, cfg.Ollama.Model)
		log.Printf("Using Home Assistant at %s", cfg.HomeAssistant.URL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
