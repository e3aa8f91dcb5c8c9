package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/realtime-ai/callbridge/pkg/bridge"
	"github.com/realtime-ai/callbridge/pkg/server"
	"github.com/realtime-ai/callbridge/pkg/trace"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("Tracing disabled: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		trace.Shutdown(shutdownCtx)
	}()

	engineURL := os.Getenv("ENGINE_URL")
	if engineURL == "" {
		log.Fatal("ENGINE_URL is required")
	}

	srv := server.NewMediaServer(server.Config{
		Address:   getEnv("LISTEN_ADDR", ":8080"),
		StreamURL: getEnv("STREAM_URL", "ws://localhost:8080/media"),
	}, bridge.Config{
		EngineURL:   engineURL,
		VoicePrompt: os.Getenv("VOICE_PROMPT"),
		TextPrompt:  os.Getenv("TEXT_PROMPT"),
	})

	if err := srv.Start(ctx); err != nil {
		log.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down...")
	srv.Stop()
}
