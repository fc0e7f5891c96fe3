package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	api "github.com/chadiek/interview-coach/api/http"
	"github.com/chadiek/interview-coach/internal/archive"
	"github.com/chadiek/interview-coach/internal/capture"
	"github.com/chadiek/interview-coach/internal/config"
	"github.com/chadiek/interview-coach/internal/eval"
	"github.com/chadiek/interview-coach/internal/httpserver"
	"github.com/chadiek/interview-coach/internal/interview"
	"github.com/chadiek/interview-coach/internal/llm"
	"github.com/chadiek/interview-coach/internal/middleware"
	"github.com/chadiek/interview-coach/internal/phone"
	"github.com/chadiek/interview-coach/internal/questions"
	"github.com/chadiek/interview-coach/internal/speech"
	"github.com/chadiek/interview-coach/internal/store"
	"github.com/chadiek/interview-coach/internal/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	st := store.New(pool)

	generator := llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	source := questions.NewSource(st, generator)
	transcriber := transcribe.NewAssemblyAIClient(cfg.AssemblyAIKey)
	engine := eval.NewEngine(st, generator)

	speaker := &speech.Fallback{}
	if cfg.DeepgramKey != "" {
		speaker.Speakers = append(speaker.Speakers,
			speech.NewDeepgramSpeaker(cfg.DeepgramKey, cfg.DeepgramVoice, speech.NopSink))
	}
	if cfg.ElevenLabsKey != "" {
		speaker.Speakers = append(speaker.Speakers,
			speech.NewElevenLabsSpeaker(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, speech.NopSink))
	}

	var archiver interview.Archiver
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		a, err := archive.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("archive disabled: %v", err)
		} else {
			archiver = a
		}
	}

	manager := interview.NewManager(interview.Deps{
		Speaker:       speaker,
		Transcriber:   transcriber,
		Sessions:      st,
		Answers:       st,
		Evaluator:     engine,
		Archiver:      archiver,
		ListenTimeout: cfg.ListenTimeout,
	})

	e := httpserver.New()
	e.Use(middleware.TwilioAuth(cfg.TwilioAuthToken))

	handlers := api.NewHandlers(st, source, manager, capture.NewWebRTCTransport(cfg.ICEServersJSON))
	handlers.Speaker = speaker
	handlers.DefaultQuestionCount = cfg.QuestionCount
	handlers.Register(e)

	if cfg.TwilioAuthToken != "" {
		phoneSvc := &phone.Service{
			AccountSID:    cfg.TwilioAccountSID,
			AuthToken:     cfg.TwilioAuthToken,
			PublicBaseURL: cfg.PublicBaseURL,
			Role:          cfg.PhoneRole,
			Difficulty:    cfg.PhoneDifficulty,
			QuestionCount: cfg.QuestionCount,
			Store:         st,
			Questions:     source,
			Transcriber:   transcriber,
			Evaluator:     engine,
			Archiver:      archiver,
		}
		phoneSvc.Register(e)
	}

	if err := httpserver.Run(ctx, e, cfg.HTTPAddress); err != nil {
		log.Printf("http server: %v", err)
	}

	// let live sessions store terminal status and evaluation before exit
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.Shutdown(drainCtx)
	log.Println("all sessions drained, bye")
}
