package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	AssemblyAIKey string `env:"ASSEMBLYAI_API_KEY"`

	CerebrasKey     string `env:"CEREBRAS_API_KEY"`
	CerebrasModelID string `env:"CEREBRAS_MODEL_ID" envDefault:"llama-4-maverick-17b-128e-instruct"`

	DeepgramKey   string `env:"DEEPGRAM_API_KEY"`
	DeepgramVoice string `env:"DEEPGRAM_VOICE_MODEL" envDefault:"aura-2-thalia-en"`

	ElevenLabsKey     string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	// PublicBaseURL is the externally reachable base for webhook callbacks.
	// When empty, forwarded headers and the request host are used instead.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	// PhoneRole and PhoneDifficulty shape sessions created by inbound phone
	// calls, which carry no setup payload.
	PhoneRole       string `env:"PHONE_ROLE" envDefault:"software engineer"`
	PhoneDifficulty string `env:"PHONE_DIFFICULTY" envDefault:"mid"`

	SupabaseURL    string `env:"SUPABASE_URL"`
	SupabaseKey    string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseBucket string `env:"SUPABASE_BUCKET" envDefault:"interview-audio"`

	ICEServersJSON string `env:"ICE_SERVERS_JSON" envDefault:"[{\"urls\":[\"stun:stun.l.google.com:19302\"]}]"`

	// ListenTimeout is the hard per-question listening ceiling. Question time
	// budgets are advisory and never override it.
	ListenTimeout time.Duration `env:"LISTEN_TIMEOUT" envDefault:"90s"`
	// QuestionCount is the default number of questions per session.
	QuestionCount int `env:"QUESTION_COUNT" envDefault:"5"`
}

// Load reads .env (when present) and parses the environment. Missing
// provider keys are warnings, not errors: each adapter degrades on its own.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.AssemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	}
	if cfg.CerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - question generation and evaluation will fall back")
	}
	if cfg.DeepgramKey == "" && cfg.ElevenLabsKey == "" {
		log.Println("Warning: no TTS key set - questions will not be spoken")
	}

	log.Printf("config: HTTP_ADDRESS=%s LISTEN_TIMEOUT=%s", cfg.HTTPAddress, cfg.ListenTimeout)
	return cfg, nil
}
