package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string

	KnowledgePath string
	CorpusPath    string
	ExcludedPath  string

	HistoryLimit            int
	ContextHistoryThreshold int
	ContextTopK             int
	ContextMaxChars         int
	ProcessTimeoutSec       int
	AutoLearnEnabled        bool

	PokeSchedule        string
	PokeInitialDelaySec int
	PokeSendGapMS       int

	XAIAPIKey     string
	XAIBaseURL    string
	XAIModel      string
	XAITimeoutSec int

	WATIBaseURL    string
	WATIToken      string
	WATITimeoutSec int
}

func FromEnv() Config {
	dataDir := stringOrDefault("WARELAY_DATA_DIR", "./data")

	return Config{
		Environment: stringOrDefault("WARELAY_ENV", "development"),
		HTTPAddr:    stringOrDefault("WARELAY_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      stringOrDefault("WARELAY_DB_PATH", filepath.Join(dataDir, "warelay.sqlite")),

		KnowledgePath: stringOrDefault("WARELAY_KNOWLEDGE_PATH", filepath.Join(dataDir, "knowledge.md")),
		CorpusPath:    stringOrDefault("WARELAY_CORPUS_PATH", filepath.Join(dataDir, "corpus.json")),
		ExcludedPath:  stringOrDefault("WARELAY_EXCLUDED_PATH", filepath.Join(dataDir, "excluded.json")),

		HistoryLimit:            intOrDefault("WARELAY_HISTORY_LIMIT", 15),
		ContextHistoryThreshold: intOrDefault("WARELAY_CONTEXT_HISTORY_THRESHOLD", 3),
		ContextTopK:             intOrDefault("WARELAY_CONTEXT_TOP_K", 5),
		ContextMaxChars:         intOrDefault("WARELAY_CONTEXT_MAX_CHARS", 2000),
		ProcessTimeoutSec:       intOrDefault("WARELAY_PROCESS_TIMEOUT_SEC", 120),
		AutoLearnEnabled:        boolOrDefault("WARELAY_AUTO_LEARN", true),

		PokeSchedule:        stringOrDefault("WARELAY_POKE_SCHEDULE", "0 * * * *"),
		PokeInitialDelaySec: intOrDefault("WARELAY_POKE_INITIAL_DELAY_SEC", 30),
		PokeSendGapMS:       intOrDefault("WARELAY_POKE_SEND_GAP_MS", 2000),

		XAIAPIKey:     strings.TrimSpace(os.Getenv("WARELAY_XAI_API_KEY")),
		XAIBaseURL:    stringOrDefault("WARELAY_XAI_BASE_URL", "https://api.x.ai/v1"),
		XAIModel:      stringOrDefault("WARELAY_XAI_MODEL", "grok-4-1-fast-reasoning"),
		XAITimeoutSec: intOrDefault("WARELAY_XAI_TIMEOUT_SEC", 45),

		WATIBaseURL:    strings.TrimSpace(os.Getenv("WARELAY_WATI_BASE_URL")),
		WATIToken:      strings.TrimSpace(os.Getenv("WARELAY_WATI_TOKEN")),
		WATITimeoutSec: intOrDefault("WARELAY_WATI_TIMEOUT_SEC", 30),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
