package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is everything the process reads from the environment, loaded
// once at startup. Provider credentials are mandatory; the process
// refuses to boot without them rather than failing mid-call.
type Config struct {
	Port          string
	PublicBaseURL string

	JWTSecret string

	// telephony provider (outbound REST + inbound webhooks)
	TelephonyBaseURL       string
	TelephonyAPIKey        string
	TelephonyFromNumber    string
	TelephonyWebhookSecret string

	// speech providers
	TTSBaseURL string
	TTSAPIKey  string
	STTWSURL   string
	STTAPIKey  string

	OpenAIAPIKey string
	OpenAIModel  string

	// hard cap on simultaneous calls across all campaigns
	GlobalCallLimit int

	// timezone calling windows are interpreted in
	CampaignLocation *time.Location
}

func Load() (*Config, error) {
	c := &Config{
		Port:          getenvDefault("PORT", "8080"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		TelephonyBaseURL:       strings.TrimRight(os.Getenv("TELEPHONY_BASE_URL"), "/"),
		TelephonyAPIKey:        os.Getenv("TELEPHONY_API_KEY"),
		TelephonyFromNumber:    os.Getenv("TELEPHONY_FROM_NUMBER"),
		TelephonyWebhookSecret: os.Getenv("TELEPHONY_WEBHOOK_SECRET"),

		TTSBaseURL: strings.TrimRight(os.Getenv("TTS_BASE_URL"), "/"),
		TTSAPIKey:  os.Getenv("TTS_API_KEY"),
		STTWSURL:   os.Getenv("STT_WS_URL"),
		STTAPIKey:  os.Getenv("STT_API_KEY"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),
	}

	limit, err := intEnv("GLOBAL_CALL_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	c.GlobalCallLimit = limit

	tz := getenvDefault("CAMPAIGN_TIMEZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("CAMPAIGN_TIMEZONE %q: %w", tz, err)
	}
	c.CampaignLocation = loc

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	var missing []string
	for name, val := range map[string]string{
		"PUBLIC_BASE_URL":          c.PublicBaseURL,
		"JWT_SECRET":               c.JWTSecret,
		"TELEPHONY_BASE_URL":       c.TelephonyBaseURL,
		"TELEPHONY_API_KEY":        c.TelephonyAPIKey,
		"TELEPHONY_FROM_NUMBER":    c.TelephonyFromNumber,
		"TELEPHONY_WEBHOOK_SECRET": c.TelephonyWebhookSecret,
		"TTS_BASE_URL":             c.TTSBaseURL,
		"TTS_API_KEY":              c.TTSAPIKey,
		"STT_WS_URL":               c.STTWSURL,
		"STT_API_KEY":              c.STTAPIKey,
		"OPENAI_API_KEY":           c.OpenAIAPIKey,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	if c.GlobalCallLimit <= 0 {
		return errors.New("GLOBAL_CALL_LIMIT must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}
