package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai"},
	"stt":        {"deepgram"},
	"tts":        {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Realtime
	if cfg.Realtime.APIKey == "" {
		errs = append(errs, errors.New("realtime.api_key is required"))
	}
	if cfg.Realtime.VADThreshold < 0 || cfg.Realtime.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("realtime.vad_threshold %.2f is out of range [0, 1]", cfg.Realtime.VADThreshold))
	}

	// Summary / retrieval provider name validation — warn for unknown names.
	validateProviderName("llm", cfg.Summary.Primary.Name)
	for _, fb := range cfg.Summary.Fallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Retrieval.Embeddings.Name)

	if cfg.Retrieval.Embeddings.Name != "" && cfg.Retrieval.EmbeddingDimensions <= 0 {
		slog.Warn("retrieval.embeddings is configured but retrieval.embedding_dimensions is not set; defaulting to 1536")
	}

	if len(cfg.Businesses) == 0 {
		slog.Warn("no businesses configured; all inbound calls will be rejected")
	}

	// Text API
	if cfg.TextAPI != nil {
		if cfg.TextAPI.STT.Name == "" || cfg.TextAPI.STT.APIKey == "" {
			errs = append(errs, errors.New("text_api.stt requires name and api_key"))
		}
		if cfg.TextAPI.TTS.Name == "" || cfg.TextAPI.TTS.APIKey == "" {
			errs = append(errs, errors.New("text_api.tts requires name and api_key"))
		}
		if cfg.TextAPI.Voice == "" {
			errs = append(errs, errors.New("text_api.voice is required"))
		}
		validateProviderName("stt", cfg.TextAPI.STT.Name)
		validateProviderName("tts", cfg.TextAPI.TTS.Name)
	}

	hasEmailTransport := cfg.Email.SMTP != nil || cfg.Email.REST != nil
	hasSMSCredentials := cfg.SMS.AccountSID != "" && cfg.SMS.AuthToken != ""

	idsSeen := make(map[string]int, len(cfg.Businesses))
	numbersSeen := make(map[string]string)

	for i, biz := range cfg.Businesses {
		prefix := fmt.Sprintf("businesses[%d]", i)

		if biz.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := idsSeen[biz.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of businesses[%d]", prefix, biz.ID, prev))
			}
			idsSeen[biz.ID] = i
		}
		if biz.DisplayName == "" {
			errs = append(errs, fmt.Errorf("%s.display_name is required", prefix))
		}

		if len(biz.IncomingNumbers) == 0 {
			errs = append(errs, fmt.Errorf("%s.incoming_numbers must list at least one number", prefix))
		}
		for _, num := range biz.IncomingNumbers {
			if !strings.HasPrefix(num, "+") {
				slog.Warn("incoming number is not in E.164 form",
					"business", biz.ID, "number", num)
			}
			if owner, ok := numbersSeen[num]; ok {
				errs = append(errs, fmt.Errorf("%s: incoming number %q is already claimed by business %q", prefix, num, owner))
				continue
			}
			numbersSeen[num] = biz.ID
		}

		if biz.Prompt == "" {
			slog.Warn("business has no prompt; the agent will use a generic persona", "business", biz.ID)
		}

		// Feature ↔ configuration cross-validation.
		if biz.Features.AppointmentBooking {
			errs = append(errs, validateCalendar(prefix, biz.Calendar)...)
		}
		if biz.Features.Emergency {
			if biz.Emergency == nil || biz.Emergency.TransferNumber == "" {
				errs = append(errs, fmt.Errorf("%s: features.emergency requires emergency.transfer_number", prefix))
			}
		}
		if biz.Emergency != nil && biz.Emergency.Digit != "" {
			if len(biz.Emergency.Digit) != 1 || !strings.ContainsAny(biz.Emergency.Digit, "0123456789*#") {
				errs = append(errs, fmt.Errorf("%s.emergency.digit %q must be a single DTMF digit (0-9, *, #)", prefix, biz.Emergency.Digit))
			}
		}
		if biz.Features.RAG {
			if cfg.Retrieval.PostgresDSN == "" {
				errs = append(errs, fmt.Errorf("%s: features.rag requires retrieval.postgres_dsn", prefix))
			}
			if cfg.Retrieval.Embeddings.Name == "" {
				errs = append(errs, fmt.Errorf("%s: features.rag requires a retrieval.embeddings provider", prefix))
			}
		}

		// Delivery targets without a transport are dead letters.
		if biz.Email != nil && len(biz.Email.Recipients) > 0 && !hasEmailTransport {
			slog.Warn("business lists email recipients but no email transport is configured; summaries will not be emailed",
				"business", biz.ID)
		}
		if biz.SMS != nil && len(biz.SMS.AdminNumbers) > 0 && !hasSMSCredentials {
			slog.Warn("business lists sms admin numbers but sms credentials are not configured; summaries will not be texted",
				"business", biz.ID)
		}
	}

	if cfg.Summary.Primary.Name == "" && len(cfg.Businesses) > 0 {
		slog.Warn("summary.primary is not configured; post-call summaries will use the raw transcript")
	}

	return errors.Join(errs...)
}

// validateCalendar checks a calendar block that appointment booking depends on.
func validateCalendar(prefix string, cal *CalendarConfig) []error {
	if cal == nil {
		return []error{fmt.Errorf("%s: features.appointment_booking requires a calendar block", prefix)}
	}

	var errs []error
	switch {
	case cal.Provider == "":
		errs = append(errs, fmt.Errorf("%s.calendar.provider is required", prefix))
	case !cal.Provider.IsValid():
		errs = append(errs, fmt.Errorf("%s.calendar.provider %q is invalid; valid values: google, microsoft", prefix, cal.Provider))
	case cal.Provider == CalendarGoogle:
		if cal.Google == nil || cal.Google.CredentialsFile == "" || cal.Google.CalendarID == "" {
			errs = append(errs, fmt.Errorf("%s.calendar.google requires credentials_file and calendar_id", prefix))
		}
	case cal.Provider == CalendarMicrosoft:
		if cal.Microsoft == nil || cal.Microsoft.TenantID == "" || cal.Microsoft.ClientID == "" ||
			cal.Microsoft.ClientSecret == "" || cal.Microsoft.UserID == "" {
			errs = append(errs, fmt.Errorf("%s.calendar.microsoft requires tenant_id, client_id, client_secret and user_id", prefix))
		}
	}

	if cal.Timezone != "" {
		if _, err := time.LoadLocation(cal.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("%s.calendar.timezone %q is not a valid IANA zone", prefix, cal.Timezone))
		}
	}
	if cal.StartHour != 0 || cal.EndHour != 0 {
		if cal.StartHour < 0 || cal.EndHour > 24 || cal.StartHour >= cal.EndHour {
			errs = append(errs, fmt.Errorf("%s.calendar: start_hour %d / end_hour %d is not a valid window", prefix, cal.StartHour, cal.EndHour))
		}
	}
	if cal.SlotMinutes < 0 {
		errs = append(errs, fmt.Errorf("%s.calendar.slot_minutes must not be negative", prefix))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
