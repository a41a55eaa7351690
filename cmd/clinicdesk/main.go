package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/api"
	"github.com/clinicdesk/clinicdesk/internal/dialogue"
	"github.com/clinicdesk/clinicdesk/internal/genai"
	"github.com/clinicdesk/clinicdesk/internal/lockfile"
	"github.com/clinicdesk/clinicdesk/internal/messaging"
	"github.com/clinicdesk/clinicdesk/internal/models"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/store"
	"github.com/clinicdesk/clinicdesk/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ClinicDesk state data
	DefaultStateDir = "/var/lib/clinicdesk"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "clinicdesk.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Hold the state directory for the lifetime of the process so two
	// instances never share the same SQLite file or lock state.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping ClinicDesk with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "openai_key_set", *flags.openaiKey != "")

	if err := run(flags); err != nil {
		slog.Error("ClinicDesk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ClinicDesk exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	SeedDemo    bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	seedDemo    *bool
	twilioSID   string
	twilioToken string
	twilioFrom  string
}

// initializeLogger sets up structured logging. LOG_LEVEL selects the level;
// unset or unrecognized values mean info.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("CLINICDESK_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
		SeedDemo:    util.ParseBoolEnv("CLINICDESK_SEED_DEMO", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CLINICDESK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("CLINICDESK_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CLINICDESK_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"SEED_DEMO", config.SeedDemo)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for ClinicDesk data (overrides $CLINICDESK_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or postgres:// URL (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for intent classification (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		seedDemo:    flag.Bool("seed-demo", config.SeedDemo, "seed a demo slot inventory on startup (overrides $CLINICDESK_SEED_DEMO)"),
		twilioSID:   config.TwilioSID,
		twilioToken: config.TwilioToken,
		twilioFrom:  config.TwilioFrom,
	}

	flag.Parse()

	// No DSN means SQLite in the state directory. The in-memory store is
	// reachable with -db-dsn=memory for throwaway runs.
	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", *flags.dbDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"seedDemo", *flags.seedDemo)

	return flags
}

// openStore selects a backend from the DSN.
func openStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "memory" {
		slog.Debug("Using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildClassifier constructs the optional OpenAI classifier. Returns nil when
// no API key is configured; the router then relies on keyword rules alone.
func buildClassifier(flags Flags) (dialogue.Classifier, error) {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key configured, intent routing uses keyword rules only")
		return nil, nil
	}
	genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// buildResponder constructs the optional Twilio channel. Returns nil when no
// account SID is configured; the webhook endpoint then answers 503.
func buildResponder(flags Flags, coordinator *dialogue.Coordinator, st store.Store) (*messaging.Responder, error) {
	if flags.twilioSID == "" {
		slog.Info("No Twilio credentials configured, messaging channel disabled")
		return nil, nil
	}
	sender, err := messaging.NewTwilioClient(
		messaging.WithAccountSID(flags.twilioSID),
		messaging.WithAuthToken(flags.twilioToken),
		messaging.WithFromNumber(flags.twilioFrom),
	)
	if err != nil {
		return nil, err
	}
	return messaging.NewResponder(coordinator, sender, st), nil
}

func run(flags Flags) error {
	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := scheduling.NewEngine(st)

	classifier, err := buildClassifier(flags)
	if err != nil {
		return err
	}

	coordinator, err := dialogue.NewCoordinator(
		dialogue.NewSessionManager(st),
		dialogue.NewRouter(classifier),
		dialogue.NewFAQHandler(),
		dialogue.NewAvailabilityHandler(engine),
		dialogue.NewPatientRecordsHandler(st, engine),
		dialogue.NewBookingHandler(engine),
	)
	if err != nil {
		return err
	}

	responder, err := buildResponder(flags, coordinator, st)
	if err != nil {
		return err
	}

	if *flags.seedDemo || *flags.dbDSN == "memory" {
		if err := seedDemoSlots(context.Background(), st); err != nil {
			return err
		}
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return api.NewServer(coordinator, engine, st, responder, apiOpts...).Run()
}

// demoDoctors is the clinic roster used for the seeded slot inventory.
var demoDoctors = []struct {
	id             int
	name           string
	specialization string
}{
	{1, "Dr. Mohamed Tajmouati", "Orthodontics"},
	{2, "Dr. Adil Tajmouati", "Prosthetics"},
	{3, "Dr. Hanane Louizi", "Periodontology"},
}

// demoTimes are the daily consultation slots, matching clinic opening hours.
var demoTimes = []string{"09:00", "10:30", "14:00", "15:30", "17:00"}

// seedDemoSlots fills the next week with open slots for every doctor.
// Slots that already exist are left alone so reservations survive restarts.
func seedDemoSlots(ctx context.Context, st store.Store) error {
	now := time.Now()
	horizon := util.ParseIntEnv("CLINICDESK_SEED_DAYS", 7)
	seeded := 0
	for day := 0; day < horizon; day++ {
		date := now.AddDate(0, 0, day)
		if date.Weekday() == time.Sunday {
			continue
		}
		dateStr := date.Format(models.DateLayout)
		for _, doc := range demoDoctors {
			for _, hour := range demoTimes {
				slot := models.AvailabilitySlot{
					DoctorID:       doc.id,
					DoctorName:     doc.name,
					Specialization: doc.specialization,
					Timestamp:      dateStr + " " + hour,
					IsAvailable:    true,
				}
				existing, err := st.GetSlot(ctx, slot.DoctorName, slot.Timestamp)
				if err != nil {
					return err
				}
				if existing != nil {
					continue
				}
				if err := st.UpsertSlot(ctx, slot); err != nil {
					slog.Error("Failed to seed demo slot", "error", err, "doctor", doc.name, "timestamp", slot.Timestamp)
					return err
				}
				seeded++
			}
		}
	}
	slog.Info("Seeded demo slot inventory", "slots", seeded)
	return nil
}
