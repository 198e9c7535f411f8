package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses duration-valued variables

	"github.com/joho/godotenv" // optional .env loading for local development
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Operator-tunable knobs (threshold table, batch
// size, auto-sync schedule) are deliberately not here: they live in the
// settings table so they can change without a restart.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for password hashing

	LockLease    time.Duration // lease on the full-sync single-flight lock
	StaleTimeout time.Duration // heartbeat age after which a run is stale
	BatchPause   time.Duration // pause between batches of a full run
}

// Load reads configuration values from environment variables and returns a
// Config. A .env file is loaded first when present. Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),

		LockLease:    envDur("SYNC_LOCK_LEASE", 5*time.Minute),
		StaleTimeout: envDur("SYNC_STALE_TIMEOUT", 15*time.Minute),
		BatchPause:   envDur("SYNC_BATCH_PAUSE", 250*time.Millisecond),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// envDur reads an optional duration variable, falling back to the default
// when unset or unparsable.
func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
