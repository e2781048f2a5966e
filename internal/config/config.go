package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time for durations
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Database settings are required; the
// inventory tunables default to the documented values (600s lock TTL,
// 60s sweep interval).
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	DefaultLockTTL  time.Duration // TTL applied when a lock request omits ttl_seconds
	MaxLockTTL      time.Duration // upper bound accepted from callers
	SweepInterval   time.Duration // how often the expiry sweep runs
	JobInterval     time.Duration // how often due ticket jobs are processed
	JobBaseDelay    time.Duration // base delay for ticket-job backoff
	JobMaxAttempts  int           // attempts before a ticket job is terminal-failed
	MultiEntryMax   int           // max entries for MULTI tickets; 0 means unlimited
	AvailabilityTTL time.Duration // redis cache lifetime for seat availability
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),  // environment (dev/test/prod)
		Port: must("APP_PORT"), // port to bind the HTTP server

		DBUser: must("DB_USER"),      // database user
		DBPass: os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost: must("DB_HOST"),      // database host
		DBPort: must("DB_PORT"),      // database port
		DBName: must("DB_NAME"),      // database name

		DefaultLockTTL:  secs(getenv("LOCK_TTL_SEC", "600")),
		MaxLockTTL:      secs(getenv("LOCK_TTL_MAX_SEC", "1800")),
		SweepInterval:   secs(getenv("SWEEP_INTERVAL_SEC", "60")),
		JobInterval:     secs(getenv("TICKET_JOB_INTERVAL_SEC", "30")),
		JobBaseDelay:    secs(getenv("TICKET_JOB_BASE_DELAY_SEC", "60")),
		JobMaxAttempts:  atoi(getenv("TICKET_JOB_MAX_ATTEMPTS", "5")),
		MultiEntryMax:   atoi(getenv("MULTI_ENTRY_MAX", "0")),
		AvailabilityTTL: secs(getenv("AVAILABILITY_CACHE_TTL_SEC", "5")),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the value of an environment variable or a default when
// the variable is unset or empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int config value: %q", s)
	}
	return n
}

func secs(s string) time.Duration {
	return time.Duration(atoi(s)) * time.Second
}
