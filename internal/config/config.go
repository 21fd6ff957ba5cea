package config // package config loads application configuration from environment variables

import (
    "log"
    "os"
    "time"

    "github.com/joho/godotenv"
)

// Storage back ends selectable through APP_STORAGE.
const (
    StorageMySQL  = "mysql"
    StorageMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Values with a sensible default are optional;
// the rest are enforced by must().
type Config struct {
    Env     string // application environment (e.g. "dev", "prod")
    Port    string // HTTP port to listen on
    Storage string // "mysql" (default) or "memory"

    DBUser string // database username
    DBPass string // database password (optional)
    DBHost string // database host address
    DBPort string // database port number
    DBName string // database name

    SessionSecret        string        // HMAC key for session tokens
    SessionTTL           time.Duration // sliding session window
    SessionSweepInterval time.Duration // how often expired MySQL sessions are purged

    StorageTimeout     time.Duration // upper bound on every storage call
    CreateRetries      int           // transient-failure retries for appointment creation
    CreateRetryBackoff time.Duration // first retry delay; doubles per attempt

    BcryptCost      int    // bcrypt cost for password hashing
    LogLevel        string // logrus level name
    MigrationsPath  string // schema file applied at startup ("" disables)
    AMQPURL         string // RabbitMQ URL; empty disables audit events
    AuditLogPath    string // file the audit consumer appends events to
    EventBufferSize int    // appointment events held while the broker is slow
}

// Load reads .env (when present) and then the process environment.  In
// memory mode the database variables are not required.
func Load() Config {
    // .env is optional; real deployments inject the environment directly
    _ = godotenv.Load()

    cfg := Config{
        Env:     envStr("APP_ENV", "dev"),
        Port:    envStr("APP_PORT", "8080"),
        Storage: envStr("APP_STORAGE", StorageMySQL),

        SessionSecret:        must("SESSION_SECRET"),
        SessionTTL:           envDur("SESSION_TTL", 30*time.Minute),
        SessionSweepInterval: envDur("SESSION_SWEEP_INTERVAL", time.Minute),

        StorageTimeout:     envDur("STORAGE_TIMEOUT", 5*time.Second),
        CreateRetries:      envInt("CREATE_RETRIES", 3),
        CreateRetryBackoff: envDur("CREATE_RETRY_BACKOFF", 50*time.Millisecond),

        BcryptCost:      envInt("BCRYPT_COST", 10),
        LogLevel:        envStr("LOG_LEVEL", "info"),
        MigrationsPath:  envStr("MIGRATIONS_PATH", "db/migrations/001_init.sql"),
        AMQPURL:         amqpURL(),
        AuditLogPath:    envStr("AUDIT_LOG_PATH", "audit.log"),
        EventBufferSize: envInt("EVENT_BUFFER_SIZE", 256),
    }
    if cfg.Storage != StorageMemory {
        cfg.Storage = StorageMySQL
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    }
    if cfg.SessionTTL <= 0 {
        log.Fatalf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
    }
    if cfg.CreateRetries < 0 {
        cfg.CreateRetries = 0
    }
    return cfg
}

func amqpURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
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
