package types

type RunMode string

const (
	// ModeLocal runs the API server and the operator sweeper together
	ModeLocal RunMode = "local"
	// ModeAPI runs just the API server
	ModeAPI RunMode = "api"
	// ModeSweeper runs just the cron driven operator sweeper
	ModeSweeper RunMode = "sweeper"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// AssetStore selects where asset balances and allowances are kept
type AssetStore string

const (
	AssetStorePostgres AssetStore = "postgres"
	// AssetStoreMemory is lost on restart and is refused outside local mode
	AssetStoreMemory AssetStore = "memory"
)
