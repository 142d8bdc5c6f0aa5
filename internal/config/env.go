package config

import (
	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/classifiers"
	"github.com/JaimeStill/tally/internal/stats"
	"github.com/JaimeStill/tally/pkg/cache"
	"github.com/JaimeStill/tally/pkg/database"
	"github.com/JaimeStill/tally/pkg/logging"
	"github.com/JaimeStill/tally/pkg/middleware"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/storage"
)

var databaseEnv = &database.Env{
	Host:            "TALLY_DB_HOST",
	Port:            "TALLY_DB_PORT",
	Name:            "TALLY_DB_NAME",
	User:            "TALLY_DB_USER",
	Password:        "TALLY_DB_PASSWORD",
	SSLMode:         "TALLY_DB_SSL_MODE",
	MaxOpenConns:    "TALLY_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TALLY_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TALLY_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TALLY_DB_CONN_TIMEOUT",
	ConnectAttempts: "TALLY_DB_CONNECT_ATTEMPTS",
}

var storageEnv = &storage.Env{
	Enabled:          "TALLY_STORAGE_ENABLED",
	ContainerName:    "TALLY_STORAGE_CONTAINER_NAME",
	ConnectionString: "TALLY_STORAGE_CONNECTION_STRING",
}

var cacheEnv = &cache.Env{
	Enabled:  "TALLY_CACHE_ENABLED",
	Address:  "TALLY_CACHE_ADDRESS",
	Password: "TALLY_CACHE_PASSWORD",
	DB:       "TALLY_CACHE_DB",
	TTL:      "TALLY_CACHE_TTL",
	Prefix:   "TALLY_CACHE_PREFIX",
}

var loggingEnv = &logging.Env{
	Level:      "TALLY_LOG_LEVEL",
	File:       "TALLY_LOG_FILE",
	MaxSizeMB:  "TALLY_LOG_MAX_SIZE_MB",
	MaxBackups: "TALLY_LOG_MAX_BACKUPS",
	MaxAgeDays: "TALLY_LOG_MAX_AGE_DAYS",
	Compress:   "TALLY_LOG_COMPRESS",
}

var corsEnv = &middleware.CORSEnv{
	Enabled:          "TALLY_CORS_ENABLED",
	Origins:          "TALLY_CORS_ORIGINS",
	AllowedMethods:   "TALLY_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "TALLY_CORS_ALLOWED_HEADERS",
	AllowCredentials: "TALLY_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "TALLY_CORS_MAX_AGE",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "TALLY_API_PAGE_SIZE",
	MaxPageSize:     "TALLY_API_MAX_PAGE_SIZE",
}

var answersEnv = &answers.Env{
	MaxShardSize:      "TALLY_ANSWERS_MAX_SHARD_SIZE",
	MaxAppendAttempts: "TALLY_ANSWERS_MAX_APPEND_ATTEMPTS",
	RetryBase:         "TALLY_ANSWERS_RETRY_BASE",
}

var statsEnv = &stats.Env{
	AggregateInterval: "TALLY_STATS_AGGREGATE_INTERVAL",
	Concurrency:       "TALLY_STATS_CONCURRENCY",
	TopAnswersLimit:   "TALLY_STATS_TOP_ANSWERS_LIMIT",
	MaxPassAttempts:   "TALLY_STATS_MAX_PASS_ATTEMPTS",
	EventBatch:        "TALLY_STATS_EVENT_BATCH",
	ExplorationsDir:   "TALLY_STATS_EXPLORATIONS_DIR",
	OutputCacheTTL:    "TALLY_STATS_OUTPUT_CACHE_TTL",
}

var classifiersEnv = &classifiers.Env{
	DefaultAlgorithm: "TALLY_CLASSIFIERS_DEFAULT_ALGORITHM",
	TrainingQueue:    "TALLY_CLASSIFIERS_TRAINING_QUEUE",
	ArchiveModels:    "TALLY_CLASSIFIERS_ARCHIVE_MODELS",
}
