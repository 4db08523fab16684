package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int // размер пула соединений
	}

	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		GroupID string   `mapstructure:"group_id"`
	}

	// Sync настройки движка синхронизации заказов
	Sync struct {
		InitialSyncDays int           // глубина окна первой синхронизации
		MaxGap          time.Duration // разрыв, после которого чекпоинт устарел
		PageSize        int           // размер страницы выборки заказов
		RunTimeout      time.Duration // потолок длительности запуска по компании
		Concurrency     int           // параллелизм по компаниям
		Interval        time.Duration // период планировщика
		StartupDelay    time.Duration // задержка первого запуска
		CredentialsTTL  time.Duration // время жизни кэша учетных данных
	}

	// Marketplace настройки клиентов внешних API
	Marketplace struct {
		Ozon struct {
			BaseURL string
			Timeout time.Duration
		}
		Wildberries struct {
			BaseURL string
			Timeout time.Duration
		}
	}

	Metrics struct {
		Enabled bool
		Port    int `mapstructure:"port"`
	}

	Security struct {
		CORSAllowOrigins []string
	}
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	// Настройка Viper
	viper.SetConfigName(configFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../config")
	viper.AddConfigPath("../../config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Чтение конфигурационного файла
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	// Установка значений по умолчанию
	setDefaults()

	// Привязка переменных окружения
	bindEnvVariables()

	// Чтение конфигурации в структуру
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	// Получаем окружение
	cfg.ENV = viper.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	// Основные настройки
	viper.SetDefault("appName", "sync-service")
	viper.SetDefault("version", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("env", "development")

	// Настройки сервера
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "10s")
	viper.SetDefault("server.shutdownTimeout", "5s")

	// Настройки Postgres
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.dbname", "sync")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.timeout", "5s")
	viper.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Настройки Kafka
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.groupID", "sync-service")

	// Настройки синхронизации
	viper.SetDefault("sync.initialSyncDays", 30)
	viper.SetDefault("sync.maxGap", "30m")
	viper.SetDefault("sync.pageSize", 100)
	viper.SetDefault("sync.runTimeout", "10m")
	viper.SetDefault("sync.concurrency", 4)
	viper.SetDefault("sync.interval", "15m")
	viper.SetDefault("sync.startupDelay", "30s")
	viper.SetDefault("sync.credentialsTTL", "5m")

	// Настройки маркетплейсов
	viper.SetDefault("marketplace.ozon.baseURL", "https://api-seller.ozon.ru")
	viper.SetDefault("marketplace.ozon.timeout", "30s")
	viper.SetDefault("marketplace.wildberries.baseURL", "https://marketplace-api.wildberries.ru")
	viper.SetDefault("marketplace.wildberries.timeout", "30s")

	// Настройки метрик
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	viper.SetDefault("security.corsAllowOrigins", []string{"*"})
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables() {
	// Основные настройки
	viper.BindEnv("appName", "APP_NAME")
	viper.BindEnv("version", "APP_VERSION")
	viper.BindEnv("logLevel", "LOG_LEVEL")
	viper.BindEnv("env", "APP_ENV")

	// Настройки сервера
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Настройки Postgres
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")
	viper.BindEnv("postgres.poolSize", "POSTGRES_POOL_SIZE")

	// Настройки Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Настройки Kafka
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.groupID", "KAFKA_GROUP_ID")

	// Настройки синхронизации
	viper.BindEnv("sync.initialSyncDays", "SYNC_INITIAL_SYNC_DAYS")
	viper.BindEnv("sync.maxGap", "SYNC_MAX_GAP")
	viper.BindEnv("sync.pageSize", "SYNC_PAGE_SIZE")
	viper.BindEnv("sync.runTimeout", "SYNC_RUN_TIMEOUT")
	viper.BindEnv("sync.concurrency", "SYNC_CONCURRENCY")
	viper.BindEnv("sync.interval", "SYNC_INTERVAL")
	viper.BindEnv("sync.startupDelay", "SYNC_STARTUP_DELAY")
	viper.BindEnv("sync.credentialsTTL", "SYNC_CREDENTIALS_TTL")

	// Настройки маркетплейсов
	viper.BindEnv("marketplace.ozon.baseURL", "OZON_BASE_URL")
	viper.BindEnv("marketplace.ozon.timeout", "OZON_TIMEOUT")
	viper.BindEnv("marketplace.wildberries.baseURL", "WB_BASE_URL")
	viper.BindEnv("marketplace.wildberries.timeout", "WB_TIMEOUT")

	// Настройки метрик
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.port", "METRICS_PORT")

	// Настройки безопасности
	viper.BindEnv("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")
}
