package config

import "github.com/kelseyhightower/envconfig"

type WebhookConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Optional HMAC secret for provider signature verification.
	// Empty disables verification.
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// Async dispatch
	DispatchWorkers int `envconfig:"DISPATCH_WORKERS" default:"4"`
	DispatchBuffer  int `envconfig:"DISPATCH_BUFFER" default:"256"`

	// DB pool tuning
	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"0"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type WorkerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8081"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9091"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Campaign polling
	PollInterval    string `envconfig:"POLL_INTERVAL" default:"5s"`
	SendConcurrency int    `envconfig:"SEND_CONCURRENCY" default:"5"`

	// WhatsApp provider
	WasenderBaseURL string  `envconfig:"WASENDER_BASE_URL" default:"https://wasenderapi.com"`
	WasenderAPIKey  string  `envconfig:"WASENDER_API_KEY" required:"true"`
	SendRPS         float64 `envconfig:"SEND_RPS" default:"1"`
	SendBurst       int     `envconfig:"SEND_BURST" default:"3"`
}

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8082"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9092"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
