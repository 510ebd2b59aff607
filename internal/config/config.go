package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration settings read from the environment.
type Config struct {
	ProjectID          string
	BillsBucket        string
	PublicBaseURL      string
	LeadsCollection    string
	SessionsCollection string

	ZapierWebhookURL   string
	MakeWebhookURL     string
	CloudEventsSinkURL string
	WebhookTimeout     time.Duration

	UploadConcurrency int
	SessionMaxAge     time.Duration
	SecureCookies     bool

	WorkflowID       string
	WorkflowLocation string

	Port string
}

// WebhookURLs returns the configured plain JSON sinks, skipping empty ones.
func (c *Config) WebhookURLs() []string {
	var urls []string
	for _, u := range []string{c.ZapierWebhookURL, c.MakeWebhookURL} {
		if strings.TrimSpace(u) != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LEADS_COLLECTION", "leads")
	v.SetDefault("SESSIONS_COLLECTION", "sessions")
	v.SetDefault("PUBLIC_BASE_URL", "https://storage.googleapis.com")
	v.SetDefault("WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("UPLOAD_CONCURRENCY", 4)
	v.SetDefault("SESSION_MAX_AGE", "24h")
	v.SetDefault("SECURE_COOKIES", true)
	v.SetDefault("WORKFLOW_LOCATION", "us-central1")
	v.SetDefault("PORT", "8080")
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ProjectID:          v.GetString("PROJECT_ID"),
		BillsBucket:        v.GetString("BILLS_BUCKET"),
		PublicBaseURL:      strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		LeadsCollection:    v.GetString("LEADS_COLLECTION"),
		SessionsCollection: v.GetString("SESSIONS_COLLECTION"),
		ZapierWebhookURL:   v.GetString("ZAPIER_WEBHOOK_URL"),
		MakeWebhookURL:     v.GetString("MAKE_WEBHOOK_URL"),
		CloudEventsSinkURL: v.GetString("CLOUDEVENTS_SINK_URL"),
		WebhookTimeout:     v.GetDuration("WEBHOOK_TIMEOUT"),
		UploadConcurrency:  v.GetInt("UPLOAD_CONCURRENCY"),
		SessionMaxAge:      v.GetDuration("SESSION_MAX_AGE"),
		SecureCookies:      v.GetBool("SECURE_COOKIES"),
		WorkflowID:         v.GetString("WORKFLOW_ID"),
		WorkflowLocation:   v.GetString("WORKFLOW_LOCATION"),
		Port:               v.GetString("PORT"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.BillsBucket == "" {
		return nil, fmt.Errorf("BILLS_BUCKET environment variable must be set")
	}
	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 1
	}
	if cfg.WebhookTimeout <= 0 {
		return nil, fmt.Errorf("WEBHOOK_TIMEOUT must be a positive duration")
	}
	return cfg, nil
}
