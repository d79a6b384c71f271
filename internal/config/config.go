// Package config reads the server's environment configuration.
package config

import "os"

// Config holds everything the server reads from the environment.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// DatabaseURL selects the task store: postgres:// or postgresql://
	// DSNs use Postgres, sqlite: DSNs or bare file paths use SQLite,
	// empty keeps tasks in memory.
	DatabaseURL string

	// Jira adapter settings. The adapter stays unconfigured (and sends
	// fail fast) when site or token is missing.
	JiraSite       string
	JiraEmail      string
	JiraAPIToken   string
	JiraProjectKey string
}

// FromEnv builds a Config from environment variables.
func FromEnv() *Config {
	return &Config{
		Port:           getenv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JiraSite:       os.Getenv("JIRA_SITE"),
		JiraEmail:      os.Getenv("JIRA_EMAIL"),
		JiraAPIToken:   os.Getenv("JIRA_API_TOKEN"),
		JiraProjectKey: getenv("JIRA_PROJECT_KEY", "TASK"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
