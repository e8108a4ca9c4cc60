package ml

import (
	"fmt"
	"os"
	"time"
)

// Config holds what NewModel needs to build a recognition backend
type Config struct {
	Type            string        `json:"type"`
	ProjectID       string        `json:"project_id"`
	Location        string        `json:"location"`
	CredentialsFile string        `json:"credentials_file"`
	Model           string        `json:"model"`
	Temperature     float32       `json:"temperature"`
	Timeout         time.Duration `json:"timeout"`
}

// ApplyEnv fills fields that are still empty from the GOOGLE_* environment variables
func (c *Config) ApplyEnv() {
	if c.ProjectID == "" {
		c.ProjectID = os.Getenv("GOOGLE_PROJECT_ID")
	}
	if c.Location == "" {
		c.Location = os.Getenv("GOOGLE_LOCATION")
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	}
}

// Validate checks that a google backend can be reached
func (c *Config) Validate() error {
	if c.Type == "google" {
		if c.ProjectID == "" {
			return fmt.Errorf("ml project_id is not set (config or GOOGLE_PROJECT_ID)")
		}
		if c.Location == "" {
			return fmt.Errorf("ml location is not set (config or GOOGLE_LOCATION)")
		}
	}
	return nil
}
