package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} and ${VAR:-default} references with environment values.
// Unset variables without a default become empty.
func SubstituteEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		parts := envRef.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[3]
	})
}

// Environment variable overrides (highest precedence).
func (c *Config) applyEnv() error {
	str := map[string]*string{
		"SDTM_STUDY_ID":          &c.StudyID,
		"SDTM_CODELISTS":         &c.Codelists,
		"SDTM_REFERENCE":         &c.Reference,
		"SDTM_OUTPUT_DIR":        &c.Output.Dir,
		"SDTM_OUTPUT_FORMAT":     &c.Output.Format,
		"SDTM_PUBLISH_TYPE":      &c.Publish.Type,
		"SDTM_PUBLISH_DIR":       &c.Publish.LocalDir,
		"SDTM_COMPRESSION":       &c.Publish.Compression,
		"SDTM_S3_ENDPOINT":       &c.Publish.S3.Endpoint,
		"SDTM_S3_REGION":         &c.Publish.S3.Region,
		"SDTM_S3_BUCKET":         &c.Publish.S3.Bucket,
		"SDTM_S3_ACCESS_KEY":     &c.Publish.S3.AccessKeyID,
		"SDTM_S3_SECRET_KEY":     &c.Publish.S3.SecretAccessKey,
		"SDTM_DB_TYPE":           &c.History.Type,
		"SDTM_DB_CONN":           &c.History.Conn,
		"SDTM_PUSHGATEWAY_URL":   &c.Metrics.PushURL,
		"SDTM_OTLP_ENDPOINT":     &c.OTLP.Endpoint,
		"SDTM_OTLP_PROTOCOL":     &c.OTLP.Protocol,
		"SDTM_LOG_LEVEL":         &c.Log.Level,
		"SDTM_OTLP_SERVICE_NAME": &c.OTLP.ServiceName,
		"SDTM_SECRETS_TYPE":      &c.Secrets.Type,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SDTM_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SDTM_THRESHOLD: %w", err)
		}
		c.Threshold = f
	}
	if v := os.Getenv("SDTM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SDTM_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("SDTM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SDTM_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("SDTM_OTLP_INSECURE"); v != "" {
		c.OTLP.Insecure = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}
