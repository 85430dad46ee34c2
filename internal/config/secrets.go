package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/user/sdtmflow/pkg/secrets"
)

// secretFields lists the credential-bearing values by config path. OTLP headers are resolved
// through copies; commit writes them back.
func (c *Config) secretFields() (fields []secrets.Field, commit func()) {
	fields = []secrets.Field{
		{Name: "publish.s3.access_key_id", Value: &c.Publish.S3.AccessKeyID},
		{Name: "publish.s3.secret_access_key", Value: &c.Publish.S3.SecretAccessKey},
		{Name: "history.conn", Value: &c.History.Conn},
		{Name: "output.database.conn", Value: &c.Output.Database.Conn},
		{Name: "metrics.push_url", Value: &c.Metrics.PushURL},
	}
	keys := make([]string, 0, len(c.OTLP.Headers))
	for k := range c.OTLP.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make(map[string]*string, len(keys))
	for _, k := range keys {
		v := c.OTLP.Headers[k]
		headers[k] = &v
		fields = append(fields, secrets.Field{Name: "otlp.headers." + k, Value: &v})
	}
	return fields, func() {
		for k, v := range headers {
			c.OTLP.Headers[k] = *v
		}
	}
}

// ResolveSecrets replaces "secret:<key>[#field]" references in credential fields with values from
// the configured secret manager. No manager is contacted when nothing is referenced.
func (c *Config) ResolveSecrets(ctx context.Context) error {
	fields, commit := c.secretFields()
	refs := secrets.Referenced(fields...)
	if len(refs) == 0 {
		return nil
	}
	mgr, err := secrets.NewManager(ctx, c.Secrets)
	if err != nil {
		return err
	}
	if err := secrets.Resolve(ctx, mgr, refs...); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}
	commit()
	return nil
}
