// Package auth verifies RSA-signed bearer tokens against a configured
// service account and decides authorization from an email/domain
// allow-list.
package auth

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvProjectID        = "MEDIADROP_AUTH_PROJECT_ID"
	EnvPrivateKey       = "MEDIADROP_AUTH_PRIVATE_KEY"
	EnvClientEmail      = "MEDIADROP_AUTH_CLIENT_EMAIL"
	EnvAuthorizedEmails = "MEDIADROP_AUTHORIZED_EMAILS"

	pemBeginMarker = "-----BEGIN"
	pemEndMarker   = "-----END"
)

// Config carries the service-account fields the credential client is built
// from, plus the raw allow-list string.
type Config struct {
	ProjectID   string
	PrivateKey  string
	ClientEmail string
	Authorized  string
}

// LoadConfigFromEnv reads the credential configuration from the process
// environment. All three credential fields are required.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ProjectID:   strings.TrimSpace(os.Getenv(EnvProjectID)),
		PrivateKey:  os.Getenv(EnvPrivateKey),
		ClientEmail: strings.TrimSpace(os.Getenv(EnvClientEmail)),
		Authorized:  os.Getenv(EnvAuthorizedEmails),
	}
	var missing []string
	if cfg.ProjectID == "" {
		missing = append(missing, EnvProjectID)
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		missing = append(missing, EnvPrivateKey)
	}
	if cfg.ClientEmail == "" {
		missing = append(missing, EnvClientEmail)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing credential configuration: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// NormalizePrivateKey converts literal \n escape sequences into real
// newlines so the key can be carried in environments that cannot hold
// multi-line values.
func NormalizePrivateKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}

func validatePrivateKey(key string) error {
	if !strings.Contains(key, pemBeginMarker) {
		return fmt.Errorf("private key missing %s marker", pemBeginMarker)
	}
	if !strings.Contains(key, pemEndMarker) {
		return fmt.Errorf("private key missing %s marker", pemEndMarker)
	}
	return nil
}
