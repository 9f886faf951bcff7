package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/outbound-dispatch/pkg/config"
)

// ClientOptions picks explicit credentials when configured; inline JSON wins over a file path.
// With neither set the Google clients fall back to application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.ApplicationCredentials))
	}
	return opts
}
