package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Built-in resource kinds available in every local deployment.
const (
	KindDatabase     = "database"
	KindSecrets      = "secrets"
	KindStaticFolder = "static-folder"
)

// DefaultRegistry returns a registry with the built-in provisioners for
// local development deployments. workDir is the per-project directory used
// by provisioners that create filesystem-backed resources.
func DefaultRegistry(vars Vars, workDir string) *Registry {
	r := NewRegistry()
	// Registration of built-ins cannot collide.
	_ = r.Register(KindDatabase, &DatabaseProvisioner{})
	_ = r.Register(KindSecrets, &SecretsProvisioner{Secrets: vars.Secrets})
	_ = r.Register(KindStaticFolder, &StaticFolderProvisioner{BaseDir: workDir})
	return r
}

// DatabaseProvisioner hands out database connection strings.
//
// When the configuration carries an explicit "url" the payload is that URL
// verbatim; the service owns its interpretation. Otherwise a connection
// string is composed from the individual fields, falling back to local
// development defaults.
type DatabaseProvisioner struct{}

func (p *DatabaseProvisioner) Provision(_ context.Context, config map[string]string) ([]byte, error) {
	if u, ok := config["url"]; ok {
		if u == "" {
			return nil, fmt.Errorf("database url is empty")
		}
		return []byte(u), nil
	}

	engine := orDefault(config["engine"], "postgres")
	host := orDefault(config["host"], "127.0.0.1")
	port := orDefault(config["port"], "5432")
	user := orDefault(config["user"], "postgres")
	dbname := config["dbname"]
	if dbname == "" {
		return nil, fmt.Errorf("database config needs either \"url\" or \"dbname\"")
	}

	u := url.URL{
		Scheme: engine,
		Host:   host + ":" + port,
		Path:   "/" + dbname,
	}
	if password := config["password"]; password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return []byte(u.String()), nil
}

// SecretsProvisioner returns the deployment's declared secrets as a JSON
// object. Services use it to receive their Secrets.toml-style key-value
// store at construction time.
type SecretsProvisioner struct {
	Secrets map[string]string
}

func (p *SecretsProvisioner) Provision(context.Context, map[string]string) ([]byte, error) {
	secrets := p.Secrets
	if secrets == nil {
		secrets = map[string]string{}
	}
	return json.Marshal(secrets)
}

// StaticFolderProvisioner creates a directory under the project work dir and
// returns its absolute path. Services use it for persistent local storage
// that survives reloads.
type StaticFolderProvisioner struct {
	BaseDir string
}

func (p *StaticFolderProvisioner) Provision(_ context.Context, config map[string]string) ([]byte, error) {
	folder := orDefault(config["folder"], "static")
	clean := filepath.Clean(folder)
	if filepath.IsAbs(folder) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("folder %q must stay inside the project directory", folder)
	}

	path := filepath.Join(p.BaseDir, clean)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create static folder: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return []byte(abs), nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
