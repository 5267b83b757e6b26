package properties

import (
	"context"
	"fmt"
	"strings"
)

// Store persists string properties per artifact. Implementations guarantee atomic get/set of a single key and
// nothing more; there are no transactions across keys.
type Store interface {
	// Get returns the value of key and false when the property is not set.
	Get(ctx context.Context, artifactID, key string) (string, bool, error)
	Set(ctx context.Context, artifactID, key, value string) error
	Has(ctx context.Context, artifactID, key string) (bool, error)
	Close() error
}

// Artifact binds a Store to a single artifact id.
type Artifact struct {
	store Store
	id    string
}

func ForArtifact(store Store, artifactID string) *Artifact {
	return &Artifact{store: store, id: artifactID}
}

func (a *Artifact) ID() string {
	return a.id
}

func (a *Artifact) Get(ctx context.Context, key string) (string, bool, error) {
	return a.store.Get(ctx, a.id, key)
}

func (a *Artifact) Set(ctx context.Context, key, value string) error {
	return a.store.Set(ctx, a.id, key, value)
}

func (a *Artifact) Has(ctx context.Context, key string) (bool, error) {
	return a.store.Has(ctx, a.id, key)
}

// Config selects and configures a Store implementation.
type Config struct {
	Type string
	// DSN is the SQLite file path, the Postgres connection string or the kubeconfig path, depending on Type.
	DSN string
	// Table is the DynamoDB table name.
	Table string
	// Namespace holds the ConfigMaps of the configmap store.
	Namespace string
}

// Types lists the values accepted for Config.Type.
var Types = []string{"memory", "sqlite", "postgres", "dynamodb", "configmap"}

const defaultSQLitePath = "scangate.db"

// New creates the Store selected by cfg.Type. An empty type selects SQLite.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3", "":
		if cfg.DSN == "" {
			cfg.DSN = defaultSQLitePath
		}
		return NewSQLiteStore(cfg.DSN)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres connection string is required")
		}
		return NewPostgresStore(cfg.DSN)
	case "dynamodb":
		if cfg.Table == "" {
			return nil, fmt.Errorf("dynamodb table name is required")
		}
		return NewDynamoDBStore(cfg.Table), nil
	case "configmap":
		return NewConfigMapStoreFromKubeConfig(cfg.DSN, cfg.Namespace)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
