package progress

import (
	"context"

	"github.com/rotisserie/eris"
)

// Options selects and configures a persister.
type Options struct {
	// Driver is file, sqlite or postgres.
	Driver      string
	Path        string
	DatabaseURL string
	Pool        PoolConfig
	// ReadOnly opens a file store without taking its lock.
	ReadOnly bool
}

// Open builds the persister named by o.Driver.
func Open(ctx context.Context, o Options) (Persister, error) {
	switch o.Driver {
	case "", "file":
		if o.Path == "" {
			return nil, eris.New("progress: file store needs a path")
		}
		if o.ReadOnly {
			return NewFileReader(o.Path), nil
		}
		return OpenFile(o.Path)
	case "sqlite":
		if o.Path == "" {
			return nil, eris.New("progress: sqlite store needs a path")
		}
		return OpenSQLite(ctx, o.Path)
	case "postgres":
		if o.DatabaseURL == "" {
			return nil, eris.New("progress: postgres store needs a database_url")
		}
		return OpenPostgres(ctx, o.DatabaseURL, o.Pool)
	default:
		return nil, eris.Errorf("progress: unknown store driver %q", o.Driver)
	}
}
