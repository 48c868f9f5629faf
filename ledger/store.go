package ledger

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// Store is the durable backing of a Ledger.
type Store interface {
	// Load returns every stored id. Missing backing data is not an error.
	Load(ctx context.Context) ([]string, error)

	// Append adds ids to the stored set. Ids already stored are ignored.
	Append(ctx context.Context, ids []string) error

	Close() error
}

// Store types accepted by NewStore.
const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// DefaultFilePath is the file store location when no dsn is given.
const DefaultFilePath = "./data/ledger.json"

// NewStore opens the store named by typ. dsn is a file path for file and
// sqlite stores and a redis:// URL for redis. fs is only used by the file
// store.
func NewStore(typ, dsn string, fs afero.Fs) (Store, error) {
	switch typ {
	case "", TypeFile:
		if dsn == "" {
			dsn = DefaultFilePath
		}
		return NewFileStore(fs, dsn), nil
	case TypeSQLite:
		return NewSQLiteStore(dsn)
	case TypeRedis:
		return NewRedisStoreFromURL(dsn)
	default:
		return nil, fmt.Errorf("unknown ledger type %q", typ)
	}
}
