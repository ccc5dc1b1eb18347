// Package session bundles the state one ranking is edited through: its
// position table, item locks and source collection. Sessions are independent,
// so any number can live in one process.
package session

import (
	"github.com/google/uuid"
	"github.com/okian/podium/internal/domain/lock"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/positions"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/pkg/logger"
)

// Source is the backlog a ranking draws items from. Calls must be
// synchronous and consistent with the owner's store at call time.
type Source interface {
	GetItemByID(id string) (model.ItemSnapshot, bool)
	IsItemUsed(id string) bool
	MarkItemAsUsed(id string, used bool)
}

// Session is passed into every transfer operation.
type Session struct {
	ID        string
	Table     *positions.Table
	Locks     lock.Registry
	Source    Source
	Authority *validation.Authority
	Logger    logger.Logger
}

// New creates a session with an empty table of size positions.
func New(size int, source Source, opts ...Option) (*Session, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	cfg := settings{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	tableOpts := append([]positions.Option{positions.WithID(cfg.id)}, cfg.tableOpts...)
	table, err := positions.New(size, tableOpts...)
	if err != nil {
		return nil, err
	}
	locks := cfg.locks
	if locks == nil {
		locks = lock.NewInMemoryRegistry()
	}
	authority := cfg.authority
	if authority == nil {
		authority = validation.NewAuthority(validation.WithLogger(cfg.logger.Named("validation")))
	}

	return &Session{
		ID:        cfg.id,
		Table:     table,
		Locks:     locks,
		Source:    source,
		Authority: authority,
		Logger:    cfg.logger,
	}, nil
}
