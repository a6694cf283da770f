package internal

import (
	"circles/infrastructure/sqlstore"
	"circles/repositories"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Stores groups the repositories behind one driver.
type Stores struct {
	Users         repositories.IUserRepository
	Conversations repositories.IConversationRepository
	Messages      repositories.IMessageRepository
	closers       []func() error
}

// Close releases the stores in reverse opening order.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return goerrors.Join(errs...)
}

func OpenStores(driver, badgerPath, sqlitePath string, log *slog.Logger) (*Stores, error) {
	switch driver {
	case SQLiteDriver:
		return openSQLite(sqlitePath, log)
	case BadgerDriver, "":
		return openBadger(badgerPath, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func openBadger(path string, log *slog.Logger) (*Stores, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	stores := &Stores{closers: []func() error{db.Close}}

	users, err := repositories.NewUserRepository(db)
	if err != nil {
		return nil, goerrors.Join(err, stores.Close())
	}
	stores.Users = users
	stores.closers = append(stores.closers, users.Close)

	conversations, err := repositories.NewConversationRepository(db, log)
	if err != nil {
		return nil, goerrors.Join(err, stores.Close())
	}
	stores.Conversations = conversations
	stores.closers = append(stores.closers, conversations.Close)

	messages, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		return nil, goerrors.Join(err, stores.Close())
	}
	stores.Messages = messages
	stores.closers = append(stores.closers, messages.Close)
	return stores, nil
}

func openSQLite(path string, log *slog.Logger) (*Stores, error) {
	db, err := sqlstore.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	return &Stores{
		Users:         sqlstore.NewUserStore(db),
		Conversations: sqlstore.NewConversationStore(db),
		Messages:      sqlstore.NewMessageStore(db),
		closers:       []func() error{func() error { return sqlstore.Close(db) }},
	}, nil
}
