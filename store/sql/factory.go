package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the completion store and delivery ledger over one
// bun connection.
type RepositoryFactory struct {
	db          *bun.DB
	completions *CompletionStore
	deliveries  *WebhookDeliveryStore
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewRepositoryFactoryFromDB(client.DB())
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	completions, err := NewCompletionStore(db)
	if err != nil {
		return nil, err
	}
	deliveries, err := NewWebhookDeliveryStore(db)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, completions: completions, deliveries: deliveries}, nil
}

func (f *RepositoryFactory) CompletionStore() *CompletionStore {
	if f == nil {
		return nil
	}
	return f.completions
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveries
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}
