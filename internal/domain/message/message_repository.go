package message

import "context"

// Repository is the durable table of message records.
//
// Every mutating operation runs as one load-mutate-persist cycle under a single
// exclusive lock, so concurrent callers always observe a fully applied prior
// write. Implementations live in the infrastructure layer (CSV file, GORM).
type Repository interface {
	// Append adds new records in one locked cycle.
	Append(ctx context.Context, msgs ...*Message) error

	// FindByProviderID returns a copy of the most recently appended record with
	// the given provider message id, or ErrNotFound.
	FindByProviderID(ctx context.Context, providerID string) (*Message, error)

	// Update applies mutate to every record matched by match in one locked cycle.
	// mutate reports whether it changed the record; changed records get their
	// LastUpdated bumped. It returns the number of changed records.
	Update(ctx context.Context, match func(*Message) bool, mutate func(*Message) bool) (int, error)

	// Snapshot returns a deep copy of the full table.
	Snapshot(ctx context.Context) ([]*Message, error)

	// Transact runs fn against the loaded table under the exclusive lock and
	// persists the result. Nothing is written if fn fails or changes nothing.
	Transact(ctx context.Context, fn func(t *Table) error) error
}
