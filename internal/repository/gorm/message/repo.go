package messagegorm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/db"
	"github.com/oggyb/outreach-campaigns/internal/domain/message"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options tunes read retries and the clock. Zero values use defaults.
type Options struct {
	ReadRetries    int
	ReadRetryDelay time.Duration
	Now            func() time.Time
}

// Repository is a GORM-backed implementation of the message.Repository interface.
//
// Transact runs as one database transaction holding an exclusive table lock,
// and is additionally serialized in-process.
type Repository struct {
	db     *gorm.DB
	opts   Options
	logger *zap.Logger

	mu sync.Mutex
}

// NewRepository constructs a message repository using the given DB adapter.
func NewRepository(d db.DB, opts Options, logger *zap.Logger) *Repository {
	if opts.ReadRetries <= 0 {
		opts.ReadRetries = 3
	}
	if opts.ReadRetryDelay <= 0 {
		opts.ReadRetryDelay = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		db:     d.Conn().(*gorm.DB),
		opts:   opts,
		logger: logger,
	}
}

// Migrate creates or updates the campaign_messages table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&MessageModel{})
}

// Append implements message.Repository.
func (r *Repository) Append(ctx context.Context, msgs ...*message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.Transact(ctx, func(t *message.Table) error {
		t.Append(message.CloneAll(msgs)...)
		return nil
	})
}

// FindByProviderID implements message.Repository.
func (r *Repository) FindByProviderID(ctx context.Context, providerID string) (*message.Message, error) {
	if providerID == "" {
		return nil, message.ErrNotFound
	}

	var models []MessageModel
	err := r.withReadRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Where("provider_id = ?", providerID).
			Order("seq DESC").
			Limit(1).
			Find(&models).Error
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, message.ErrNotFound
	}
	return toDomain(&models[0])
}

// Update implements message.Repository.
func (r *Repository) Update(ctx context.Context, match func(*message.Message) bool, mutate func(*message.Message) bool) (int, error) {
	var changed int
	err := r.Transact(ctx, func(t *message.Table) error {
		changed = t.Update(match, mutate, r.opts.Now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Snapshot implements message.Repository.
func (r *Repository) Snapshot(ctx context.Context) ([]*message.Message, error) {
	var models []MessageModel
	err := r.withReadRetry(ctx, func() error {
		return r.db.WithContext(ctx).Order("seq ASC").Find(&models).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainMany(models)
}

// Transact implements message.Repository.
//
// The database transaction is detached from ctx cancellation: fn may already
// have made provider calls when ctx ends, and those results must commit.
// fn itself still sees ctx and stops early when it is done.
func (r *Repository) Transact(ctx context.Context, fn func(t *message.Table) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		// A failed statement aborts the transaction, so the load is not retried here.
		var models []MessageModel
		if err := tx.Exec("LOCK TABLE campaign_messages IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
			return fmt.Errorf("%w: %w", message.ErrStoreUnavailable, err)
		}
		if err := tx.Order("seq ASC").Find(&models).Error; err != nil {
			return fmt.Errorf("%w: %w", message.ErrStoreUnavailable, err)
		}

		rows, err := toDomainMany(models)
		if err != nil {
			return err
		}

		t := message.NewTable(rows)
		if err := fn(t); err != nil {
			return err
		}
		if !t.Changed() {
			return nil
		}

		for _, m := range t.Appended() {
			model, err := fromDomain(m)
			if err != nil {
				return err
			}
			if err := tx.Create(model).Error; err != nil {
				return fmt.Errorf("insert message %s: %w", m.ID, err)
			}
		}

		for _, m := range t.Touched() {
			model, err := fromDomain(m)
			if err != nil {
				return err
			}
			if err := tx.Model(model).Select("*").Omit("id", "seq").Updates(model).Error; err != nil {
				return fmt.Errorf("update message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// withReadRetry retries fn a bounded number of times and wraps the final
// failure in message.ErrStoreUnavailable.
func (r *Repository) withReadRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.opts.ReadRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			break
		}

		r.logger.Warn("error reading message table",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.opts.ReadRetries),
			zap.Error(lastErr))

		if attempt == r.opts.ReadRetries {
			break
		}
		select {
		case <-time.After(r.opts.ReadRetryDelay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", message.ErrStoreUnavailable, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %w", message.ErrStoreUnavailable, lastErr)
}

// compile-time interface check
var _ message.Repository = (*Repository)(nil)
