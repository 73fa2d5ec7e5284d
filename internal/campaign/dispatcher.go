// Package campaign builds personalized messages from templates and leads and
// sends them through the provider in bulk.
package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/provider"
	"go.uber.org/zap"
)

// Options configures a Dispatcher. Zero values use defaults.
type Options struct {
	MaxWorkers        int
	PerMessageTimeout time.Duration
	// Pacing is the pause a worker takes after each send.
	Pacing time.Duration
	Now    func() time.Time
}

// Dispatcher sends one message per lead through a small worker pool.
type Dispatcher struct {
	client    provider.Client
	templates Templates
	picker    Picker
	opts      Options
	logger    *zap.Logger
}

// NewDispatcher wires a dispatcher. A nil picker chooses templates at random.
func NewDispatcher(client provider.Client, templates Templates, picker Picker, opts Options, logger *zap.Logger) *Dispatcher {
	if picker == nil {
		picker = RandomPicker{}
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.PerMessageTimeout <= 0 {
		opts.PerMessageTimeout = 5 * time.Second
	}
	if opts.Pacing < 0 {
		opts.Pacing = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client:    client,
		templates: templates,
		picker:    picker,
		opts:      opts,
		logger:    logger,
	}
}

// Dispatch sends a message to every lead and returns one result per lead,
// in lead order. Leads whose template cannot be prepared, and leads skipped
// because ctx ended, still yield a failed result.
func (d *Dispatcher) Dispatch(ctx context.Context, leads []Lead) []provider.SendResult {
	results := make([]provider.SendResult, len(leads))
	if len(leads) == 0 {
		return results
	}

	workerCount := len(leads)
	if workerCount > d.opts.MaxWorkers {
		workerCount = d.opts.MaxWorkers
	}

	d.logger.Info("dispatching campaign",
		zap.Int("leads", len(leads)),
		zap.Int("workers", workerCount))

	var wg sync.WaitGroup

	// Each worker processes a stride of leads: worker w handles w, w+n, w+2n...
	// and writes only its own result slots.
	for w := 0; w < workerCount; w++ {
		wg.Add(1)

		go func(start int) {
			defer wg.Done()

			for i := start; i < len(leads); i += workerCount {
				if err := ctx.Err(); err != nil {
					// Keep the body so a later retry sends the real message.
					body, _ := d.compose(leads[i])
					results[i] = d.failed(leads[i], body, err.Error())
					continue
				}

				results[i] = d.sendOne(ctx, leads[i])

				if d.opts.Pacing > 0 && i+workerCount < len(leads) {
					select {
					case <-time.After(d.opts.Pacing):
					case <-ctx.Done():
					}
				}
			}
		}(w)
	}

	wg.Wait()

	queued := 0
	for _, r := range results {
		if r.Status == provider.StatusQueued || r.Status == provider.StatusSent {
			queued++
		}
	}
	d.logger.Info("campaign dispatched", zap.Int("queued", queued), zap.Int("total", len(results)))

	return results
}

// compose picks a template for lead and personalizes it.
func (d *Dispatcher) compose(lead Lead) (string, error) {
	candidates, err := d.templates.For(lead.InterestArea)
	if err != nil {
		return "", err
	}
	return Personalize(d.picker.Pick(candidates), lead.Name), nil
}

func (d *Dispatcher) sendOne(ctx context.Context, lead Lead) provider.SendResult {
	body, err := d.compose(lead)
	if err != nil {
		d.logger.Warn("cannot prepare message", zap.String("name", lead.Name), zap.Error(err))
		return d.failed(lead, "", err.Error())
	}

	msgCtx, cancel := context.WithTimeout(ctx, d.opts.PerMessageTimeout)
	defer cancel()

	resp := d.client.Send(msgCtx, lead.Phone, body)
	if !resp.Accepted() {
		d.logger.Warn("send rejected",
			zap.String("phone", lead.Phone),
			zap.String("status", string(resp.Status)),
			zap.String("error", resp.Error))
	}

	return provider.SendResult{
		Name:      lead.Name,
		Phone:     provider.NormalizePhone(lead.Phone),
		Message:   body,
		Status:    resp.Status,
		MessageID: resp.MessageID,
		Error:     resp.Error,
		Timestamp: d.opts.Now(),
	}
}

func (d *Dispatcher) failed(lead Lead, body, reason string) provider.SendResult {
	return provider.SendResult{
		Name:      lead.Name,
		Phone:     provider.NormalizePhone(lead.Phone),
		Message:   body,
		Status:    provider.StatusFailed,
		Error:     reason,
		Timestamp: d.opts.Now(),
	}
}
