// Package notify delivers generated signals to people and downstream systems.
package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/types"
)

// Notifier delivers a signal somewhere.
type Notifier interface {
	Notify(ctx context.Context, sig *types.Signal) error
}

// Fanout forwards qualifying signals to every configured notifier. A
// failing notifier does not stop the others; all errors are combined.
type Fanout struct {
	notifiers       []Notifier
	minConfidence   float64
	skipInvalidRisk bool
	log             logger.Logger
}

// FanoutOption tunes a Fanout.
type FanoutOption func(*Fanout)

// WithMinConfidence drops signals below the given confidence.
func WithMinConfidence(c float64) FanoutOption {
	return func(f *Fanout) { f.minConfidence = c }
}

// WithSkipInvalidRisk drops signals whose risk plan failed validation.
func WithSkipInvalidRisk(skip bool) FanoutOption {
	return func(f *Fanout) { f.skipInvalidRisk = skip }
}

// NewFanout builds a Fanout over the non-nil notifiers.
func NewFanout(log logger.Logger, notifiers []Notifier, opts ...FanoutOption) *Fanout {
	if log == nil {
		log = logger.Nop()
	}
	f := &Fanout{log: log}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Len returns the number of downstream notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

// Qualifies reports whether sig would be forwarded.
func (f *Fanout) Qualifies(sig *types.Signal) bool {
	if sig == nil || !sig.IsActionable() {
		return false
	}
	if sig.Confidence < f.minConfidence {
		return false
	}
	if f.skipInvalidRisk && !sig.RiskValid {
		return false
	}
	return true
}

// Notify forwards sig to every notifier when it qualifies.
func (f *Fanout) Notify(ctx context.Context, sig *types.Signal) error {
	if !f.Qualifies(sig) {
		return nil
	}
	var err error
	for _, n := range f.notifiers {
		if nErr := n.Notify(ctx, sig); nErr != nil {
			f.log.Warn("notify_failed",
				logger.String("symbol", sig.Symbol),
				logger.Err(nErr),
			)
			err = multierr.Append(err, nErr)
		}
	}
	return err
}

// NotifyBatch forwards each signal in turn and returns the number of
// signals that reached every notifier.
func (f *Fanout) NotifyBatch(ctx context.Context, sigs []*types.Signal) (int, error) {
	var (
		sent int
		err  error
	)
	for _, sig := range sigs {
		if !f.Qualifies(sig) {
			continue
		}
		if nErr := f.Notify(ctx, sig); nErr != nil {
			err = multierr.Append(err, nErr)
			continue
		}
		sent++
	}
	return sent, err
}
