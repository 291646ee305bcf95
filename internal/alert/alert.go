// Package alert fans operator alerts out to several channels.
package alert

import (
	"context"
	"errors"
)

// Alerter delivers a text alert to operators.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Fanout sends every alert to all of its alerters.
type Fanout struct {
	alerters []Alerter
}

// NewFanout returns a Fanout over the non-nil alerters.
func NewFanout(alerters ...Alerter) *Fanout {
	f := &Fanout{}
	for _, a := range alerters {
		if a != nil {
			f.alerters = append(f.alerters, a)
		}
	}

	return f
}

// Len reports how many channels are configured.
func (f *Fanout) Len() int {
	return len(f.alerters)
}

// Alert tries every channel and returns the joined errors.
func (f *Fanout) Alert(ctx context.Context, text string) error {
	var errs []error
	for _, a := range f.alerters {
		if err := a.Alert(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
