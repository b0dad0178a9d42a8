package activity

import (
	"context"
	"errors"

	"bumpcontrol/internal/models"
)

// Fanout appends to every sink in order. A failing sink does not stop the
// rest; the errors are joined.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Fanout{sinks: live}
}

func (f *Fanout) Append(ctx context.Context, entry *models.ActivityLog) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
