package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiSink appends to every sink in order. A record counts as written only
// when all sinks accept it.
type MultiSink []Sink

// Append writes to each sink and joins their failures.
func (m MultiSink) Append(ctx context.Context, record Record) error {
	if len(m) == 0 {
		return fmt.Errorf("no audit sinks configured")
	}
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
