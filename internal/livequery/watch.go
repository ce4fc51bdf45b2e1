package livequery

import "context"

// Snapshot is one evaluation of a watched query.
type Snapshot[T any] struct {
	Value T
	Err   error
}

// Watch evaluates eval once immediately and again after every write to one
// of tables, sending each result on the returned channel. Writes that land
// while an evaluation is in flight collapse into a single re-evaluation.
// The channel is closed when ctx is done.
func Watch[T any](ctx context.Context, b *Broker, tables []string, eval func(context.Context) (T, error)) <-chan Snapshot[T] {
	out := make(chan Snapshot[T], 1)
	signal, cancel := b.Subscribe(tables...)

	go func() {
		defer close(out)
		defer cancel()

		for {
			v, err := eval(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Snapshot[T]{Value: v, Err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
