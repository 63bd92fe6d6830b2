package stream

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

var (
	ErrStopIteration = errors.New("stop iterating")
)

// Iterator is a pull cursor over a stream of items. Items are produced one
// at a time, only when asked for, so a pipeline holds a single item in
// flight no matter how long its input is.
type Iterator[T any] interface {
	// Next returns the next item in the stream.
	// Returns ErrStopIteration once the stream is exhausted.
	Next() (T, error)
}

// IsEnd reports whether err marks the normal end of a stream.
func IsEnd(err error) bool {
	return errors.Is(err, ErrStopIteration)
}

// Func adapts a function to the Iterator interface.
type Func[T any] func() (T, error)

func (f Func[T]) Next() (T, error) {
	return f()
}

func FromSlice[T any](items []T) Iterator[T] {
	i := 0
	return Func[T](func() (T, error) {
		if i >= len(items) {
			var none T
			return none, ErrStopIteration
		}
		item := items[i]
		i++
		return item, nil
	})
}

// Each calls fn for every remaining item in the stream. Reaching the end of
// the stream returns nil; any other error from the stream or from fn stops
// iteration and is returned.
func Each[T any](it Iterator[T], fn func(item T) error) error {
	for {
		item, err := it.Next()
		if err != nil {
			if IsEnd(err) {
				return nil
			}
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

// Collect drains the stream into a slice.
func Collect[T any](it Iterator[T]) ([]T, error) {
	var items []T
	err := Each(it, func(item T) error {
		items = append(items, item)
		return nil
	})
	return items, err
}

// Merge forwards items from all sources into a single stream. Ordering
// across sources is not specified. It's advised not to read from an iterator
// that has been passed to Merge.
func Merge[T any](sources ...Iterator[T]) Iterator[T] {
	switch len(sources) {
	case 0:
		return FromSlice[T](nil)
	case 1:
		return sources[0]
	}
	grp, ctx := errgroup.WithContext(context.Background())
	ch := make(chan T)
	for _, src := range sources {
		src := src
		grp.Go(func() error {
			return Each(src, func(item T) error {
				select {
				case ch <- item:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		})
	}
	var grpErr error
	go func() {
		grpErr = grp.Wait()
		close(ch)
	}()
	return Func[T](func() (T, error) {
		item, ok := <-ch
		if !ok {
			var none T
			if grpErr != nil {
				return none, grpErr
			}
			return none, ErrStopIteration
		}
		return item, nil
	})
}
