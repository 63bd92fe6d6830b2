package stream

import (
	"bufio"
	"io"

	"github.com/nxadm/tail"
)

// Line scanning keeps up with log lines well past bufio's default token cap.
const maxLineBytes = 1024 * 1024

// Lines reads r one line at a time, with line terminators stripped. The
// stream ends at EOF; a read failure ends it with that error.
func Lines(r io.Reader) Iterator[string] {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return Func[string](func() (string, error) {
		if sc.Scan() {
			return sc.Text(), nil
		}
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", ErrStopIteration
	})
}

// Follow tails the file at path, starting from its beginning and waiting for
// appended lines. The file must exist; rotation is handled by reopening. The
// returned stop function ends the stream.
func Follow(path string) (Iterator[string], func() error, error) {
	t, err := tail.TailFile(path, tail.Config{
		ReOpen:    true,
		MustExist: true,
		Follow:    true,
	})
	if err != nil {
		return nil, nil, err
	}
	it := Func[string](func() (string, error) {
		l, ok := <-t.Lines
		if !ok {
			return "", ErrStopIteration
		}
		if l.Err != nil {
			return "", l.Err
		}
		return l.Text, nil
	})
	return it, t.Stop, nil
}
