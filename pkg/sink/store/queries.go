package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/stream"
)

var (
	ErrUnexpectedColumnType = errors.New("unexpected column type")
)

// Query streams every stored event back out of the table, oldest first.
// Null columns are left out of the returned events.
func (s *Store) Query() (stream.Iterator[event.Event], error) {
	rows, err := s.db.Query("select * from " + s.table + " order by evt_id")
	if err != nil {
		return nil, err
	}
	return newQueryIterator(rows)
}

func newQueryIterator(rows *sql.Rows) (stream.Iterator[event.Event], error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	if len(cols) == 0 {
		_ = rows.Close()
		return stream.FromSlice[event.Event](nil), nil
	}

	return stream.Func[event.Event](func() (event.Event, error) {
		if !rows.Next() {
			_ = rows.Close()
			if err := rows.Err(); err != nil {
				return nil, err
			}
			return nil, stream.ErrStopIteration
		}
		var rowID int
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = &sql.NullString{}
		}
		if cols[0] == "evt_id" {
			vals[0] = &rowID
		}
		if err := rows.Scan(vals...); err != nil {
			_ = rows.Close()
			return nil, err
		}

		ev := event.Event{}
		for i, v := range vals {
			switch val := v.(type) {
			case *sql.NullString:
				if val.Valid {
					ev[cols[i]] = val.String
				}
			case *int:
				ev[cols[i]] = *val
			default:
				return nil, fmt.Errorf("%w: %T", ErrUnexpectedColumnType, v)
			}
		}
		return ev, nil
	}), nil
}
