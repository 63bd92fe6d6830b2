// Package store lands events in a SQLite database, one row per event and
// one text column per field, growing the schema as new fields appear.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/logship/logship/pkg/clause"
	"github.com/logship/logship/pkg/event"
	"github.com/logship/logship/pkg/sink"
	_ "modernc.org/sqlite"
)

var (
	tablePattern = regexp.MustCompile(`^[\w\d]+(\.[\w\d]+)?$`)
	ErrBadTable  = errors.New("invalid table name")
)

const createTable = `
create table if not exists %s (
	evt_id integer primary key
)`

// Store is a sink writing events to a SQLite table.
type Store struct {
	log   hclog.Logger
	db    *sql.DB
	table string
	cols  map[string]bool
}

func New(log hclog.Logger, filename, table string) (*Store, error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %s", ErrBadTable, table)
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	s := &Store{
		log:   log.Named("sqlite").With("table", table),
		db:    db,
		table: table,
		cols:  map[string]bool{},
	}
	if err := s.ensureTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTable() error {
	if _, err := s.db.Exec(fmt.Sprintf(createTable, s.table)); err != nil {
		return err
	}
	cols, err := s.tableColumns()
	if err != nil {
		return err
	}
	for _, c := range cols {
		s.cols[c] = true
	}
	return nil
}

func (s *Store) tableColumns() ([]string, error) {
	rows, err := s.db.Query("select * from " + s.table)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	return rows.Columns()
}

func (s *Store) Ship(ev event.Event) {
	if err := s.insert(ev); err != nil {
		s.log.Warn("Could not ship event", "error", err)
	}
}

func (s *Store) insert(ev event.Event) error {
	var intoFields []string
	for k := range ev {
		if !s.cols[k] {
			s.log.Debug("New field discovered, adding to table", "field", k)
			if err := s.addColumn(k); err != nil {
				return err
			}
			s.cols[k] = true
		}
		intoFields = append(intoFields, k)
	}

	var intoStr strings.Builder
	var params strings.Builder
	for i, f := range intoFields {
		if i > 0 {
			intoStr.WriteString(",")
			params.WriteString(",")
		}
		intoStr.WriteString("\"" + f + "\"")
		params.WriteString("?")
	}
	args := make([]any, len(intoFields))
	for i, f := range intoFields {
		str, ok := ev.AsString(f)
		if !ok {
			s.log.Warn("Field not able to be coerced to string", "field", f)
			args[i] = ""
			continue
		}
		args[i] = str
	}
	query := fmt.Sprintf("insert into %s (%s) values (%s)", s.table, intoStr.String(), params.String())
	if _, err := s.db.Exec(query, args...); err != nil {
		return err
	}
	return nil
}

func (s *Store) addColumn(colName string) error {
	_, err := s.db.Exec(fmt.Sprintf("alter table %s add column \"%s\" text null", s.table, colName))
	if err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Register adds the store to the registry under the name "sqlite".
func Register(r *sink.Registry) error {
	if err := r.Register("sqlite", build); err != nil {
		return err
	}
	r.Document("sqlite", `sqlite,FILE,TABLE

Lands every event as a row of the given SQLite table, creating the table and
one text column per event field as needed.`)
	return nil
}

func build(log hclog.Logger, args clause.Args) (sink.Sink, error) {
	if err := args.Known(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	pos := args.Positional()
	if len(pos) != 2 {
		return nil, fmt.Errorf("sqlite: %w: FILE and TABLE arguments are required", clause.ErrArgs)
	}
	return New(log, pos[0], pos[1])
}
