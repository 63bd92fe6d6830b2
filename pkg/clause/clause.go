// Package clause parses the comma and colon separated descriptions used to
// configure filter pipelines and sinks, such as
// "init_json,add_tags:a:b" or "redis,redis://host:6379/0,key=logs".
package clause

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrArgs = errors.New("argument error")
)

// SplitList splits a description into its comma separated clauses. Commas
// inside double quotes do not split, following csv quoting rules.
func SplitList(desc string) ([]string, error) {
	return split(desc, ',')
}

// SplitClause splits a single clause into its colon separated segments.
func SplitClause(c string) ([]string, error) {
	return split(c, ':')
}

func split(s string, comma rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.Comma = comma
	r.LazyQuotes = true
	record, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// Args carries the arguments of one parsed clause. Segments containing "="
// are keyword arguments, split on the first "="; the rest are positional.
type Args struct {
	pos []string
	kv  map[string]string
}

// Parse sorts raw clause segments into positional and keyword arguments.
func Parse(raw []string) Args {
	a := Args{kv: map[string]string{}}
	for _, s := range raw {
		if k, v, ok := strings.Cut(s, "="); ok {
			a.kv[k] = v
		} else {
			a.pos = append(a.pos, s)
		}
	}
	return a
}

// Positional returns the positional arguments in order.
func (a Args) Positional() []string {
	return a.pos
}

// Keywords returns a copy of the keyword arguments.
func (a Args) Keywords() map[string]string {
	kv := make(map[string]string, len(a.kv))
	for k, v := range a.kv {
		kv[k] = v
	}
	return kv
}

func (a Args) Lookup(key string) (string, bool) {
	v, ok := a.kv[key]
	return v, ok
}

// String returns the keyword argument's value, or fallback when absent.
func (a Args) String(key, fallback string) string {
	if v, ok := a.kv[key]; ok {
		return v
	}
	return fallback
}

// Bool returns the keyword argument parsed as a boolean, or fallback when
// absent. Unparseable values are an error rather than false.
func (a Args) Bool(key string, fallback bool) (bool, error) {
	v, ok := a.kv[key]
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrArgs, key, v)
	}
	return b, nil
}

// Int returns the keyword argument parsed as an integer, or fallback when
// absent.
func (a Args) Int(key string, fallback int) (int, error) {
	v, ok := a.kv[key]
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrArgs, key, v)
	}
	return n, nil
}

// Require returns the keyword argument's value, or an error naming the
// missing key.
func (a Args) Require(key string) (string, error) {
	v, ok := a.kv[key]
	if !ok {
		return "", fmt.Errorf("%w: missing required argument %q", ErrArgs, key)
	}
	return v, nil
}

// NoPositional returns an error when any positional arguments are present.
func (a Args) NoPositional() error {
	if len(a.pos) > 0 {
		return fmt.Errorf("%w: unexpected positional arguments: %s", ErrArgs, strings.Join(a.pos, ", "))
	}
	return nil
}

// Known returns an error when a keyword argument outside keys is present.
func (a Args) Known(keys ...string) error {
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	var unknown []string
	for k := range a.kv {
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: unexpected keyword arguments: %s", ErrArgs, strings.Join(unknown, ", "))
}

// None returns an error when any arguments are present at all.
func (a Args) None() error {
	if err := a.NoPositional(); err != nil {
		return err
	}
	return a.Known()
}
