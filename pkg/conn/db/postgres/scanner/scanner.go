package scanner

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v4"
)

type Queryer interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// type-safe scanner for pgx.Rows
//
// # example
//
//	type Row struct {
//		Id         int64
//		ExternalId string
//		Week       pgtype.Text `sql:"week"`
//	}
//
//	rows, err := scanner.New[Row]().QueryAll(ctx, conn, `select "id", "external_id", "week" from "asset"`)
//
// # mapping rule
//
// columns are mapped into
//
//  1. field with tag `sql:"column_name"`
//  2. or, field named as same as the column name
//  3. or, field which has a name in CamelCase version of column name.
//
// For example, column named "external_id" is mapped into field
// with tag `sql:"external_id"`, named "external_id" or named "ExternalId",
// in this priority.
type Scanner[T any] interface {
	// scan all rows in pgx.Rows and convert to []T
	ScanAll(pgx.Rows) ([]T, error)

	// scan all rows in response of query.
	QueryAll(context.Context, Queryer, string, ...interface{}) ([]T, error)
}

type scanner[T any] struct {
	byTag  map[string]int
	byName map[string]int
}

// New creates Scanner for struct type T.
//
// It panics if T is not a struct.
func New[T any]() Scanner[T] {
	t := reflect.TypeOf(*new(T))
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("scanner: %T is not a struct", *new(T)))
	}

	s := &scanner[T]{byTag: map[string]int{}, byName: map[string]int{}}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		s.byName[f.Name] = i
		if tag, ok := f.Tag.Lookup("sql"); ok {
			s.byTag[tag] = i
		}
	}
	return s
}

// camel converts snake_case to CamelCase. Repeated underscores are kept except one.
func camel(s string) string {
	b := &strings.Builder{}
	for _, ss := range strings.Split(s, "_") {
		if len(ss) == 0 {
			b.WriteString("_")
			continue
		}
		b.WriteString(strings.ToUpper(ss[0:1]))
		b.WriteString(ss[1:])
	}
	return b.String()
}

func (s *scanner[T]) field(col string) (int, bool) {
	if i, ok := s.byTag[col]; ok {
		return i, true
	}
	if i, ok := s.byName[col]; ok {
		return i, true
	}
	i, ok := s.byName[camel(col)]
	return i, ok
}

func (s *scanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	cols := rows.FieldDescriptions()
	fields := make([]int, 0, len(cols))
	for _, fd := range cols {
		i, ok := s.field(string(fd.Name))
		if !ok {
			return nil, fmt.Errorf(
				`field for column "%s" is not found in type "%T"`, fd.Name, *new(T),
			)
		}
		fields = append(fields, i)
	}

	ret := []T{}
	dest := make([]interface{}, len(fields))
	for rows.Next() {
		elem := new(T)
		v := reflect.ValueOf(elem).Elem()
		for nth, i := range fields {
			dest[nth] = v.Field(i).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ret = append(ret, *elem)
	}
	return ret, rows.Err()
}

func (s *scanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...interface{}) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.ScanAll(rows)
}
