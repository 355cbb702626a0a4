package main

import (
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/jmoiron/sqlx"
)

// Frame is a table loaded whole in memory.
type Frame struct {
	Name   string
	record arrow.Record
}

// Schema returns the arrow schema of the frame.
func (f *Frame) Schema() *arrow.Schema { return f.record.Schema() }

// Record returns the frame's data.
func (f *Frame) Record() arrow.Record { return f.record }

// NumRows returns the number of rows of the frame.
func (f *Frame) NumRows() int64 { return f.record.NumRows() }

// Release frees the memory held by the frame.
func (f *Frame) Release() { f.record.Release() }

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
	kindBinary
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond}

func (k columnKind) arrowType() arrow.DataType {
	switch k {
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindTime:
		return timestampType
	case kindBinary:
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func kindOf(dt arrow.DataType) columnKind {
	switch dt.ID() {
	case arrow.INT64:
		return kindInt
	case arrow.FLOAT64:
		return kindFloat
	case arrow.BOOL:
		return kindBool
	case arrow.TIMESTAMP:
		return kindTime
	case arrow.BINARY:
		return kindBinary
	default:
		return kindString
	}
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	nullTimeType  = reflect.TypeOf(sql.NullTime{})
	nullBoolType  = reflect.TypeOf(sql.NullBool{})
	nullInt64Type = reflect.TypeOf(sql.NullInt64{})
	nullInt32Type = reflect.TypeOf(sql.NullInt32{})
	nullInt16Type = reflect.TypeOf(sql.NullInt16{})
	nullByteType  = reflect.TypeOf(sql.NullByte{})
	nullFloatType = reflect.TypeOf(sql.NullFloat64{})
	nullStrType   = reflect.TypeOf(sql.NullString{})
	floaterType   = reflect.TypeOf((*interface{ Float64() float64 })(nil)).Elem()
)

// typeTokens maps the words of declared type names to a kind. A name is
// split on anything that is not a letter or a digit, so "INT" never matches
// inside "POINT" or "INTERVAL".
var typeTokens = map[string]columnKind{
	"INT": kindInt, "INTEGER": kindInt, "INT2": kindInt, "INT4": kindInt, "INT8": kindInt,
	"TINYINT": kindInt, "SMALLINT": kindInt, "MEDIUMINT": kindInt, "BIGINT": kindInt,
	"UTINYINT": kindInt, "USMALLINT": kindInt, "UINTEGER": kindInt, "UBIGINT": kindInt,
	"SERIAL": kindInt, "SMALLSERIAL": kindInt, "BIGSERIAL": kindInt, "SERIAL4": kindInt, "SERIAL8": kindInt,

	"REAL": kindFloat, "FLOAT": kindFloat, "FLOAT4": kindFloat, "FLOAT8": kindFloat, "DOUBLE": kindFloat,
	"NUMERIC": kindFloat, "DECIMAL": kindFloat, "DEC": kindFloat, "NUMBER": kindFloat,
	"HUGEINT": kindFloat, "UHUGEINT": kindFloat,

	"BOOL": kindBool, "BOOLEAN": kindBool,

	"DATE": kindTime, "DATETIME": kindTime, "DATETIME2": kindTime, "SMALLDATETIME": kindTime,
	"DATETIMEOFFSET": kindTime, "TIMESTAMP": kindTime, "TIMESTAMPTZ": kindTime,

	"BLOB": kindBinary, "TINYBLOB": kindBinary, "MEDIUMBLOB": kindBinary, "LONGBLOB": kindBinary,
	"BYTEA": kindBinary, "BINARY": kindBinary, "VARBINARY": kindBinary, "IMAGE": kindBinary,
}

// compositeTokens are words of type names exported as text: nested, range,
// geometric and interval types.
var compositeTokens = map[string]bool{
	"ARRAY": true, "LIST": true, "MAP": true, "STRUCT": true, "UNION": true,
	"RANGE": true, "MULTIRANGE": true, "POINT": true, "LINE": true, "LSEG": true,
	"BOX": true, "PATH": true, "POLYGON": true, "CIRCLE": true, "GEOMETRY": true,
	"GEOGRAPHY": true, "INTERVAL": true,
}

func typeWords(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isCompositeName reports array, range, nested and geometric type names:
// INTEGER[] (DuckDB), _INT4 and INT4RANGE (PostgreSQL), STRUCT(...), POINT.
func isCompositeName(name string) bool {
	if strings.HasPrefix(name, "_") || strings.Contains(name, "[") || strings.Contains(name, "RANGE") {
		return true
	}
	for _, w := range typeWords(name) {
		if compositeTokens[w] {
			return true
		}
	}
	return false
}

// isCompositeScan reports scan types holding several values.
func isCompositeScan(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	case reflect.Map:
		return true
	case reflect.Struct:
		switch t {
		case timeType, nullTimeType, nullBoolType, nullInt64Type, nullInt32Type,
			nullInt16Type, nullByteType, nullFloatType, nullStrType:
			return false
		}
		return !t.Implements(floaterType) && !reflect.PointerTo(t).Implements(floaterType)
	}
	return false
}

// classify picks the frame type of a column. Composite columns are text.
// Otherwise the words of the declared type name decide, then the driver's
// scan type. Columns without a declared type hold strings.
func classify(scan reflect.Type, dbType string) columnKind {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if name == "" || isCompositeName(name) {
		return kindString
	}
	if scan != nil && isCompositeScan(scan) {
		return kindString
	}

	for _, w := range typeWords(name) {
		if kind, ok := typeTokens[w]; ok {
			return kind
		}
	}

	if scan == nil {
		return kindString
	}

	// go-sqlite3 reports NullFloat64 for any name it does not know, so it
	// says nothing about the values.
	switch scan {
	case timeType, nullTimeType:
		return kindTime
	case nullBoolType:
		return kindBool
	case nullInt64Type, nullInt32Type, nullInt16Type, nullByteType:
		return kindInt
	}
	switch scan.Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return kindInt
	case reflect.Float32, reflect.Float64:
		return kindFloat
	}
	return kindString
}

// LoadFrame reads every row of rows into a frame. The rows are consumed
// but not closed.
func LoadFrame(mem memory.Allocator, name string, rows *sqlx.Rows) (*Frame, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	kinds := make([]columnKind, len(types))
	fields := make([]arrow.Field, len(types))
	for i, ct := range types {
		kinds[i] = classify(ct.ScanType(), ct.DatabaseTypeName())
		fields[i] = arrow.Field{
			Name:     ct.Name(),
			Type:     kinds[i].arrowType(),
			Nullable: true,
		}
	}

	builder := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer builder.Release()

	values := make([]interface{}, len(types))
	dest := make([]interface{}, len(types))
	for i := range values {
		dest[i] = &values[i]
	}

	row := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", row, err)
		}
		for i, v := range values {
			if err := appendValue(builder.Field(i), kinds[i], v); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", row, fields[i].Name, err)
			}
		}
		row++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &Frame{Name: name, record: builder.NewRecord()}, nil
}

func appendValue(b array.Builder, kind columnKind, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch kind {
	case kindInt:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		b.(*array.Int64Builder).Append(n)
	case kindFloat:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		b.(*array.Float64Builder).Append(f)
	case kindBool:
		t, err := toBool(v)
		if err != nil {
			return err
		}
		b.(*array.BooleanBuilder).Append(t)
	case kindTime:
		t, err := toTime(v)
		if err != nil {
			return err
		}
		b.(*array.TimestampBuilder).AppendTime(t)
	case kindBinary:
		switch v := v.(type) {
		case []byte:
			b.(*array.BinaryBuilder).Append(v)
		case string:
			b.(*array.BinaryBuilder).AppendString(v)
		default:
			return fmt.Errorf("cannot convert %T to binary", v)
		}
	default:
		b.(*array.StringBuilder).Append(toString(v))
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case *big.Int:
		if !v.IsInt64() {
			return 0, fmt.Errorf("%s overflows int64", v)
		}
		return v.Int64(), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	case interface{ Float64() float64 }:
		return v.Float64(), nil
	case fmt.Stringer:
		return strconv.ParseFloat(v.String(), 64)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
	return float64(n), nil
}

func toBool(v interface{}) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
	return n != 0, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, error) {
	var s string
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
