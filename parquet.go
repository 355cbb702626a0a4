package main

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/rs/zerolog/log"
)

var parquetCodecs = map[string]compress.Codec{
	"none":   &parquet.Uncompressed,
	"snappy": &parquet.Snappy,
	"gzip":   &parquet.Gzip,
	"zstd":   &parquet.Zstd,
}

// ParquetExporter writes tables as parquet files.
type ParquetExporter struct {
	dir   string
	codec compress.Codec
}

// NewParquetExporter creates a new ParquetExporter writing into dir.
func NewParquetExporter(dir, compression string) (*ParquetExporter, error) {
	if compression == "" {
		compression = "snappy"
	}
	codec, ok := parquetCodecs[strings.ToLower(compression)]
	if !ok {
		return nil, fmt.Errorf("unknown parquet compression %q", compression)
	}

	return &ParquetExporter{dir: dir, codec: codec}, nil
}

// Format implements Exporter.
func (e *ParquetExporter) Format() string { return FormatParquet }

// Export implements Exporter.
func (e *ParquetExporter) Export(ctx context.Context, frame *Frame) (string, error) {
	rowType := GetRowType(frame.Schema())

	filename := tablePath(e.dir, frame.Name, "parquet")
	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	row := reflect.New(rowType)
	schema := parquet.SchemaOf(row.Interface())
	if got, want := len(schema.Fields()), len(frame.Schema().Fields()); got != want {
		return "", fmt.Errorf("parquet schema has %d columns, table has %d", got, want)
	}
	writer := parquet.NewWriter(f, schema, parquet.Compression(e.codec))

	rec := frame.Record()
	for i := 0; i < int(rec.NumRows()); i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}

		fillRow(row.Elem(), rec, i)
		if err := writer.Write(row.Interface()); err != nil {
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	return filename, nil
}

var (
	int64PtrType   = reflect.TypeOf((*int64)(nil))
	float64PtrType = reflect.TypeOf((*float64)(nil))
	boolPtrType    = reflect.TypeOf((*bool)(nil))
	stringPtrType  = reflect.TypeOf((*string)(nil))
	timePtrType    = reflect.TypeOf((*time.Time)(nil))
	bytesType      = reflect.TypeOf([]byte(nil))
)

// parquetColumnNames returns the column names usable in parquet struct tags.
// Commas end the name in a tag and "-" skips the field, so both are
// replaced; an empty name would fall back to the Go field name. Names made
// equal by the replacement get a numeric suffix.
func parquetColumnNames(schema *arrow.Schema) []string {
	fields := schema.Fields()
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f.Name] = true
	}

	names := make([]string, len(fields))
	used := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := strings.ReplaceAll(f.Name, ",", "_")
		if name == "" || name == "-" {
			name = "_"
		}
		if name != f.Name || used[name] {
			base := name
			for n := 2; used[name] || (name != f.Name && taken[name]); n++ {
				name = base + "_" + strconv.Itoa(n)
			}
			log.Warn().Str("column", f.Name).Str("parquet_column", name).Msg("column renamed in parquet file")
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// GetRowType builds the struct type holding one row of a frame. Fields keep
// the order of the table's columns and every field is optional.
func GetRowType(schema *arrow.Schema) reflect.Type {
	names := parquetColumnNames(schema)
	fields := make([]reflect.StructField, len(schema.Fields()))
	for i, f := range schema.Fields() {
		name := names[i]

		var typ reflect.Type
		tag := name
		switch kindOf(f.Type) {
		case kindInt:
			typ = int64PtrType
		case kindFloat:
			typ = float64PtrType
		case kindBool:
			typ = boolPtrType
		case kindTime:
			typ = timePtrType
		case kindBinary:
			typ = bytesType
			tag += ",optional"
		default:
			typ = stringPtrType
		}

		fields[i] = reflect.StructField{
			Name: "C" + strconv.Itoa(i),
			Type: typ,
			Tag:  reflect.StructTag("parquet:" + strconv.Quote(tag)),
		}
	}
	return reflect.StructOf(fields)
}

// fillRow copies row i of rec into the struct value.
func fillRow(row reflect.Value, rec arrow.Record, i int) {
	for j, col := range rec.Columns() {
		field := row.Field(j)
		if col.IsNull(i) {
			field.SetZero()
			continue
		}

		switch col := col.(type) {
		case *array.Int64:
			v := col.Value(i)
			field.Set(reflect.ValueOf(&v))
		case *array.Float64:
			v := col.Value(i)
			field.Set(reflect.ValueOf(&v))
		case *array.Boolean:
			v := col.Value(i)
			field.Set(reflect.ValueOf(&v))
		case *array.Timestamp:
			v := col.Value(i).ToTime(timestampType.Unit)
			field.Set(reflect.ValueOf(&v))
		case *array.Binary:
			field.SetBytes(col.Value(i))
		case *array.String:
			v := col.Value(i)
			field.Set(reflect.ValueOf(&v))
		}
	}
}
