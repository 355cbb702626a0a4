package main

import (
	"context"
	"database/sql"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestLoadFrame(t *testing.T) {
	setup := &DatabaseSetup{
		t: t,
	}
	setup.Open()
	setup.Exec(`CREATE TABLE kinds (
		i INTEGER,
		r REAL,
		d DECIMAL(10,2),
		s TEXT,
		b BOOLEAN,
		ts DATETIME,
		bl BLOB,
		u
	)`)
	setup.Exec(`INSERT INTO kinds VALUES
		(1, 1.5, 12.34, 'x', 1, '2024-01-02 03:04:05', X'0102', 'any'),
		(null, null, null, null, null, null, null, null)`)
	defer setup.Close()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rows, err := setup.db.GetRowsByTable(context.Background(), "", "kinds")
	require.NoError(t, err)
	frame, err := LoadFrame(mem, "kinds", rows)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	defer frame.Release()

	require.Equal(t, "kinds", frame.Name)
	require.Equal(t, int64(2), frame.NumRows())

	expected := []arrow.DataType{
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Float64,
		arrow.PrimitiveTypes.Float64,
		arrow.BinaryTypes.String,
		arrow.FixedWidthTypes.Boolean,
		timestampType,
		arrow.BinaryTypes.Binary,
		arrow.BinaryTypes.String,
	}
	fields := frame.Schema().Fields()
	require.Len(t, fields, len(expected))
	for i, dt := range expected {
		require.True(t, arrow.TypeEqual(dt, fields[i].Type), "column %s is %s", fields[i].Name, fields[i].Type)
		require.True(t, fields[i].Nullable)
	}

	rec := frame.Record()
	require.Equal(t, int64(1), rec.Column(0).(*array.Int64).Value(0))
	require.Equal(t, 1.5, rec.Column(1).(*array.Float64).Value(0))
	require.InDelta(t, 12.34, rec.Column(2).(*array.Float64).Value(0), 1e-9)
	require.Equal(t, "x", rec.Column(3).(*array.String).Value(0))
	require.True(t, rec.Column(4).(*array.Boolean).Value(0))

	ts := rec.Column(5).(*array.Timestamp).Value(0).ToTime(arrow.Microsecond)
	require.True(t, ts.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), "got %s", ts)

	require.Equal(t, []byte{0x01, 0x02}, rec.Column(6).(*array.Binary).Value(0))
	require.Equal(t, "any", rec.Column(7).(*array.String).Value(0))

	for i := 0; i < int(rec.NumCols()); i++ {
		require.True(t, rec.Column(i).IsNull(1), "column %d", i)
	}
}

func TestLoadFrameEmptyTable(t *testing.T) {
	setup := &DatabaseSetup{
		t: t,
	}
	setup.Open()
	setup.Exec("CREATE TABLE empty (a INT, b TEXT)")
	defer setup.Close()

	rows, err := setup.db.GetRowsByTable(context.Background(), "", "empty")
	require.NoError(t, err)
	frame, err := LoadFrame(memory.NewGoAllocator(), "empty", rows)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	defer frame.Release()

	require.Equal(t, int64(0), frame.NumRows())
	require.Len(t, frame.Schema().Fields(), 2)
}

func TestLoadFrameCompositeColumns(t *testing.T) {
	setup := &DatabaseSetup{
		t: t,
	}
	setup.Open()
	setup.Exec("CREATE TABLE shapes (id INTEGER, p POINT, hint TEXT)")
	setup.Exec("INSERT INTO shapes VALUES (1, '(1,2)', 'x')")
	defer setup.Close()

	frame := loadFrame(t, setup, "shapes")
	defer frame.Release()

	rec := frame.Record()
	require.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int64, rec.Schema().Field(0).Type))
	require.True(t, arrow.TypeEqual(arrow.BinaryTypes.String, rec.Schema().Field(1).Type))
	require.Equal(t, "(1,2)", rec.Column(1).(*array.String).Value(0))
}

func TestLoadFrameListColumns(t *testing.T) {
	db, err := sqlx.Open("duckdb", "")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	_, err = db.Exec("CREATE TABLE t (a INTEGER[], f FLOAT[], p VARCHAR)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t VALUES ([1, 2], [0.5], 'x'), (NULL, NULL, NULL)")
	require.NoError(t, err)

	rows, err := db.Queryx("SELECT * FROM t")
	require.NoError(t, err)
	frame, err := LoadFrame(memory.NewGoAllocator(), "t", rows)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	defer frame.Release()

	rec := frame.Record()
	for i := 0; i < 3; i++ {
		require.True(t, arrow.TypeEqual(arrow.BinaryTypes.String, rec.Schema().Field(i).Type), "column %d", i)
		require.True(t, rec.Column(i).IsNull(1))
	}
	require.Equal(t, "[1 2]", rec.Column(0).(*array.String).Value(0))
	require.Equal(t, "x", rec.Column(2).(*array.String).Value(0))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		scan   reflect.Type
		dbType string
		kind   columnKind
	}{
		{reflect.TypeOf(sql.NullFloat64{}), "", kindString},
		{nil, "", kindString},
		{reflect.TypeOf(sql.NullInt64{}), "INTEGER", kindInt},
		{reflect.TypeOf(int32(0)), "INT4", kindInt},
		{reflect.TypeOf(float32(0)), "FLOAT4", kindFloat},
		{reflect.TypeOf(sql.NullBool{}), "BOOLEAN", kindBool},
		{reflect.TypeOf(time.Time{}), "TIMESTAMPTZ", kindTime},
		{reflect.TypeOf(sql.NullString{}), "VARCHAR", kindString},
		{reflect.TypeOf(sql.RawBytes{}), "DECIMAL", kindFloat},
		{reflect.TypeOf(sql.RawBytes{}), "numeric(10,2)", kindFloat},
		{reflect.TypeOf(sql.RawBytes{}), "MONEY", kindString},
		{reflect.TypeOf(sql.RawBytes{}), "BIGSERIAL", kindInt},
		{reflect.TypeOf(sql.RawBytes{}), "INTERVAL", kindString},
		{reflect.TypeOf(sql.RawBytes{}), "DATE", kindTime},
		{reflect.TypeOf(sql.RawBytes{}), "DATETIME2", kindTime},
		{reflect.TypeOf(sql.RawBytes{}), "BYTEA", kindBinary},
		{reflect.TypeOf(sql.RawBytes{}), "VARBINARY", kindBinary},
		{reflect.TypeOf(sql.RawBytes{}), "JSON", kindString},
		{reflect.TypeOf(new(interface{})), "UUID", kindString},
		{reflect.TypeOf(sql.NullFloat64{}), "JSON", kindString},
		{reflect.TypeOf(sql.NullInt64{}), "UNSIGNED BIG INT", kindInt},
		{reflect.TypeOf(sql.NullInt64{}), "INT(11)", kindInt},
		{reflect.TypeOf(sql.RawBytes{}), "DOUBLE PRECISION", kindFloat},
		{reflect.TypeOf(true), "BIT", kindBool},
		{reflect.TypeOf(time.Time{}), "TIMESTAMP WITH TIME ZONE", kindTime},
		{reflect.TypeOf(time.Time{}), "TIMESTAMP_NS", kindTime},

		// composite columns are text whatever their element type
		{reflect.TypeOf([]interface{}{}), "INTEGER[]", kindString},
		{reflect.TypeOf([]interface{}{}), "FLOAT[]", kindString},
		{reflect.TypeOf([]interface{}{}), "INTEGER[3]", kindString},
		{reflect.TypeOf(map[string]interface{}{}), "STRUCT(a INTEGER)", kindString},
		{reflect.TypeOf(map[interface{}]interface{}{}), "MAP(INTEGER, VARCHAR)", kindString},
		{reflect.TypeOf([]interface{}{}), "LIST", kindString},
		{reflect.TypeOf(""), "_INT4", kindString},
		{reflect.TypeOf(""), "_FLOAT8", kindString},
		{reflect.TypeOf(""), "INT4RANGE", kindString},
		{reflect.TypeOf(""), "INT8MULTIRANGE", kindString},
		{reflect.TypeOf(sql.NullInt64{}), "POINT", kindString},
		{reflect.TypeOf(sql.NullInt64{}), "GEOMETRY(POINT, 4326)", kindString},
		{reflect.TypeOf([]int64{}), "BIGINT", kindString},
		{reflect.TypeOf(struct{ Days, Micros int64 }{}), "INTERVAL", kindString},
		{reflect.TypeOf([]interface{}{}), "", kindString},
	}

	for _, tc := range tests {
		require.Equal(t, tc.kind, classify(tc.scan, tc.dbType), "%v %s", tc.scan, tc.dbType)
	}
}

func TestConverters(t *testing.T) {
	n, err := toInt64([]byte("42"))
	require.NoError(t, err)
	require.Equal(t, int64(42), n)

	n, err = toInt64(big.NewInt(-7))
	require.NoError(t, err)
	require.Equal(t, int64(-7), n)

	_, err = toInt64(uint64(1 << 63))
	require.ErrorContains(t, err, "overflows int64")

	_, err = toInt64(1.5)
	require.Error(t, err)

	f, err := toFloat64("3.25")
	require.NoError(t, err)
	require.Equal(t, 3.25, f)

	f, err = toFloat64(int64(3))
	require.NoError(t, err)
	require.Equal(t, 3.0, f)

	f, err = toFloat64(big.NewFloat(2.5))
	require.NoError(t, err)
	require.Equal(t, 2.5, f)

	b, err := toBool(int64(0))
	require.NoError(t, err)
	require.False(t, b)

	b, err = toBool("true")
	require.NoError(t, err)
	require.True(t, b)

	ts, err := toTime("2024-03-04T05:06:07Z")
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)))

	ts, err = toTime([]byte("2024-03-04"))
	require.NoError(t, err)
	require.Equal(t, 2024, ts.Year())

	_, err = toTime("yesterday")
	require.Error(t, err)

	require.Equal(t, "abc", toString([]byte("abc")))
	require.Equal(t, "12", toString(int64(12)))
}
