package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cartd/internal/domain/menu"
	"github.com/xenking/cartd/internal/storage/memory"
)

func writeDump(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []rawItem
	}{
		{
			name: "flat item",
			line: `{"id":"m1","restaurantId":"r1","name":"Margherita","price":299,"isVeg":true}`,
			want: []rawItem{{id: "m1", restaurantID: "r1", name: "Margherita", price: "299", isVeg: true}},
		},
		{
			name: "numeric ids and nested restaurant",
			line: `{"_id":1001,"restaurant":{"_id":1},"name":"Whopper Meal","price":"159.50"}`,
			want: []rawItem{{id: "1001", restaurantID: "1", name: "Whopper Meal", price: "159.50"}},
		},
		{
			name: "category record",
			line: `{"categoryId":101,"categoryName":"Whopper","items":[{"id":1001,"name":"Whopper Meal","price":159,"isVeg":false},{"id":1002,"name":"Veg Whopper","price":149,"isVeg":true,"rating":4.2}],"restaurantId":1}`,
			want: []rawItem{
				{id: "1001", restaurantID: "1", name: "Whopper Meal", price: "159"},
				{id: "1002", restaurantID: "1", name: "Veg Whopper", price: "149", isVeg: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseLine([]byte(`{"id":`))
	require.Error(t, err)
}

func TestRawItem_Validate(t *testing.T) {
	valid := rawItem{id: "m1", restaurantID: "r1", name: "Fries", price: "99"}
	it, err := valid.item()
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(99).Equal(it.Price))

	tests := []struct {
		name   string
		modify func(*rawItem)
	}{
		{"missing id", func(r *rawItem) { r.id = "" }},
		{"missing restaurant", func(r *rawItem) { r.restaurantID = "" }},
		{"missing name", func(r *rawItem) { r.name = "" }},
		{"bad price", func(r *rawItem) { r.price = "free" }},
		{"negative price", func(r *rawItem) { r.price = "-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.modify(&r)
			_, err := r.item()
			require.Error(t, err)
		})
	}
}

type countingWriter struct {
	*memory.Catalog
	batches []int
	err     error
}

func (w *countingWriter) Upsert(ctx context.Context, items []menu.Item) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, len(items))
	return w.Catalog.Upsert(ctx, items)
}

func TestImporter_LastDumpWins(t *testing.T) {
	first := writeDump(t, "1.jsonl.gz",
		`{"id":"m1","restaurantId":"r1","name":"Margherita","price":299}`,
		`{"id":"m2","restaurantId":"r1","name":"Farmhouse","price":349}`,
		`not json`,
		`{"id":"m3","restaurantId":"r1","name":"","price":10}`,
	)
	second := writeDump(t, "2.jsonl.gz",
		`{"restaurantId":"r1","categoryName":"Pizzas","items":[{"id":"m1","name":"Margherita","price":279}]}`,
		``,
		`{"id":"m4","restaurantId":"r2","name":"Biryani","price":250,"isVeg":false}`,
	)

	w := &countingWriter{Catalog: memory.NewCatalog()}
	im := &importer{writer: w, batchSize: 2, capacity: 100}
	st, err := im.run(context.Background(), []string{first, second})
	require.NoError(t, err)

	assert.Equal(t, 4, st.read)
	assert.Equal(t, 2, st.invalid)
	assert.Equal(t, 1, st.superseded)
	assert.Equal(t, 3, st.written)
	for _, n := range w.batches {
		assert.LessOrEqual(t, n, 2)
	}

	ctx := context.Background()
	m1, err := w.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(279).Equal(m1.Price))

	items, err := w.ListByRestaurant(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = w.GetByID(ctx, "m3")
	require.ErrorIs(t, err, menu.ErrNotFound)
}

func TestImporter_WriteError(t *testing.T) {
	dump := writeDump(t, "1.jsonl.gz", `{"id":"m1","restaurantId":"r1","name":"Fries","price":99}`)
	w := &countingWriter{Catalog: memory.NewCatalog(), err: errors.New("db down")}
	im := &importer{writer: w, batchSize: 10, capacity: 10}

	_, err := im.run(context.Background(), []string{dump})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestDumpFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jsonl.gz", "a.jsonl.gz", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	files, err := dumpFiles(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jsonl.gz"), filepath.Join(dir, "b.jsonl.gz")}, files)

	_, err = dumpFiles(t.TempDir(), nil)
	require.Error(t, err)

	_, err = dumpFiles(dir, []string{filepath.Join(dir, "missing.jsonl.gz")})
	require.Error(t, err)
}
