package document_repo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain"
	"orderflow/internal/domain/documents/job_order"
)

func TestJobOrderLine_EncodeDecode(t *testing.T) {
	line := job_order.NewLine(id.New(), id.New(), id.New(), types.MustQuantity("10"))
	line.Reserved = types.MustQuantity("6")
	line.Tranches[0] = types.MustQuantity("4")
	line.Tranches[7] = types.MustQuantity("0.5")
	line.Sources[entity.LocationNG] = types.MustQuantity("2")
	line.Sources[entity.LocationPH] = types.MustQuantity("4")
	line.Recompute()

	data, err := encodeLine(&line)
	require.NoError(t, err)

	tranches := data["tranches"].([]int64)
	require.Len(t, tranches, job_order.MaxTranches)
	assert.Equal(t, int64(40), tranches[0])
	assert.Equal(t, int64(5), tranches[7])

	row := jobOrderLineRow{
		Line:        line,
		TranchesRaw: tranches,
		SourcesRaw:  []byte(data["sources"].(string)),
	}
	row.Line.Tranches = [job_order.MaxTranches]types.Quantity{}
	row.Line.Sources = nil

	decoded, err := row.decode()
	require.NoError(t, err)
	assert.Equal(t, line.Tranches, decoded.Tranches)
	assert.Equal(t, line.Sources, decoded.Sources)
	assert.Equal(t, line.Derive(), decoded.Derive())
}

func TestJobOrderLine_DecodeEmptySources(t *testing.T) {
	row := jobOrderLineRow{Line: job_order.Line{LineID: id.New()}}
	l, err := row.decode()
	require.NoError(t, err)
	assert.NotNil(t, l.Sources)
	assert.Empty(t, l.Sources)

	row.SourcesRaw = []byte("{not json")
	_, err = row.decode()
	assert.Error(t, err)
}

func TestEncodeLine_SourcesAreJSONObject(t *testing.T) {
	l := job_order.Line{LineID: id.New()}
	data, err := encodeLine(&l)
	require.NoError(t, err)

	var sources map[string]any
	require.NoError(t, json.Unmarshal([]byte(data["sources"].(string)), &sources))
	assert.Empty(t, sources)
}

func TestFilterQuery(t *testing.T) {
	repo := NewBaseDocumentRepo[any](nil, "doc", "doc_things", []string{"id", "number", "date", "status", "deletion_mark"}, func() any { return nil })
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.filterQuery(domain.ListFilter{Status: "sent", Search: "QT"}, &from, nil).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, number, date, status, deletion_mark FROM doc_things WHERE deletion_mark = $1 AND status = $2 AND number ILIKE $3 AND date >= $4",
		sql)
	assert.Equal(t, []any{false, "sent", "%QT%", from}, args)
}

func TestDocumentParseOrderBy(t *testing.T) {
	repo := NewBaseDocumentRepo[any](nil, "doc", "doc_things", []string{"id", "number", "date"}, func() any { return nil })

	got, err := repo.parseOrderBy("")
	require.NoError(t, err)
	assert.Equal(t, "date DESC, number DESC", got)

	got, err = repo.parseOrderBy("-number")
	require.NoError(t, err)
	assert.Equal(t, "number DESC", got)

	_, err = repo.parseOrderBy("customer_name")
	assert.Error(t, err)
}
