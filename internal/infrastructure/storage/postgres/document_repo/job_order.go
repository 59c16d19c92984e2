package document_repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/infrastructure/storage/postgres"
)

const (
	jobOrdersTable     = "doc_job_orders"
	jobOrderLinesTable = "doc_job_order_lines"
)

var jobOrderLineColumns = []string{
	"line_id", "job_order_id", "line_no", "sales_order_line_id", "product_id",
	"quantity", "reserved", "tranches", "sources",
	"shipped", "order_balance", "ready", "to_produce",
	"version", "updated_at",
}

// jobOrderLineRow adds the array and JSON encodings of the line inputs
// that have no scalar column.
type jobOrderLineRow struct {
	job_order.Line
	TranchesRaw []int64 `db:"tranches"`
	SourcesRaw  []byte  `db:"sources"`
}

func (row *jobOrderLineRow) decode() (job_order.Line, error) {
	l := row.Line
	for i := 0; i < len(row.TranchesRaw) && i < job_order.MaxTranches; i++ {
		l.Tranches[i] = types.NewQuantityFromInt64Scaled(row.TranchesRaw[i])
	}
	l.Sources = make(map[entity.Location]types.Quantity)
	if len(row.SourcesRaw) > 0 {
		if err := json.Unmarshal(row.SourcesRaw, &l.Sources); err != nil {
			return l, fmt.Errorf("decode sources of line %s: %w", l.LineID, err)
		}
	}
	return l, nil
}

func encodeLine(l *job_order.Line) (map[string]any, error) {
	tranches := make([]int64, job_order.MaxTranches)
	for i, t := range l.Tranches {
		tranches[i] = t.Int64Scaled()
	}
	sources := l.Sources
	if sources == nil {
		sources = map[entity.Location]types.Quantity{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}
	return map[string]any{
		"line_id":             l.LineID,
		"job_order_id":        l.JobOrderID,
		"line_no":             l.LineNo,
		"sales_order_line_id": l.SalesOrderLineID,
		"product_id":          l.ProductID,
		"quantity":            l.Quantity,
		"reserved":            l.Reserved,
		"tranches":            tranches,
		"sources":             string(raw),
		"shipped":             l.Shipped,
		"order_balance":       l.OrderBalance,
		"ready":               l.Ready,
		"to_produce":          l.ToProduce,
		"version":             l.Version,
		"updated_at":          l.UpdatedAt,
	}, nil
}

// JobOrderRepo implements job_order.Repository. Lines are rows of their own
// so reservation and shipment changes lock one line, not the whole order.
type JobOrderRepo struct {
	*BaseDocumentRepo[*job_order.JobOrder]
	batch *postgres.BatchWriter
}

// NewJobOrderRepo creates a new job order repository.
func NewJobOrderRepo(txm *postgres.TxManager) *JobOrderRepo {
	return &JobOrderRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			"job order",
			jobOrdersTable,
			postgres.ExtractDBColumns[job_order.JobOrder](),
			func() *job_order.JobOrder { return new(job_order.JobOrder) },
		),
		batch: postgres.NewBatchWriter(txm),
	}
}

// List retrieves job orders with filtering.
func (r *JobOrderRepo) List(ctx context.Context, filter job_order.ListFilter) (domain.ListResult[*job_order.JobOrder], error) {
	q := r.filterQuery(filter.ListFilter, nil, nil)
	if filter.SalesOrderID != nil {
		q = q.Where(squirrel.Eq{"sales_order_id": *filter.SalesOrderID})
	}
	if filter.DueBefore != nil {
		q = q.Where(squirrel.LtOrEq{"due_date": *filter.DueBefore})
	}
	return r.list(ctx, q, filter.ListFilter)
}

// ListBySalesOrder returns every job order routed from a sales order.
func (r *JobOrderRepo) ListBySalesOrder(ctx context.Context, salesOrderID id.ID) ([]*job_order.JobOrder, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"sales_order_id": salesOrderID}).
		OrderBy("date", "number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []*job_order.JobOrder
	if err := pgxscan.Select(ctx, r.querier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list job orders by sales order: %w", err)
	}
	return out, nil
}

func (r *JobOrderRepo) selectLines() squirrel.SelectBuilder {
	return r.Builder().Select(jobOrderLineColumns...).From(jobOrderLinesTable)
}

func (r *JobOrderRepo) scanLines(ctx context.Context, q squirrel.SelectBuilder) ([]job_order.Line, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*jobOrderLineRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}
	out := make([]job_order.Line, 0, len(rows))
	for _, row := range rows {
		l, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// GetLines retrieves the lines of a job order.
func (r *JobOrderRepo) GetLines(ctx context.Context, docID id.ID) ([]job_order.Line, error) {
	return r.scanLines(ctx, r.selectLines().
		Where(squirrel.Eq{"job_order_id": docID}).
		OrderBy("line_no"))
}

// InsertLines stores the lines of a new order in one batch.
func (r *JobOrderRepo) InsertLines(ctx context.Context, docID id.ID, lines []job_order.Line) error {
	statements := make([]postgres.Statement, 0, len(lines))
	for i := range lines {
		l := lines[i]
		l.JobOrderID = docID
		data, err := encodeLine(&l)
		if err != nil {
			return err
		}
		sql, args, err := r.Builder().Insert(jobOrderLinesTable).SetMap(data).ToSql()
		if err != nil {
			return fmt.Errorf("build insert line: %w", err)
		}
		statements = append(statements, postgres.Statement{SQL: sql, Args: args})
	}
	if err := r.batch.Exec(ctx, statements); err != nil {
		return fmt.Errorf("insert job order lines: %w", err)
	}
	return nil
}

func (r *JobOrderRepo) getLine(ctx context.Context, q squirrel.SelectBuilder, lineID id.ID) (*job_order.Line, error) {
	lines, err := r.scanLines(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperror.NewNotFound("job order line", lineID.String())
	}
	return &lines[0], nil
}

// GetLine loads one line.
func (r *JobOrderRepo) GetLine(ctx context.Context, lineID id.ID) (*job_order.Line, error) {
	return r.getLine(ctx, r.selectLines().Where(squirrel.Eq{"line_id": lineID}), lineID)
}

// GetLineForUpdate loads one line with a row lock.
func (r *JobOrderRepo) GetLineForUpdate(ctx context.Context, lineID id.ID) (*job_order.Line, error) {
	return r.getLine(ctx, r.selectLines().Where(squirrel.Eq{"line_id": lineID}).Suffix("FOR UPDATE"), lineID)
}

// UpdateLine persists inputs and derived fields of one line.
func (r *JobOrderRepo) UpdateLine(ctx context.Context, line *job_order.Line) error {
	data, err := encodeLine(line)
	if err != nil {
		return err
	}
	delete(data, "line_id")
	delete(data, "job_order_id")

	sql, args, err := r.Builder().
		Update(jobOrderLinesTable).
		SetMap(data).
		Where(squirrel.Eq{"line_id": line.LineID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update line: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update job order line: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("job order line", line.LineID.String())
	}
	return nil
}

// ListLineIDs returns every line id, for bulk recompute.
func (r *JobOrderRepo) ListLineIDs(ctx context.Context) ([]id.ID, error) {
	rows, err := r.querier(ctx).Query(ctx, "SELECT line_id FROM "+jobOrderLinesTable+" ORDER BY line_id")
	if err != nil {
		return nil, fmt.Errorf("list line ids: %w", err)
	}
	defer rows.Close()

	var out []id.ID
	for rows.Next() {
		var lineID id.ID
		if err := rows.Scan(&lineID); err != nil {
			return nil, fmt.Errorf("scan line id: %w", err)
		}
		out = append(out, lineID)
	}
	return out, rows.Err()
}

var _ job_order.Repository = (*JobOrderRepo)(nil)
