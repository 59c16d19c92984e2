package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/domain"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/domain/documents/quotation"
	"orderflow/internal/domain/documents/sales_order"
)

func cloneSlice[T any](in []T) []T {
	return append([]T(nil), in...)
}

// matchDocument applies the common document filters.
func matchDocument(doc *entity.Document, status string, filter domain.ListFilter, from, to *time.Time) bool {
	if doc.DeletionMark && !filter.IncludeDeleted {
		return false
	}
	if filter.Status != "" && filter.Status != status {
		return false
	}
	if len(filter.IDs) > 0 && !idSet(filter.IDs)[doc.ID] {
		return false
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(doc.Number), strings.ToLower(filter.Search)) {
		return false
	}
	if from != nil && doc.Date.Before(*from) {
		return false
	}
	if to != nil && doc.Date.After(*to) {
		return false
	}
	return true
}

// sortDocuments orders by date or number; newest first by default.
func sortDocuments[T any](items []T, doc func(T) *entity.Document, orderBy string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := doc(items[i]), doc(items[j])
		switch orderBy {
		case "number":
			return a.Number < b.Number
		case "-number":
			return a.Number > b.Number
		case "date":
			return a.Date.Before(b.Date)
		default:
			return a.Date.After(b.Date)
		}
	})
}

// --- Quotations ---

// QuotationRepo stores quotations.
type QuotationRepo struct {
	headers *table[*quotation.Quotation]
	lines   *table[[]quotation.Line]
}

// NewQuotationRepo creates an empty store.
func NewQuotationRepo() *QuotationRepo {
	return &QuotationRepo{
		headers: newTable("quotation", func(q *quotation.Quotation) *quotation.Quotation {
			c := *q
			c.Lines = nil
			return &c
		}),
		lines: newTable("quotation lines", cloneSlice[quotation.Line]),
	}
}

func (r *QuotationRepo) Create(ctx context.Context, doc *quotation.Quotation) error {
	return r.headers.insert(ctx, doc.ID, doc, nil)
}

func (r *QuotationRepo) GetByID(ctx context.Context, docID id.ID) (*quotation.Quotation, error) {
	return r.headers.get(docID)
}

func (r *QuotationRepo) GetForUpdate(ctx context.Context, docID id.ID) (*quotation.Quotation, error) {
	return r.headers.getForUpdate(ctx, docID)
}

func (r *QuotationRepo) Update(ctx context.Context, doc *quotation.Quotation) error {
	return r.headers.put(ctx, doc.ID, doc)
}

func (r *QuotationRepo) Delete(ctx context.Context, docID id.ID) error {
	if err := r.headers.remove(ctx, docID); err != nil {
		return err
	}
	if _, err := r.lines.get(docID); err == nil {
		return r.lines.remove(ctx, docID)
	}
	return nil
}

func (r *QuotationRepo) GetLines(ctx context.Context, docID id.ID) ([]quotation.Line, error) {
	lines, err := r.lines.get(docID)
	if apperror.IsNotFound(err) {
		return []quotation.Line{}, nil
	}
	return lines, err
}

func (r *QuotationRepo) SaveLines(ctx context.Context, docID id.ID, lines []quotation.Line) error {
	r.lines.upsert(ctx, docID, lines)
	return nil
}

func (r *QuotationRepo) List(ctx context.Context, filter quotation.ListFilter) (domain.ListResult[*quotation.Quotation], error) {
	items := r.headers.scan(func(q *quotation.Quotation) bool {
		if filter.CustomerRef != "" && q.CustomerRef != filter.CustomerRef {
			return false
		}
		return matchDocument(&q.Document, string(q.Status), filter.ListFilter, filter.DateFrom, filter.DateTo)
	})
	sortDocuments(items, func(q *quotation.Quotation) *entity.Document { return &q.Document }, filter.OrderBy)
	return domain.Page(items, filter.ListFilter), nil
}

var _ quotation.Repository = (*QuotationRepo)(nil)

// --- Sales orders ---

// SalesOrderRepo stores sales orders. The source quotation id is unique.
type SalesOrderRepo struct {
	headers *table[*sales_order.SalesOrder]
	lines   *table[[]sales_order.Line]
}

// NewSalesOrderRepo creates an empty store.
func NewSalesOrderRepo() *SalesOrderRepo {
	return &SalesOrderRepo{
		headers: newTable("sales order", func(o *sales_order.SalesOrder) *sales_order.SalesOrder {
			c := *o
			c.Lines = nil
			return &c
		}),
		lines: newTable("sales order lines", cloneSlice[sales_order.Line]),
	}
}

// Create checks the source quotation uniqueness atomically with the insert.
func (r *SalesOrderRepo) Create(ctx context.Context, doc *sales_order.SalesOrder) error {
	return r.headers.insert(ctx, doc.ID, doc, func(existing []*sales_order.SalesOrder) error {
		if doc.SourceQuotationID == nil {
			return nil
		}
		for _, e := range existing {
			if e.SourceQuotationID != nil && *e.SourceQuotationID == *doc.SourceQuotationID {
				return apperror.NewAlreadyConverted(doc.SourceQuotationID.String(), e.ID.String())
			}
		}
		return nil
	})
}

func (r *SalesOrderRepo) GetByID(ctx context.Context, docID id.ID) (*sales_order.SalesOrder, error) {
	return r.headers.get(docID)
}

func (r *SalesOrderRepo) GetBySourceQuotation(ctx context.Context, quotationID id.ID) (*sales_order.SalesOrder, error) {
	found := r.headers.scan(func(o *sales_order.SalesOrder) bool {
		return o.SourceQuotationID != nil && *o.SourceQuotationID == quotationID
	})
	if len(found) == 0 {
		return nil, apperror.NewNotFound("sales order", quotationID.String()).
			WithDetail("sourceQuotationId", quotationID.String())
	}
	return found[0], nil
}

func (r *SalesOrderRepo) GetForUpdate(ctx context.Context, docID id.ID) (*sales_order.SalesOrder, error) {
	return r.headers.getForUpdate(ctx, docID)
}

func (r *SalesOrderRepo) Update(ctx context.Context, doc *sales_order.SalesOrder) error {
	return r.headers.put(ctx, doc.ID, doc)
}

func (r *SalesOrderRepo) GetLines(ctx context.Context, docID id.ID) ([]sales_order.Line, error) {
	lines, err := r.lines.get(docID)
	if apperror.IsNotFound(err) {
		return []sales_order.Line{}, nil
	}
	return lines, err
}

func (r *SalesOrderRepo) SaveLines(ctx context.Context, docID id.ID, lines []sales_order.Line) error {
	r.lines.upsert(ctx, docID, lines)
	return nil
}

func (r *SalesOrderRepo) List(ctx context.Context, filter sales_order.ListFilter) (domain.ListResult[*sales_order.SalesOrder], error) {
	items := r.headers.scan(func(o *sales_order.SalesOrder) bool {
		if filter.CustomerRef != "" && o.CustomerRef != filter.CustomerRef {
			return false
		}
		return matchDocument(&o.Document, string(o.Status), filter.ListFilter, filter.DateFrom, filter.DateTo)
	})
	sortDocuments(items, func(o *sales_order.SalesOrder) *entity.Document { return &o.Document }, filter.OrderBy)
	return domain.Page(items, filter.ListFilter), nil
}

var _ sales_order.Repository = (*SalesOrderRepo)(nil)

// --- Job orders ---

// JobOrderRepo stores job orders; lines are individually lockable rows.
type JobOrderRepo struct {
	headers *table[*job_order.JobOrder]
	lines   *table[*job_order.Line]
}

// NewJobOrderRepo creates an empty store.
func NewJobOrderRepo() *JobOrderRepo {
	return &JobOrderRepo{
		headers: newTable("job order", func(j *job_order.JobOrder) *job_order.JobOrder {
			c := *j
			c.Lines = nil
			return &c
		}),
		lines: newTable("job order line", func(l *job_order.Line) *job_order.Line {
			c := l.Clone()
			return &c
		}),
	}
}

func (r *JobOrderRepo) Create(ctx context.Context, doc *job_order.JobOrder) error {
	return r.headers.insert(ctx, doc.ID, doc, nil)
}

func (r *JobOrderRepo) GetByID(ctx context.Context, docID id.ID) (*job_order.JobOrder, error) {
	return r.headers.get(docID)
}

func (r *JobOrderRepo) GetForUpdate(ctx context.Context, docID id.ID) (*job_order.JobOrder, error) {
	return r.headers.getForUpdate(ctx, docID)
}

func (r *JobOrderRepo) Update(ctx context.Context, doc *job_order.JobOrder) error {
	return r.headers.put(ctx, doc.ID, doc)
}

func (r *JobOrderRepo) Delete(ctx context.Context, docID id.ID) error {
	lines, err := r.GetLines(ctx, docID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := r.lines.remove(ctx, l.LineID); err != nil {
			return err
		}
	}
	return r.headers.remove(ctx, docID)
}

func (r *JobOrderRepo) List(ctx context.Context, filter job_order.ListFilter) (domain.ListResult[*job_order.JobOrder], error) {
	items := r.headers.scan(func(j *job_order.JobOrder) bool {
		if filter.SalesOrderID != nil && j.SalesOrderID != *filter.SalesOrderID {
			return false
		}
		if filter.DueBefore != nil && (j.DueDate == nil || j.DueDate.After(*filter.DueBefore)) {
			return false
		}
		return matchDocument(&j.Document, string(j.Status), filter.ListFilter, nil, nil)
	})
	sortDocuments(items, func(j *job_order.JobOrder) *entity.Document { return &j.Document }, filter.OrderBy)
	return domain.Page(items, filter.ListFilter), nil
}

func (r *JobOrderRepo) ListBySalesOrder(ctx context.Context, salesOrderID id.ID) ([]*job_order.JobOrder, error) {
	return r.headers.scan(func(j *job_order.JobOrder) bool { return j.SalesOrderID == salesOrderID }), nil
}

func (r *JobOrderRepo) GetLines(ctx context.Context, docID id.ID) ([]job_order.Line, error) {
	found := r.lines.scan(func(l *job_order.Line) bool { return l.JobOrderID == docID })
	out := make([]job_order.Line, 0, len(found))
	for _, l := range found {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

func (r *JobOrderRepo) InsertLines(ctx context.Context, docID id.ID, lines []job_order.Line) error {
	for i := range lines {
		l := lines[i]
		l.JobOrderID = docID
		if err := r.lines.insert(ctx, l.LineID, &l, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *JobOrderRepo) GetLine(ctx context.Context, lineID id.ID) (*job_order.Line, error) {
	return r.lines.get(lineID)
}

func (r *JobOrderRepo) GetLineForUpdate(ctx context.Context, lineID id.ID) (*job_order.Line, error) {
	return r.lines.getForUpdate(ctx, lineID)
}

func (r *JobOrderRepo) UpdateLine(ctx context.Context, line *job_order.Line) error {
	return r.lines.put(ctx, line.LineID, line)
}

func (r *JobOrderRepo) ListLineIDs(ctx context.Context) ([]id.ID, error) {
	lines := r.lines.scan(nil)
	out := make([]id.ID, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.LineID)
	}
	return out, nil
}

var _ job_order.Repository = (*JobOrderRepo)(nil)
