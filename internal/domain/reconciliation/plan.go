package reconciliation

import (
	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/documents/job_order"
)

// state is the part of a line that decides where its stock sits.
type state struct {
	Reserved types.Quantity
	Shipped  types.Quantity
}

func (s state) held() types.Quantity {
	return types.MaxQuantity(s.Reserved-s.Shipped, 0)
}

func (s state) covered() types.Quantity {
	return types.MinQuantity(s.Shipped, s.Reserved)
}

func (s state) excess() types.Quantity {
	return types.MaxQuantity(s.Shipped-s.Reserved, 0)
}

// planner turns a change of (reserved, shipped) into ledger entries.
//
// Stock a line holds lives in RESERVED. Raising the reservation draws main
// stock into RESERVED in allocation order; lowering it credits the
// difference back in reverse order to the locations it came from. Shipping
// within the reservation is a sale_out from RESERVED; shipping beyond it
// (override only) is a sale_out straight from the main locations. Sources
// tracks the main stock drawn per location, so that
// sum(Sources) == max(reserved, shipped) after every step.
type planner struct {
	line     *job_order.Line
	order    []entity.Location
	balances map[entity.Location]types.Quantity
	ref      entity.DocumentRef
	entries  []entity.LedgerEntry
}

func newPlanner(line *job_order.Line, order []entity.Location, balances map[entity.Location]types.Quantity, ref entity.DocumentRef) *planner {
	projected := make(map[entity.Location]types.Quantity, len(balances))
	for loc, q := range balances {
		projected[loc] = q
	}
	if line.Sources == nil {
		line.Sources = make(map[entity.Location]types.Quantity)
	}
	return &planner{line: line, order: order, balances: projected, ref: ref}
}

func (p *planner) emit(loc entity.Location, delta types.Quantity, kind entity.MovementKind) {
	if delta.IsZero() {
		return
	}
	p.balances[loc] += delta
	p.entries = append(p.entries, entity.NewLedgerEntry(p.line.ProductID, loc, delta, kind, p.ref))
}

// apply plans the move from before to after: reservation first at the old
// shipped quantity, then shipping at the new reservation.
func (p *planner) apply(before, after state) error {
	mid := state{Reserved: after.Reserved, Shipped: before.Shipped}
	if err := p.reserve(mid.held() - before.held()); err != nil {
		return err
	}
	return p.ship(mid, after)
}

// reserve moves delta between the main locations and RESERVED.
func (p *planner) reserve(delta types.Quantity) error {
	switch {
	case delta.IsPositive():
		drawn, err := p.draw(delta)
		if err != nil {
			return err
		}
		for _, d := range drawn {
			p.emit(d.loc, d.qty.Neg(), entity.MovementTransfer)
			p.emit(entity.LocationReserved, d.qty, entity.MovementTransfer)
		}
	case delta.IsNegative():
		for _, d := range p.credit(delta.Neg()) {
			p.emit(entity.LocationReserved, d.qty.Neg(), entity.MovementTransfer)
			p.emit(d.loc, d.qty, entity.MovementTransfer)
		}
	}
	return nil
}

// ship books the shipped change. The covered part moves through RESERVED,
// the excess through the main locations.
func (p *planner) ship(before, after state) error {
	p.emit(entity.LocationReserved, (after.covered() - before.covered()).Neg(), entity.MovementSaleOut)

	switch dx := after.excess() - before.excess(); {
	case dx.IsPositive():
		drawn, err := p.draw(dx)
		if err != nil {
			return err
		}
		for _, d := range drawn {
			p.emit(d.loc, d.qty.Neg(), entity.MovementSaleOut)
		}
	case dx.IsNegative():
		for _, d := range p.credit(dx.Neg()) {
			p.emit(d.loc, d.qty, entity.MovementSaleOut)
		}
	}
	return nil
}

type portion struct {
	loc entity.Location
	qty types.Quantity
}

// draw takes amount from the main locations in allocation order. It fails
// with INSUFFICIENT_STOCK when their combined free balance is short.
func (p *planner) draw(amount types.Quantity) ([]portion, error) {
	var available types.Quantity
	for _, loc := range p.order {
		available += types.MaxQuantity(p.balances[loc], 0)
	}
	if available < amount {
		return nil, apperror.NewInsufficientStock(p.line.ProductID.String(), amount.String(), available.String()).
			WithDetail("lineId", p.line.LineID.String())
	}

	var out []portion
	remaining := amount
	for _, loc := range p.order {
		if remaining.IsZero() {
			break
		}
		take := types.MinQuantity(types.MaxQuantity(p.balances[loc], 0), remaining)
		if take.IsZero() {
			continue
		}
		out = append(out, portion{loc: loc, qty: take})
		p.line.Sources[loc] += take
		remaining -= take
	}
	return out, nil
}

// credit returns amount to the main locations in reverse allocation order,
// limited by what each location supplied. Anything Sources cannot place
// goes to the first location in the order.
func (p *planner) credit(amount types.Quantity) []portion {
	var out []portion
	remaining := amount
	for i := len(p.order) - 1; i >= 0 && remaining.IsPositive(); i-- {
		loc := p.order[i]
		give := types.MinQuantity(p.line.Sources[loc], remaining)
		if !give.IsPositive() {
			continue
		}
		out = append(out, portion{loc: loc, qty: give})
		p.line.Sources[loc] -= give
		if p.line.Sources[loc].IsZero() {
			delete(p.line.Sources, loc)
		}
		remaining -= give
	}
	if remaining.IsPositive() && len(p.order) > 0 {
		out = append(out, portion{loc: p.order[0], qty: remaining})
	}
	return out
}
