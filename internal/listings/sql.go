package listings

import (
	"strings"

	"github.com/example/propenrich/internal/ports/secondary"
)

// Quoted holds a table's identifiers ready for interpolation into SQL.
type Quoted struct {
	Table   string
	ID      string
	Address string
	Owners  []string
}

// Quote quotes every identifier of t, failing on the first unsafe one.
func Quote(t secondary.ListingTable) (*Quoted, error) {
	q := &Quoted{}
	var err error
	if q.Table, err = QuoteIdent(t.Name); err != nil {
		return nil, err
	}
	if q.ID, err = QuoteIdent(t.IDColumn); err != nil {
		return nil, err
	}
	if q.Address, err = QuoteIdent(t.AddressColumn); err != nil {
		return nil, err
	}
	for _, c := range t.OwnerColumns {
		quoted, err := QuoteIdent(c)
		if err != nil {
			return nil, err
		}
		q.Owners = append(q.Owners, quoted)
	}
	return q, nil
}

// SelectList is the column list every listing read uses: id, address,
// address_hash, then the owner columns in registry order.
func (q *Quoted) SelectList() string {
	cols := []string{q.ID, q.Address, "address_hash"}
	cols = append(cols, q.Owners...)
	return strings.Join(cols, ", ")
}
