package order

import (
	"sort"

	"github.com/google/uuid"
)

// DuplicateGroup is a set of active orders sharing one Zinc order id
type DuplicateGroup struct {
	ZincOrderID string
	Kept        *Order
	Extras      []*Order
}

// GroupDuplicates groups active orders by Zinc order id and keeps the earliest of each group.
// Cancelled orders and orders without a Zinc order id are ignored, so re-running after
// the extras were cancelled yields no groups. Groups are ordered by Zinc order id.
func GroupDuplicates(orders []*Order) []DuplicateGroup {
	byZinc := make(map[string][]*Order)
	for _, o := range orders {
		if o == nil || o.ZincOrderID == "" || o.IsCancelled() {
			continue
		}
		byZinc[o.ZincOrderID] = append(byZinc[o.ZincOrderID], o)
	}

	groups := make([]DuplicateGroup, 0)
	for zincID, members := range byZinc {
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			a, b := members[i], members[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID.String() < b.ID.String()
		})
		groups = append(groups, DuplicateGroup{
			ZincOrderID: zincID,
			Kept:        members[0],
			Extras:      members[1:],
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ZincOrderID < groups[j].ZincOrderID
	})
	return groups
}

// ExtraCount returns the total number of orders that would be cancelled
func ExtraCount(groups []DuplicateGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Extras)
	}
	return n
}

// Cancellation pairs a duplicate with the order it is cancelled in favour of.
// Repositories apply it with Order.CancelAsDuplicateOf.
type Cancellation struct {
	OrderID     uuid.UUID
	KeptOrderID uuid.UUID
}
