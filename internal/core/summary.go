package core

// Totals are the two aggregates shown under a sheet.
type Totals struct {
	Total     float64 `json:"total"`
	TotalCost float64 `json:"total_cost"`
}

// Aggregate folds rows into their price and cost sums.
func Aggregate(rows []Row) Totals {
	var t Totals
	for _, r := range rows {
		t.Total += r.Price
		t.TotalCost += r.Cost
	}
	return t
}

// View is a snapshot of a sheet together with its totals.
type View struct {
	Rows   []Row  `json:"rows"`
	Totals Totals `json:"totals"`
}

// NewView pairs rows with their freshly computed totals.
func NewView(rows []Row) View {
	return View{Rows: rows, Totals: Aggregate(rows)}
}
