// Package tariff holds the operator's tariff plan catalog.
package tariff

// DefaultID is the plan assigned to new subscribers and used as a fallback
// for unknown plan ids.
const DefaultID = "standard"

// Info is the short tariff description embedded in user-facing payloads.
type Info struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Plan is a full catalog entry.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// Info returns the short description of p.
func (p Plan) Info() Info {
	return Info{ID: p.ID, Name: p.Name, Price: p.Price}
}

var catalog = []Plan{
	{
		ID:          "standard",
		Name:        "Standard",
		Price:       19.99,
		Description: "5 GB internet, 200 minutes, 50 SMS",
		Features:    []string{"5 GB internet", "200 minutes", "50 SMS", "On-net calls"},
	},
	{
		ID:          "premium",
		Name:        "Premium",
		Price:       49.99,
		Description: "20 GB internet, 1000 minutes, 200 SMS",
		Features:    []string{"20 GB internet", "1000 minutes", "200 SMS", "Unlimited calls", "Mobile TV"},
	},
	{
		ID:          "economy",
		Name:        "Economy",
		Price:       9.99,
		Description: "2 GB internet, 100 minutes, 20 SMS",
		Features:    []string{"2 GB internet", "100 minutes", "20 SMS", "On-net calls"},
	},
}

// Plans returns a copy of the catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	for i, p := range catalog {
		p.Features = append([]string(nil), p.Features...)
		out[i] = p
	}
	return out
}

// Valid reports whether id names a catalog plan.
func Valid(id string) bool {
	_, ok := find(id)
	return ok
}

// Lookup returns the short info for id, falling back to the default plan.
func Lookup(id string) Info {
	if p, ok := find(id); ok {
		return p.Info()
	}
	p, _ := find(DefaultID)
	return p.Info()
}

func find(id string) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
