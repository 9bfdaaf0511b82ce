package model

// Plan kinds
const (
	PlanSingle = "single"
	PlanMulti  = "multi"
)

// Unit roles
const (
	RoleRoot   = "root"
	RoleFact   = "fact"
	RoleSource = "source"
)

// PostUnit is one publishable item: the root post or one reply.
type PostUnit struct {
	Index    int    `json:"index"`
	Role     string `json:"role"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// ThreadPlan is the ordered sequence of post units to publish.
// Unit 0 is the root; the last unit is the source attribution.
type ThreadPlan struct {
	Kind  string     `json:"kind"`
	Units []PostUnit `json:"units"`

	// Truncated lists the indices of units cut to fit the platform limit.
	Truncated []int `json:"truncated,omitempty"`
}

// Root returns unit 0.
func (p ThreadPlan) Root() PostUnit {
	return p.Units[0]
}

// Replies returns every unit after the root.
func (p ThreadPlan) Replies() []PostUnit {
	if len(p.Units) == 0 {
		return nil
	}
	return p.Units[1:]
}

// FactUnits returns the numbered fact replies in order.
func (p ThreadPlan) FactUnits() []PostUnit {
	var out []PostUnit
	for _, u := range p.Units {
		if u.Role == RoleFact {
			out = append(out, u)
		}
	}
	return out
}
