package param

// Table is the fixed-size parameter set of a module.
type Table struct {
	params []*Parameter
}

// NewTable builds a table in display order.
func NewTable(params ...*Parameter) *Table {
	return &Table{params: params}
}

// Len returns the number of parameters.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.params)
}

// At returns the parameter at i, or nil when i is out of range.
func (t *Table) At(i int) *Parameter {
	if t == nil || i < 0 || i >= len(t.params) {
		return nil
	}
	return t.params[i]
}

// Lookup finds a parameter by name.
func (t *Table) Lookup(name string) (int, *Parameter) {
	if t == nil {
		return -1, nil
	}
	for i, p := range t.params {
		if p.Name == name {
			return i, p
		}
	}
	return -1, nil
}

// Value returns the value at i, or 0 when i is out of range.
func (t *Table) Value(i int) float64 {
	p := t.At(i)
	if p == nil {
		return 0
	}
	return p.Value()
}

// Normalized returns the normalized value at i, or 0 when i is out of range.
func (t *Table) Normalized(i int) float64 {
	p := t.At(i)
	if p == nil {
		return 0
	}
	return p.Normalized()
}

// View is a read-only copy of one parameter for renderers.
type View struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Value      float64   `json:"value"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Normalized float64   `json:"normalized"`
	Display    string    `json:"display"`
	CV         CVMapping `json:"cv"`
}

// Snapshot copies every parameter into views.
func (t *Table) Snapshot() []View {
	if t == nil {
		return nil
	}
	out := make([]View, 0, len(t.params))
	for i, p := range t.params {
		out = append(out, View{
			Index:      i,
			Name:       p.Name,
			Kind:       p.Kind,
			Value:      p.Value(),
			Min:        p.Min,
			Max:        p.Max,
			Normalized: p.Normalized(),
			Display:    p.Format(),
			CV:         p.CV,
		})
	}
	return out
}
