package query

// Node is one node of the canonical where-clause tree the parser lowers a
// request into. The SQL builder consumes this form.
type Node interface {
	node()
}

// Condition is a single field/operator/value leaf. Field is a dot-separated
// path that has already passed the safe field-path check.
type Condition struct {
	Field string
	Op    string
	Value any
}

// And combines children conjunctively.
type And struct {
	Children []Node
}

// Or combines children disjunctively.
type Or struct {
	Children []Node
}

// Not negates its child.
type Not struct {
	Child Node
}

func (Condition) node() {}
func (And) node()       {}
func (Or) node()        {}
func (Not) node()       {}

// Order is one orderBy term.
type Order struct {
	Field string
	Desc  bool
}

// Parsed is the validated, canonical form of a request.
type Parsed struct {
	Action     Action
	Collection string
	Where      Node // nil means match everything
	Select     []string
	OrderBy    []Order
	Limit      int
	Offset     int
	Distinct   string
	Data       map[string]any
	Custom     string
	Params     map[string]any
}
