package query

// Action is a query engine operation name.
type Action string

const (
	ActionFind      Action = "find"
	ActionFindOne   Action = "findOne"
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionCount     Action = "count"
	ActionAggregate Action = "aggregate"
	ActionCustom    Action = "custom"
)

// DefaultLimit is applied when a find request carries no limit; it is also the
// upper bound for an explicit limit.
const DefaultLimit = 1000

// Request is the wire envelope accepted by POST /api/query.
type Request struct {
	Action     string         `json:"action"`
	Collection string         `json:"collection"`
	Query      *Spec          `json:"query,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
	Custom     string         `json:"custom,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// Spec is the query half of the envelope.
type Spec struct {
	Where    map[string]any    `json:"where,omitempty"`
	Select   []string          `json:"select,omitempty"`
	OrderBy  map[string]string `json:"orderBy,omitempty"`
	Limit    *int              `json:"limit,omitempty"`
	Offset   *int              `json:"offset,omitempty"`
	Distinct string            `json:"distinct,omitempty"`
}

// Where-operators, drawn from closed sets; anything else is rejected.
var comparisonOps = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true,
}

var elementOps = map[string]bool{"$exists": true, "$type": true}

var arrayOps = map[string]bool{"$all": true, "$elemMatch": true, "$size": true}

var evaluationOps = map[string]bool{"$regex": true, "$mod": true}

// UpdateOps is the closed set of supported update operators.
var UpdateOps = map[string]bool{
	"$set": true, "$unset": true, "$inc": true,
	"$push": true, "$pull": true, "$addToSet": true,
}

// TypeNames maps the accepted $type names onto SQLite json_type labels. Bool
// and number need two labels each and are special-cased by the SQL builder.
var TypeNames = map[string][]string{
	"string":  {"text"},
	"int":     {"integer"},
	"integer": {"integer"},
	"double":  {"real"},
	"number":  {"integer", "real"},
	"bool":    {"true", "false"},
	"boolean": {"true", "false"},
	"object":  {"object"},
	"array":   {"array"},
	"null":    {"null"},
}

func isFieldOp(op string) bool {
	return comparisonOps[op] || elementOps[op] || arrayOps[op] || evaluationOps[op]
}
