package query

import (
	"regexp"
	"sort"

	"swiftbase/domain/entities"
	apperrors "swiftbase/pkg/errors"
)

// fieldPathPattern is the safe field-path character set: alphanumerics,
// underscore, hyphen, with dots for nesting. It is the primary defense against
// injection through identifiers; every field name referenced by a request must
// match it before the SQL builder may embed it in a JSON path.
var fieldPathPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)*$`)

// ValidateFieldPath rejects field paths outside the safe character set.
func ValidateFieldPath(path string) error {
	if !fieldPathPattern.MatchString(path) {
		return apperrors.NewInvalidInputf("invalid query: unsafe field path %q", path)
	}
	return nil
}

// Parse validates a request envelope and lowers it into the canonical form.
// Any rule violation fails with an invalid-input error naming the offense.
func Parse(req *Request) (*Parsed, error) {
	action := Action(req.Action)
	switch action {
	case ActionFind, ActionFindOne, ActionCreate, ActionUpdate,
		ActionDelete, ActionCount, ActionAggregate, ActionCustom:
	case "":
		return nil, apperrors.NewInvalidInput("invalid query: action is required")
	default:
		return nil, apperrors.NewInvalidInputf("invalid query: unknown action %q", req.Action)
	}

	if action == ActionCustom {
		if req.Custom == "" {
			return nil, apperrors.NewInvalidInput("invalid query: custom requires a query name")
		}
		return &Parsed{Action: action, Custom: req.Custom, Params: req.Params}, nil
	}

	if err := entities.ValidateCollectionName(req.Collection); err != nil {
		return nil, err
	}

	parsed := &Parsed{
		Action:     action,
		Collection: req.Collection,
		Limit:      DefaultLimit,
		Data:       req.Data,
	}

	if action == ActionCreate || action == ActionUpdate {
		if len(req.Data) == 0 {
			return nil, apperrors.NewInvalidInputf("invalid query: %s requires data", action)
		}
	}

	if req.Query == nil {
		return parsed, nil
	}
	spec := req.Query

	if spec.Limit != nil {
		if *spec.Limit < 1 || *spec.Limit > DefaultLimit {
			return nil, apperrors.NewInvalidInputf("invalid query: limit must be in [1, %d]", DefaultLimit)
		}
		parsed.Limit = *spec.Limit
	}
	if spec.Offset != nil {
		if *spec.Offset < 0 {
			return nil, apperrors.NewInvalidInput("invalid query: offset must not be negative")
		}
		parsed.Offset = *spec.Offset
	}

	for _, field := range spec.Select {
		if err := ValidateFieldPath(field); err != nil {
			return nil, err
		}
	}
	parsed.Select = spec.Select

	for _, field := range sortedKeys(spec.OrderBy) {
		if err := ValidateFieldPath(field); err != nil {
			return nil, err
		}
		switch spec.OrderBy[field] {
		case "asc":
			parsed.OrderBy = append(parsed.OrderBy, Order{Field: field})
		case "desc":
			parsed.OrderBy = append(parsed.OrderBy, Order{Field: field, Desc: true})
		default:
			return nil, apperrors.NewInvalidInputf("invalid query: orderBy direction for %q must be asc or desc", field)
		}
	}

	if spec.Distinct != "" {
		if err := ValidateFieldPath(spec.Distinct); err != nil {
			return nil, err
		}
		parsed.Distinct = spec.Distinct
	}

	if len(spec.Where) > 0 {
		where, err := parseWhere(spec.Where)
		if err != nil {
			return nil, err
		}
		parsed.Where = where
	}

	return parsed, nil
}

// parseWhere lowers a where object into the condition tree. Keys are visited
// in sorted order so the lowering is deterministic.
func parseWhere(where map[string]any) (Node, error) {
	var children []Node

	for _, key := range sortedKeys(where) {
		value := where[key]
		switch key {
		case "$and", "$or":
			items, ok := value.([]any)
			if !ok || len(items) == 0 {
				return nil, apperrors.NewInvalidInputf("invalid query: %s requires a non-empty array", key)
			}
			var sub []Node
			for _, item := range items {
				clause, ok := item.(map[string]any)
				if !ok {
					return nil, apperrors.NewInvalidInputf("invalid query: %s items must be objects", key)
				}
				node, err := parseWhere(clause)
				if err != nil {
					return nil, err
				}
				sub = append(sub, node)
			}
			if key == "$and" {
				children = append(children, And{Children: sub})
			} else {
				children = append(children, Or{Children: sub})
			}

		case "$not":
			clause, ok := value.(map[string]any)
			if !ok {
				return nil, apperrors.NewInvalidInput("invalid query: $not requires an object")
			}
			node, err := parseWhere(clause)
			if err != nil {
				return nil, err
			}
			children = append(children, Not{Child: node})

		default:
			node, err := parseFieldClause(key, value)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func parseFieldClause(field string, value any) (Node, error) {
	if err := ValidateFieldPath(field); err != nil {
		return nil, err
	}

	operators, ok := value.(map[string]any)
	if !ok || !hasOperatorKey(operators) {
		// A bare value (including a plain object) means equality.
		return Condition{Field: field, Op: "$eq", Value: value}, nil
	}

	var conditions []Node
	for _, op := range sortedKeys(operators) {
		opValue := operators[op]
		if !isFieldOp(op) {
			return nil, apperrors.NewInvalidInputf("invalid query: unknown operator %q", op)
		}
		if err := validateOperand(field, op, opValue); err != nil {
			return nil, err
		}
		conditions = append(conditions, Condition{Field: field, Op: op, Value: opValue})
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return And{Children: conditions}, nil
}

func validateOperand(field, op string, value any) error {
	switch op {
	case "$in", "$nin":
		if _, ok := value.([]any); !ok {
			return apperrors.NewInvalidInputf("invalid query: %s on %q requires an array", op, field)
		}
	case "$all":
		items, ok := value.([]any)
		if !ok || len(items) == 0 {
			return apperrors.NewInvalidInputf("invalid query: $all on %q requires a non-empty array", field)
		}
	case "$exists":
		if _, ok := value.(bool); !ok {
			return apperrors.NewInvalidInputf("invalid query: $exists on %q requires a boolean", field)
		}
	case "$type":
		name, ok := value.(string)
		if !ok {
			return apperrors.NewInvalidInputf("invalid query: $type on %q requires a type name", field)
		}
		if _, known := TypeNames[name]; !known {
			return apperrors.NewInvalidInputf("invalid query: unrecognized type name %q", name)
		}
	case "$size":
		if !isNumber(value) {
			return apperrors.NewInvalidInputf("invalid query: $size on %q requires a number", field)
		}
	case "$regex":
		if _, ok := value.(string); !ok {
			return apperrors.NewInvalidInputf("invalid query: $regex on %q requires a string", field)
		}
	case "$mod":
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 || !isNumber(pair[0]) || !isNumber(pair[1]) {
			return apperrors.NewInvalidInputf("invalid query: $mod on %q requires [divisor, remainder]", field)
		}
	case "$elemMatch":
		clause, ok := value.(map[string]any)
		if !ok || len(clause) == 0 {
			return apperrors.NewInvalidInputf("invalid query: $elemMatch on %q requires an object", field)
		}
		for _, sub := range sortedKeys(clause) {
			if err := ValidateFieldPath(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// NormalizeUpdate turns the data object of an update request into a map of
// update operator to field/value pairs. A data object without any top-level
// operator is interpreted as $set of all its keys. Operator and field names
// are validated against the closed sets.
func NormalizeUpdate(data map[string]any) (map[string]map[string]any, error) {
	if len(data) == 0 {
		return nil, apperrors.NewInvalidInput("invalid query: update requires data")
	}

	if !hasOperatorKey(data) {
		fields := make(map[string]any, len(data))
		for field, value := range data {
			if err := ValidateFieldPath(field); err != nil {
				return nil, err
			}
			fields[field] = value
		}
		return map[string]map[string]any{"$set": fields}, nil
	}

	out := make(map[string]map[string]any, len(data))
	for _, op := range sortedKeys(data) {
		if !UpdateOps[op] {
			return nil, apperrors.NewInvalidInputf("invalid query: unknown update operator %q", op)
		}
		fields, ok := data[op].(map[string]any)
		if !ok || len(fields) == 0 {
			return nil, apperrors.NewInvalidInputf("invalid query: %s requires an object of fields", op)
		}
		for field := range fields {
			if err := ValidateFieldPath(field); err != nil {
				return nil, err
			}
		}
		out[op] = fields
	}
	return out, nil
}

func hasOperatorKey(m map[string]any) bool {
	for key := range m {
		if len(key) > 0 && key[0] == '$' {
			return true
		}
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
