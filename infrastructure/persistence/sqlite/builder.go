package sqlite

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"swiftbase/domain/query"
	apperrors "swiftbase/pkg/errors"
)

// The builder lowers a validated query tree into parameterized SQL. Field
// paths are embedded into JSON path literals only after the parser has checked
// them against the safe character set; every value travels as a bind argument.
//
// Two operand encodings are in play and must not be mixed up:
//   - comparisons bind the JSON-marshaled operand through json_extract(?, '$'),
//     which normalizes strings, numbers, booleans, objects and null to the
//     same representation json_extract(data, ...) yields;
//   - insertions ($set, $push, $addToSet) bind through json(?) so objects and
//     arrays land as JSON subtrees instead of quoted text.
const comparisonOperand = "json_extract(?, '$')"

type whereCompiler struct {
	args []any
}

// compileWhere lowers a where tree into a SQL fragment and its arguments.
// A nil node compiles to a tautology.
func compileWhere(node query.Node) (string, []any, error) {
	if node == nil {
		return "1=1", nil, nil
	}
	c := &whereCompiler{}
	sql, err := c.compile(node)
	if err != nil {
		return "", nil, err
	}
	return sql, c.args, nil
}

func (c *whereCompiler) compile(node query.Node) (string, error) {
	switch n := node.(type) {
	case query.Condition:
		return c.condition(n)
	case query.And:
		return c.join(n.Children, " AND ")
	case query.Or:
		return c.join(n.Children, " OR ")
	case query.Not:
		inner, err := c.compile(n.Child)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	}
	return "", apperrors.NewInternal(fmt.Sprintf("unknown query node %T", node))
}

func (c *whereCompiler) join(children []query.Node, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := c.compile(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *whereCompiler) condition(cond query.Condition) (string, error) {
	extraction := fieldExpr(cond.Field)

	switch cond.Op {
	case "$eq":
		return c.bindJSON(extraction+" IS "+comparisonOperand, cond.Value)
	case "$ne":
		return c.bindJSON(extraction+" IS NOT "+comparisonOperand, cond.Value)
	case "$gt", "$gte", "$lt", "$lte":
		op := map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[cond.Op]
		return c.bindJSON(fmt.Sprintf("%s %s %s", extraction, op, comparisonOperand), cond.Value)
	case "$in":
		return c.membership(extraction, cond.Value, false)
	case "$nin":
		return c.membership(extraction, cond.Value, true)
	case "$exists":
		return c.exists(cond.Field, cond.Value.(bool))
	case "$type":
		return c.typeCheck(cond.Field, cond.Value.(string))
	case "$size":
		return c.size(cond.Field, cond.Value)
	case "$regex":
		return c.like(extraction, cond.Value.(string))
	case "$mod":
		return c.mod(extraction, cond.Value.([]any))
	case "$all":
		return c.all(cond.Field, cond.Value.([]any))
	case "$elemMatch":
		return c.elemMatch(cond.Field, cond.Value.(map[string]any))
	}
	return "", apperrors.NewInvalidInputf("invalid query: unknown operator %q", cond.Op)
}

func (c *whereCompiler) bindJSON(sql string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", apperrors.NewInvalidInputf("invalid query: unencodable operand: %v", err)
	}
	c.args = append(c.args, string(raw))
	return sql, nil
}

func (c *whereCompiler) membership(extraction string, value any, negate bool) (string, error) {
	items := value.([]any)
	if len(items) == 0 {
		if negate {
			return "1=1", nil
		}
		return "1=0", nil
	}

	placeholders := make([]string, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return "", apperrors.NewInvalidInputf("invalid query: unencodable operand: %v", err)
		}
		placeholders = append(placeholders, comparisonOperand)
		c.args = append(c.args, string(raw))
	}
	list := strings.Join(placeholders, ", ")
	if negate {
		// A missing field is outside every exclusion list.
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", extraction, extraction, list), nil
	}
	return fmt.Sprintf("%s IN (%s)", extraction, list), nil
}

func (c *whereCompiler) exists(field string, want bool) (string, error) {
	if field == "_id" {
		if want {
			return "1=1", nil
		}
		return "1=0", nil
	}
	if want {
		return fmt.Sprintf("json_type(data, '%s') IS NOT NULL", jsonPath(field)), nil
	}
	return fmt.Sprintf("json_type(data, '%s') IS NULL", jsonPath(field)), nil
}

func (c *whereCompiler) typeCheck(field, name string) (string, error) {
	if field == "_id" {
		return "", apperrors.NewInvalidInput("invalid query: $type is not supported on _id")
	}
	labels := query.TypeNames[name]
	quoted := make([]string, 0, len(labels))
	for _, label := range labels {
		quoted = append(quoted, "'"+label+"'")
	}
	return fmt.Sprintf("json_type(data, '%s') IN (%s)", jsonPath(field), strings.Join(quoted, ", ")), nil
}

func (c *whereCompiler) size(field string, value any) (string, error) {
	if field == "_id" {
		return "", apperrors.NewInvalidInput("invalid query: $size is not supported on _id")
	}
	path := jsonPath(field)
	c.args = append(c.args, value)
	return fmt.Sprintf("(json_type(data, '%s') = 'array' AND json_array_length(data, '%s') = ?)", path, path), nil
}

func (c *whereCompiler) like(extraction, pattern string) (string, error) {
	translated, err := regexToLike(pattern)
	if err != nil {
		return "", err
	}
	c.args = append(c.args, translated)
	return extraction + ` LIKE ? ESCAPE '\'`, nil
}

func (c *whereCompiler) mod(extraction string, pair []any) (string, error) {
	divisor := toInt64(pair[0])
	if divisor == 0 {
		return "", apperrors.NewInvalidInput("invalid query: $mod divisor must not be zero")
	}
	c.args = append(c.args, divisor, toInt64(pair[1]))
	return fmt.Sprintf("(CAST(%s AS INTEGER) %% ? = ?)", extraction), nil
}

func (c *whereCompiler) all(field string, items []any) (string, error) {
	if field == "_id" {
		return "", apperrors.NewInvalidInput("invalid query: $all is not supported on _id")
	}
	path := jsonPath(field)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return "", apperrors.NewInvalidInputf("invalid query: unencodable operand: %v", err)
		}
		parts = append(parts,
			fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(data, '%s') AS je WHERE je.value IS %s)", path, comparisonOperand))
		c.args = append(c.args, string(raw))
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (c *whereCompiler) elemMatch(field string, clause map[string]any) (string, error) {
	if field == "_id" {
		return "", apperrors.NewInvalidInput("invalid query: $elemMatch is not supported on _id")
	}
	path := jsonPath(field)

	var terms []string
	for _, sub := range sortedClauseKeys(clause) {
		subExpr := fmt.Sprintf("json_extract(je.value, '%s')", jsonPath(sub))
		value := clause[sub]

		ops, isOps := value.(map[string]any)
		if !isOps || !hasDollarKey(ops) {
			term, err := c.bindJSON(subExpr+" IS "+comparisonOperand, value)
			if err != nil {
				return "", err
			}
			terms = append(terms, term)
			continue
		}
		for _, op := range sortedClauseKeys(ops) {
			var term string
			var err error
			switch op {
			case "$eq":
				term, err = c.bindJSON(subExpr+" IS "+comparisonOperand, ops[op])
			case "$ne":
				term, err = c.bindJSON(subExpr+" IS NOT "+comparisonOperand, ops[op])
			case "$gt", "$gte", "$lt", "$lte":
				cmp := map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[op]
				term, err = c.bindJSON(fmt.Sprintf("%s %s %s", subExpr, cmp, comparisonOperand), ops[op])
			default:
				return "", apperrors.NewInvalidInputf("invalid query: operator %q is not supported inside $elemMatch", op)
			}
			if err != nil {
				return "", err
			}
			terms = append(terms, term)
		}
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(data, '%s') AS je WHERE %s)",
		path, strings.Join(terms, " AND ")), nil
}

// documentColumns is the scan order every document select uses.
const documentColumns = "id, data, version, created_by, updated_by, created_at, updated_at"

// BuildSelect produces the full-row select for find and findOne.
func BuildSelect(collectionID string, p *query.Parsed) (string, []any, error) {
	where, args, err := compileWhere(p.Where)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM documents WHERE collection_id = ? AND %s", documentColumns, where)
	all := append([]any{collectionID}, args...)

	b.WriteString(orderClause(p.OrderBy))
	b.WriteString(" LIMIT ? OFFSET ?")
	all = append(all, p.Limit, p.Offset)
	return b.String(), all, nil
}

// BuildIDSelect produces the id-only select the update and delete paths use to
// pin the affected set before rewriting rows. The read-path limit and offset
// do not apply here; a filtered write targets every matching document.
func BuildIDSelect(collectionID string, p *query.Parsed) (string, []any, error) {
	where, args, err := compileWhere(p.Where)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id FROM documents WHERE collection_id = ? AND %s", where)
	all := append([]any{collectionID}, args...)

	b.WriteString(orderClause(p.OrderBy))
	return b.String(), all, nil
}

// BuildDistinct produces the distinct-values select.
func BuildDistinct(collectionID string, p *query.Parsed) (string, []any, error) {
	where, args, err := compileWhere(p.Where)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT DISTINCT %s AS value FROM documents WHERE collection_id = ? AND %s",
		fieldExpr(p.Distinct), where)
	all := append([]any{collectionID}, args...)

	b.WriteString(orderClause(p.OrderBy))
	b.WriteString(" LIMIT ? OFFSET ?")
	all = append(all, p.Limit, p.Offset)
	return b.String(), all, nil
}

// BuildCount produces the matching-row count.
func BuildCount(collectionID string, p *query.Parsed) (string, []any, error) {
	where, args, err := compileWhere(p.Where)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT COUNT(*) FROM documents WHERE collection_id = ? AND " + where
	return sql, append([]any{collectionID}, args...), nil
}

// BuildUpdate produces one operator's rewrite statement over a pinned id set.
// $pull is not lowered to SQL; the document repository rewrites those rows in
// Go inside the same write scope.
func BuildUpdate(collectionID string, ids []string, op string, fields map[string]any, updatedBy string) (string, []any, error) {
	if len(ids) == 0 {
		return "", nil, apperrors.NewInternal("update over empty id set")
	}

	var expr string
	var args []any

	switch op {
	case "$set":
		var b strings.Builder
		b.WriteString("json_set(data")
		for _, field := range sortedClauseKeys(fields) {
			raw, err := json.Marshal(fields[field])
			if err != nil {
				return "", nil, apperrors.NewInvalidInputf("invalid query: unencodable value for %q: %v", field, err)
			}
			fmt.Fprintf(&b, ", '%s', json(?)", jsonPath(field))
			args = append(args, string(raw))
		}
		b.WriteString(")")
		expr = b.String()

	case "$unset":
		var b strings.Builder
		b.WriteString("json_remove(data")
		for _, field := range sortedClauseKeys(fields) {
			fmt.Fprintf(&b, ", '%s'", jsonPath(field))
		}
		b.WriteString(")")
		expr = b.String()

	case "$inc":
		expr = "data"
		for _, field := range sortedClauseKeys(fields) {
			if !isNumeric(fields[field]) {
				return "", nil, apperrors.NewInvalidInputf("invalid query: $inc on %q requires a number", field)
			}
			path := jsonPath(field)
			expr = fmt.Sprintf("json_set(%s, '%s', coalesce(json_extract(data, '%s'), 0) + ?)", expr, path, path)
			args = append(args, fields[field])
		}

	case "$push":
		expr = "data"
		for _, field := range sortedClauseKeys(fields) {
			raw, err := json.Marshal(fields[field])
			if err != nil {
				return "", nil, apperrors.NewInvalidInputf("invalid query: unencodable value for %q: %v", field, err)
			}
			path := jsonPath(field)
			expr = fmt.Sprintf(
				"json_set(%s, '%s', json_insert(coalesce(json_extract(data, '%s'), '[]'), '$[#]', json(?)))",
				expr, path, path)
			args = append(args, string(raw))
		}

	case "$addToSet":
		expr = "data"
		for _, field := range sortedClauseKeys(fields) {
			raw, err := json.Marshal(fields[field])
			if err != nil {
				return "", nil, apperrors.NewInvalidInputf("invalid query: unencodable value for %q: %v", field, err)
			}
			path := jsonPath(field)
			arr := fmt.Sprintf("coalesce(json_extract(data, '%s'), '[]')", path)
			expr = fmt.Sprintf(
				"json_set(%s, '%s', CASE WHEN EXISTS (SELECT 1 FROM json_each(%s) AS je WHERE je.value IS %s) THEN json(%s) ELSE json_insert(%s, '$[#]', json(?)) END)",
				expr, path, arr, comparisonOperand, arr, arr)
			args = append(args, string(raw), string(raw))
		}

	default:
		return "", nil, apperrors.NewInvalidInputf("invalid query: operator %q has no SQL lowering", op)
	}

	sql := fmt.Sprintf("UPDATE documents SET data = %s, updated_by = ? WHERE collection_id = ? AND id IN (%s)",
		expr, placeholders(len(ids)))
	args = append(args, updatedBy, collectionID)
	for _, id := range ids {
		args = append(args, id)
	}
	return sql, args, nil
}

// fieldExpr maps a validated field path onto its SQL extraction. The _id
// pseudo-field addresses the id column.
func fieldExpr(field string) string {
	if field == "_id" {
		return "id"
	}
	return fmt.Sprintf("json_extract(data, '%s')", jsonPath(field))
}

func jsonPath(field string) string {
	return "$." + field
}

func orderClause(orders []query.Order) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, fieldExpr(o.Field)+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// regexToLike translates the supported anchored-literal subset of $regex
// patterns into a LIKE pattern. Literal text plus ".*", ".", "^" and "$" is
// accepted; any other metacharacter is rejected rather than silently matched
// as text.
func regexToLike(pattern string) (string, error) {
	anchoredStart := strings.HasPrefix(pattern, "^")
	anchoredEnd := strings.HasSuffix(pattern, "$") && !strings.HasSuffix(pattern, `\$`)
	body := strings.TrimPrefix(pattern, "^")
	if anchoredEnd {
		body = strings.TrimSuffix(body, "$")
	}

	var b strings.Builder
	if !anchoredStart {
		b.WriteString("%")
	}
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '.':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString("%")
				i++
			} else {
				b.WriteString("_")
			}
		case '%', '_', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '*', '+', '?', '[', ']', '(', ')', '{', '}', '|', '^', '$':
			return "", apperrors.NewInvalidInputf("invalid query: unsupported $regex construct %q", string(r))
		default:
			b.WriteRune(r)
		}
	}
	if !anchoredEnd {
		b.WriteString("%")
	}
	return b.String(), nil
}

func hasDollarKey(m map[string]any) bool {
	for key := range m {
		if len(key) > 0 && key[0] == '$' {
			return true
		}
	}
	return false
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func sortedClauseKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
