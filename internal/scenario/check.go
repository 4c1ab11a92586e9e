package scenario

import (
	"encoding/json"
	"fmt"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/surge/internal/transport"
)

// CheckSpec defines a response assertion.
//
// Types: "status", "header", "body", "duration", "json", "schema".
// Conditions: "eq", "ne", "gt", "lt", "gte", "lte", "contains", "matches",
// "exists". Path is the header name for "header" and a gjson path
// (or $.a.b JSONPath) for "json". For "schema" Value holds the JSON schema
// and Condition is ignored.
type CheckSpec struct {
	Name      string
	Type      string
	Condition string
	Value     string
	Path      string
}

var checkConditions = map[string]bool{
	"eq": true, "ne": true, "gt": true, "lt": true, "gte": true, "lte": true,
	"contains": true, "matches": true, "exists": true,
}

type check struct {
	name      string
	typ       string
	condition string
	value     string
	path      string

	re       *regexp.Regexp
	schema   *jsonschema.Schema
	duration time.Duration
}

func compileCheck(spec CheckSpec) (*check, error) {
	c := &check{
		name:      spec.Name,
		typ:       strings.ToLower(spec.Type),
		condition: strings.ToLower(spec.Condition),
		value:     spec.Value,
		path:      spec.Path,
	}
	if c.condition == "" {
		c.condition = "eq"
	}

	switch c.typ {
	case "status", "body":
	case "header", "json":
		if c.path == "" {
			return nil, fmt.Errorf("check %q: path is required for %s checks", spec.Name, c.typ)
		}
	case "duration":
		d, err := time.ParseDuration(c.value)
		if err != nil {
			return nil, fmt.Errorf("check %q: invalid duration %q: %w", spec.Name, c.value, err)
		}
		c.duration = d
	case "schema":
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", strings.NewReader(c.value)); err != nil {
			return nil, fmt.Errorf("check %q: invalid schema: %w", spec.Name, err)
		}
		schema, err := compiler.Compile("schema.json")
		if err != nil {
			return nil, fmt.Errorf("check %q: invalid schema: %w", spec.Name, err)
		}
		c.schema = schema
	default:
		return nil, fmt.Errorf("check %q: unknown check type %q", spec.Name, spec.Type)
	}

	if !checkConditions[c.condition] {
		return nil, fmt.Errorf("check %q: unknown condition %q", spec.Name, spec.Condition)
	}
	if c.condition == "matches" {
		re, err := regexp.Compile(c.value)
		if err != nil {
			return nil, fmt.Errorf("check %q: invalid pattern: %w", spec.Name, err)
		}
		c.re = re
	}

	if c.name == "" {
		c.name = c.defaultName()
	}
	return c, nil
}

func (c *check) defaultName() string {
	switch c.typ {
	case "schema":
		return "body matches schema"
	case "header", "json":
		if c.condition == "exists" {
			return fmt.Sprintf("%s %s exists", c.typ, c.path)
		}
		return fmt.Sprintf("%s %s %s %s", c.typ, c.path, c.condition, c.value)
	default:
		return fmt.Sprintf("%s %s %s", c.typ, c.condition, c.value)
	}
}

// eval evaluates the check against a response. A nil response (failed
// request) fails every check.
func (c *check) eval(resp *transport.Response) bool {
	if resp == nil {
		return false
	}

	switch c.typ {
	case "status":
		return compare(strconv.Itoa(resp.StatusCode), c.condition, c.value, c.re)

	case "header":
		values, ok := resp.Headers[canonicalHeader(c.path)]
		if c.condition == "exists" {
			return ok
		}
		if !ok || len(values) == 0 {
			return false
		}
		return compare(values[0], c.condition, c.value, c.re)

	case "body":
		if c.condition == "exists" {
			return len(resp.Body) > 0
		}
		return compare(string(resp.Body), c.condition, c.value, c.re)

	case "duration":
		return compareNumbers(float64(resp.Latency), c.condition, float64(c.duration))

	case "json":
		result := gjson.GetBytes(resp.Body, toGJSONPath(c.path))
		if c.condition == "exists" {
			return result.Exists()
		}
		if !result.Exists() {
			return false
		}
		return compare(result.String(), c.condition, c.value, c.re)

	case "schema":
		var doc interface{}
		if err := json.Unmarshal(resp.Body, &doc); err != nil {
			return false
		}
		return c.schema.Validate(doc) == nil
	}

	return false
}

// compare compares actual to expected, numerically when both sides parse as
// numbers.
func compare(actual, condition, expected string, re *regexp.Regexp) bool {
	switch condition {
	case "contains":
		return strings.Contains(actual, expected)
	case "matches":
		return re != nil && re.MatchString(actual)
	case "exists":
		return actual != ""
	}

	a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	e, errE := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if errA == nil && errE == nil {
		return compareNumbers(a, condition, e)
	}

	switch condition {
	case "eq":
		return actual == expected
	case "ne":
		return actual != expected
	case "gt":
		return actual > expected
	case "lt":
		return actual < expected
	case "gte":
		return actual >= expected
	case "lte":
		return actual <= expected
	}
	return false
}

func compareNumbers(actual float64, condition string, expected float64) bool {
	switch condition {
	case "eq":
		return actual == expected
	case "ne":
		return actual != expected
	case "gt":
		return actual > expected
	case "lt":
		return actual < expected
	case "gte":
		return actual >= expected
	case "lte":
		return actual <= expected
	}
	return false
}

// toGJSONPath converts a JSONPath expression such as $.users[0].name to the
// gjson form users.0.name. Plain gjson paths pass through.
func toGJSONPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return path
}

func canonicalHeader(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}
