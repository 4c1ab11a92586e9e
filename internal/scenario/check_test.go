package scenario

import (
	"net/http"
	"testing"
	"time"

	"github.com/wesleyorama2/surge/internal/transport"
)

func testResponse() *transport.Response {
	return &transport.Response{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"status":"ok","users":[{"name":"ada","age":36}]}`),
		Latency:    40 * time.Millisecond,
	}
}

func TestCheck_Eval(t *testing.T) {
	tests := []struct {
		name string
		spec CheckSpec
		want bool
	}{
		{"status eq", CheckSpec{Type: "status", Condition: "eq", Value: "200"}, true},
		{"status default condition", CheckSpec{Type: "status", Value: "200"}, true},
		{"status ne", CheckSpec{Type: "status", Condition: "ne", Value: "200"}, false},
		{"status lt numeric", CheckSpec{Type: "status", Condition: "lt", Value: "300"}, true},
		{"status matches", CheckSpec{Type: "status", Condition: "matches", Value: `^2\d\d$`}, true},
		{"header eq", CheckSpec{Type: "header", Path: "content-type", Condition: "eq", Value: "application/json"}, true},
		{"header contains", CheckSpec{Type: "header", Path: "Content-Type", Condition: "contains", Value: "json"}, true},
		{"header exists missing", CheckSpec{Type: "header", Path: "X-Missing", Condition: "exists"}, false},
		{"body contains", CheckSpec{Type: "body", Condition: "contains", Value: `"ok"`}, true},
		{"body exists", CheckSpec{Type: "body", Condition: "exists"}, true},
		{"duration lt", CheckSpec{Type: "duration", Condition: "lt", Value: "100ms"}, true},
		{"duration gt", CheckSpec{Type: "duration", Condition: "gt", Value: "100ms"}, false},
		{"json eq", CheckSpec{Type: "json", Path: "$.status", Condition: "eq", Value: "ok"}, true},
		{"json array path", CheckSpec{Type: "json", Path: "$.users[0].name", Value: "ada"}, true},
		{"json gte numeric", CheckSpec{Type: "json", Path: "users.0.age", Condition: "gte", Value: "30"}, true},
		{"json exists", CheckSpec{Type: "json", Path: "users.0.email", Condition: "exists"}, false},
		{"schema valid", CheckSpec{Type: "schema", Value: `{"type":"object","required":["status"]}`}, true},
		{"schema invalid", CheckSpec{Type: "schema", Value: `{"type":"object","required":["missing"]}`}, false},
	}

	resp := testResponse()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := compileCheck(tt.spec)
			if err != nil {
				t.Fatalf("compileCheck() error = %v", err)
			}
			if got := c.eval(resp); got != tt.want {
				t.Errorf("eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck_NilResponseFails(t *testing.T) {
	c, err := compileCheck(CheckSpec{Type: "status", Value: "200"})
	if err != nil {
		t.Fatal(err)
	}
	if c.eval(nil) {
		t.Error("eval(nil) = true, want false")
	}
}

func TestCheck_CompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec CheckSpec
	}{
		{"unknown type", CheckSpec{Type: "cookie"}},
		{"unknown condition", CheckSpec{Type: "status", Condition: "approx", Value: "200"}},
		{"header without path", CheckSpec{Type: "header", Value: "x"}},
		{"bad duration", CheckSpec{Type: "duration", Value: "fast"}},
		{"bad regex", CheckSpec{Type: "body", Condition: "matches", Value: "("}},
		{"bad schema", CheckSpec{Type: "schema", Value: "{not json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := compileCheck(tt.spec); err == nil {
				t.Error("compileCheck() expected error, got nil")
			}
		})
	}
}

func TestCheck_DefaultName(t *testing.T) {
	c, err := compileCheck(CheckSpec{Type: "status", Condition: "eq", Value: "200"})
	if err != nil {
		t.Fatal(err)
	}
	if c.name != "status eq 200" {
		t.Errorf("name = %q, want %q", c.name, "status eq 200")
	}

	c, err = compileCheck(CheckSpec{Name: "status was 200", Type: "status", Value: "200"})
	if err != nil {
		t.Fatal(err)
	}
	if c.name != "status was 200" {
		t.Errorf("name = %q", c.name)
	}
}
