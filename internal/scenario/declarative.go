package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/surge/internal/transport"
)

// PacingType selects how the post-iteration pause is computed.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the pause taken after every iteration.
type Pacing struct {
	Type     PacingType
	Duration time.Duration
	Min      time.Duration
	Max      time.Duration
}

func (p Pacing) next() time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		if diff := p.Max - p.Min; diff > 0 {
			return p.Min + time.Duration(rand.Int63n(int64(diff)))
		}
		return p.Min
	}
	return 0
}

// ExtractSpec stores part of a response into the virtual user's scope.
// Source is "status", "header" (Path = header name) or "body" (Path = JSON
// path; with Regex, the first capture group of the body).
type ExtractSpec struct {
	Name   string
	Source string
	Path   string
	Regex  string
}

// RequestSpec is one request of a declarative scenario. URL, header values
// and body may contain {{name}} placeholders.
type RequestSpec struct {
	Name      string
	Method    string
	URL       string
	Headers   map[string]string
	Body      string
	Timeout   time.Duration
	ThinkTime time.Duration
	Checks    []CheckSpec
	Extract   []ExtractSpec
}

// Spec describes a declarative scenario.
type Spec struct {
	Name      string
	Variables map[string]string
	Requests  []RequestSpec
	Pacing    Pacing
}

type compiledRequest struct {
	spec    RequestSpec
	checks  []*check
	extract []compiledExtract
}

type compiledExtract struct {
	ExtractSpec
	re *regexp.Regexp
}

// Declarative runs a fixed list of requests per iteration.
type Declarative struct {
	name      string
	variables map[string]string
	requests  []compiledRequest
	pacing    Pacing
}

// FromSpec compiles a declarative scenario. Check patterns and schemas are
// compiled once here.
func FromSpec(spec Spec) (*Declarative, error) {
	if len(spec.Requests) == 0 {
		return nil, errors.New("scenario has no requests")
	}

	d := &Declarative{
		name:      spec.Name,
		variables: make(map[string]string, len(spec.Variables)),
		pacing:    spec.Pacing,
	}
	for k, v := range spec.Variables {
		d.variables[k] = v
	}

	for i, rs := range spec.Requests {
		cr := compiledRequest{spec: rs}
		if cr.spec.Name == "" {
			cr.spec.Name = fmt.Sprintf("%s_request_%d", spec.Name, i+1)
		}
		for _, cs := range rs.Checks {
			c, err := compileCheck(cs)
			if err != nil {
				return nil, fmt.Errorf("request %q: %w", cr.spec.Name, err)
			}
			cr.checks = append(cr.checks, c)
		}
		for _, es := range rs.Extract {
			ce := compiledExtract{ExtractSpec: es}
			if es.Regex != "" {
				re, err := regexp.Compile(es.Regex)
				if err != nil {
					return nil, fmt.Errorf("request %q: extract %q: %w", cr.spec.Name, es.Name, err)
				}
				ce.re = re
			}
			cr.extract = append(cr.extract, ce)
		}
		d.requests = append(d.requests, cr)
	}

	return d, nil
}

// Name returns the scenario name.
func (d *Declarative) Name() string { return d.name }

// Run issues every request in order. Request failures fail that request's
// checks and the iteration continues; a malformed request aborts it.
func (d *Declarative) Run(ctx context.Context, it *Iteration) error {
	vars := it.Vars()

	for i, cr := range d.requests {
		req := &transport.Request{
			Name:    cr.spec.Name,
			Method:  cr.spec.Method,
			URL:     vars.Resolve(cr.spec.URL, d.variables),
			Timeout: cr.spec.Timeout,
		}
		if len(cr.spec.Headers) > 0 {
			req.Headers = make(map[string]string, len(cr.spec.Headers))
			for k, v := range cr.spec.Headers {
				req.Headers[k] = vars.Resolve(v, d.variables)
			}
		}
		if cr.spec.Body != "" {
			req.Body = []byte(vars.Resolve(cr.spec.Body, d.variables))
		}

		resp, err := it.Do(ctx, req)
		if err != nil && errors.Is(err, transport.ErrMalformedRequest) {
			return fmt.Errorf("request %q: %w", cr.spec.Name, err)
		}

		for _, c := range cr.checks {
			it.Check(c.name, c.eval(resp))
		}
		if resp != nil {
			for _, ex := range cr.extract {
				if value, ok := ex.apply(resp); ok {
					vars.Set(ex.Name, value)
				}
			}
		}

		if cr.spec.ThinkTime > 0 && i < len(d.requests)-1 {
			it.Think(ctx, cr.spec.ThinkTime)
		}
	}

	it.Pause(d.pacing.next())
	return nil
}

func (ex compiledExtract) apply(resp *transport.Response) (string, bool) {
	switch ex.Source {
	case "status":
		return strconv.Itoa(resp.StatusCode), true
	case "header":
		v := resp.Header(ex.Path)
		return v, v != ""
	case "body":
		if ex.re != nil {
			m := ex.re.FindSubmatch(resp.Body)
			switch {
			case len(m) > 1:
				return string(m[1]), true
			case len(m) == 1:
				return string(m[0]), true
			}
			return "", false
		}
		if ex.Path != "" {
			r := gjson.GetBytes(resp.Body, toGJSONPath(ex.Path))
			return r.String(), r.Exists()
		}
		return string(resp.Body), true
	}
	return "", false
}

var _ Scenario = (*Declarative)(nil)
