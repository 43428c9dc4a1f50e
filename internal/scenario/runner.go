package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// StepResult records the outcome of a single step.
type StepResult struct {
	Name     string
	Passed   bool
	Duration time.Duration
	Error    string // empty when passed
}

// Result records the outcome of an entire scenario.
type Result struct {
	ScenarioName string
	Passed       bool
	Steps        []StepResult
	Duration     time.Duration
}

// Runner executes scenarios against running services.
type Runner struct {
	targets map[string]string
	http    *http.Client
}

// NewRunner creates a Runner. targets maps service names to base URLs.
func NewRunner(targets map[string]string) *Runner {
	t := make(map[string]string, len(targets))
	for name, u := range targets {
		t[name] = strings.TrimRight(u, "/")
	}
	return &Runner{
		targets: t,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Run executes s. Steps keep running after a failure; captured variables
// from failed steps are not set.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	start := time.Now()
	result := &Result{ScenarioName: s.Name, Passed: true}

	if err := r.runSetup(ctx, &s.Setup); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	vars := map[string]string{}
	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sr := r.runStep(ctx, &s.Steps[i], vars)
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) runSetup(ctx context.Context, setup *Setup) error {
	for _, name := range setup.Reset {
		if err := r.admin(ctx, name, "/admin/reset", nil); err != nil {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	for name, path := range setup.Seed {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		if err := r.admin(ctx, name, "/admin/state", data); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) admin(ctx context.Context, service, path string, body []byte) error {
	base, ok := r.targets[service]
	if !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	var rd io.Reader
	if body != nil {
		rd = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step *Step, vars map[string]string) StepResult {
	start := time.Now()
	sr := StepResult{Name: step.Name}
	fail := func(format string, args ...any) StepResult {
		sr.Error = fmt.Sprintf(format, args...)
		sr.Duration = time.Since(start)
		return sr
	}

	url := step.Request.URL
	if url == "" {
		url = "{{services." + step.Request.Service + "}}" + step.Request.Path
	}
	url, err := Expand(url, r.targets, vars)
	if err != nil {
		return fail("template expansion: %v", err)
	}

	var body io.Reader
	if step.Request.Body != "" {
		b, err := Expand(step.Request.Body, r.targets, vars)
		if err != nil {
			return fail("template expansion in body: %v", err)
		}
		body = strings.NewReader(b)
	}

	method := step.Request.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fail("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range step.Request.Headers {
		v, err := Expand(v, r.targets, vars)
		if err != nil {
			return fail("template expansion in header %s: %v", k, err)
		}
		req.Header.Set(k, v)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fail("request failed: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("reading response body: %v", err)
	}

	if step.Assert.Status != 0 && resp.StatusCode != step.Assert.Status {
		return fail("expected status %d, got %d: %s", step.Assert.Status, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if step.Assert.BodyContains != "" && !strings.Contains(string(respBody), step.Assert.BodyContains) {
		return fail("body does not contain %q", step.Assert.BodyContains)
	}

	if len(step.Assert.BodyJSON) > 0 || len(step.Capture) > 0 {
		var doc any
		if err := json.Unmarshal(respBody, &doc); err != nil {
			return fail("body is not valid JSON: %v", err)
		}
		for path, want := range step.Assert.BodyJSON {
			got, ok := lookup(doc, path)
			if !ok {
				return fail("body_json: %q not found in response", path)
			}
			if format(got) != want {
				return fail("body_json: %q expected %q, got %q", path, want, format(got))
			}
		}
		for name, path := range step.Capture {
			got, ok := lookup(doc, path)
			if !ok {
				return fail("capture %s: %q not found in response", name, path)
			}
			vars[name] = format(got)
		}
	}

	sr.Passed = true
	sr.Duration = time.Since(start)
	return sr
}
