// Package bulk runs the analyzer across many templates and tabulates
// how often each context shape occurs. The interesting output is the
// shape-frequency report: chat templates in the wild cluster around a
// small number of context shapes, and the report shows how few shapes
// cover most models.
package bulk

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drbh/cleanplate/internal/analyzer"
	"github.com/drbh/cleanplate/internal/store"
)

// Result is the outcome for one template.
type Result struct {
	Template     string                 `json:"template"`
	ModelIDs     []string               `json:"model_ids"`
	ExternalVars []string               `json:"external_vars,omitempty"`
	InternalVars []string               `json:"internal_vars,omitempty"`
	LoopVars     map[string]string      `json:"loop_vars,omitempty"`
	Skeleton     map[string]interface{} `json:"object_shapes_json,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Status       string                 `json:"status"`
}

// ShapeFrequency aggregates all templates sharing one skeleton shape.
type ShapeFrequency struct {
	Shape         map[string]interface{} `json:"object_shapes_json"`
	TemplateCount int                    `json:"template_count"`
	ModelIDCount  int                    `json:"model_id_count"`
	Templates     []string               `json:"templates"`
}

// Report is the output of one bulk run.
type Report struct {
	RunID         string
	Results       []Result
	Shapes        []ShapeFrequency
	TotalModelIDs int
}

// Succeeded counts successfully analyzed templates.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == "success" {
			n++
		}
	}
	return n
}

// Failed counts templates that failed to parse or analyze.
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Runner drives parallel analysis over a template corpus.
type Runner struct {
	// Concurrency bounds the worker pool; values below one run a
	// single worker.
	Concurrency int

	// Logger receives progress output; nil disables it.
	Logger *zap.Logger

	// Store persists results when non-nil.
	Store *store.Store
}

// Run analyzes every template in the corpus. The map key is the
// template source; the value lists the model IDs that use it.
// Results are ordered by template source so runs are deterministic.
func (r *Runner) Run(ctx context.Context, templates map[string][]string) (*Report, error) {
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &Report{
		RunID:   uuid.NewString(),
		Results: make([]Result, len(keys)),
	}
	report.TotalModelIDs = countUniqueModels(templates)

	if r.Logger != nil {
		r.Logger.Info("starting bulk analysis",
			zap.String("run_id", report.RunID),
			zap.Int("templates", len(keys)),
			zap.Int("model_ids", report.TotalModelIDs))
	}
	if r.Store != nil {
		if err := r.Store.SaveRun(report.RunID, time.Now(), len(keys)); err != nil {
			return nil, err
		}
	}

	workers := r.Concurrency
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, src := range keys {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Results[i] = r.analyzeOne(src, templates[src])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Shapes = aggregateShapes(report.Results)

	if r.Store != nil {
		for _, res := range report.Results {
			shapeJSON := ""
			if res.Skeleton != nil {
				if data, err := json.Marshal(res.Skeleton); err == nil {
					shapeJSON = string(data)
				}
			}
			if err := r.Store.SaveResult(report.RunID, hashTemplate(res.Template),
				res.Status, res.Error, shapeJSON, len(res.ModelIDs)); err != nil {
				return nil, err
			}
		}
	}

	if r.Logger != nil {
		r.Logger.Info("bulk analysis complete",
			zap.String("run_id", report.RunID),
			zap.Int("succeeded", report.Succeeded()),
			zap.Int("failed", report.Failed()),
			zap.Int("unique_shapes", len(report.Shapes)))
	}
	return report, nil
}

func (r *Runner) analyzeOne(src string, modelIDs []string) Result {
	res := Result{Template: src, ModelIDs: modelIDs}
	analysis, err := analyzer.Analyze(src)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	res.Status = "success"
	res.ExternalVars = analysis.ExternalVars
	res.InternalVars = analysis.InternalVars
	res.LoopVars = analysis.LoopVars
	res.Skeleton = analysis.Skeleton
	return res
}

// aggregateShapes groups successful results by the canonical JSON
// encoding of their skeleton. encoding/json sorts map keys, so equal
// shapes always collide.
func aggregateShapes(results []Result) []ShapeFrequency {
	type bucket struct {
		shape     map[string]interface{}
		templates []string
		models    map[string]struct{}
	}
	buckets := make(map[string]*bucket)

	for _, res := range results {
		if res.Status != "success" {
			continue
		}
		data, err := json.Marshal(res.Skeleton)
		if err != nil {
			continue
		}
		key := string(data)
		b := buckets[key]
		if b == nil {
			b = &bucket{shape: res.Skeleton, models: make(map[string]struct{})}
			buckets[key] = b
		}
		b.templates = append(b.templates, res.Template)
		for _, id := range res.ModelIDs {
			b.models[id] = struct{}{}
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ShapeFrequency, 0, len(buckets))
	for _, k := range keys {
		b := buckets[k]
		out = append(out, ShapeFrequency{
			Shape:         b.shape,
			TemplateCount: len(b.templates),
			ModelIDCount:  len(b.models),
			Templates:     b.templates,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ModelIDCount != out[j].ModelIDCount {
			return out[i].ModelIDCount > out[j].ModelIDCount
		}
		return out[i].TemplateCount > out[j].TemplateCount
	})
	return out
}

// WriteCoverage prints the shape coverage table: cumulative percent
// of models covered per shape, stopping once 95% is reached.
func (r *Report) WriteCoverage(w io.Writer) {
	if len(r.Shapes) == 0 || r.TotalModelIDs == 0 {
		return
	}
	fmt.Fprintf(w, "| index | %14s | %14s | %13s | %9s |\n",
		"template_count", "model_id_count", "pct of models", "covered")
	fmt.Fprintf(w, "|-------|----------------|----------------|---------------|-----------|\n")
	covered := 0.0
	for i, shape := range r.Shapes {
		contrib := float64(shape.ModelIDCount) / float64(r.TotalModelIDs) * 100.0
		covered += contrib
		fmt.Fprintf(w, "| %5d | %14d | %14d | %12.2f%% | %8.2f%% |\n",
			i+1, shape.TemplateCount, shape.ModelIDCount, contrib, covered)
		if covered >= 95.0 {
			break
		}
	}
}

// WriteSummary prints run totals.
func (r *Report) WriteSummary(w io.Writer) {
	failedModels := 0
	okModels := 0
	for _, res := range r.Results {
		if res.Status == "success" {
			okModels += len(res.ModelIDs)
		} else {
			failedModels += len(res.ModelIDs)
		}
	}
	fmt.Fprintf(w, "Total templates: %d\n", len(r.Results))
	fmt.Fprintf(w, "Successfully analyzed: %d\n", r.Succeeded())
	fmt.Fprintf(w, "Failed: %d\n", r.Failed())
	fmt.Fprintf(w, "Model IDs analyzed: %d\n", okModels)
	fmt.Fprintf(w, "Model IDs on failing templates: %d\n", failedModels)
	fmt.Fprintf(w, "Unique object shapes: %d\n", len(r.Shapes))
}

func countUniqueModels(templates map[string][]string) int {
	seen := make(map[string]struct{})
	for _, ids := range templates {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

func hashTemplate(src string) string {
	sum := sha256.Sum256([]byte(src))
	return fmt.Sprintf("%x", sum[:8])
}
