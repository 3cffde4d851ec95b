package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drbh/cleanplate/internal/analyzer"
	"github.com/drbh/cleanplate/internal/bulk"
	"github.com/drbh/cleanplate/internal/config"
	"github.com/drbh/cleanplate/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Analyze flags
	templateFile string
	jsonOutput   bool

	// Bulk flags
	bulkInput       string
	bulkOutput      string
	bulkShapeOutput string
	bulkConcurrency int

	// Watch flags
	watchExts []string

	// Shapes flags
	shapesLimit int

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd analyzes a single template when invoked without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "cleanplate",
	Short: "cleanplate - static variable analysis for Jinja-style templates",
	Long: `cleanplate statically analyzes Jinja-style templates and reports
every variable the template reads from its render context, every
variable it defines locally, every loop variable bound to its
iterable, and a synthesized JSON skeleton describing the expected
shape of the render context.

Run without arguments to analyze the default template file, or pass
--file to analyze a specific template.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runAnalyze,
}

// bulkCmd runs the analyzer across a template corpus.
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Analyze a corpus of templates and tabulate shape frequencies",
	Long: `Reads a JSON file mapping template source to a list of model IDs,
analyzes every template, writes per-template results and a
shape-frequency report, and prints a coverage table showing how few
context shapes cover most models.`,
	RunE: runBulk,
}

// watchCmd re-analyzes template files as they change.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and re-analyze templates on change",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

// shapesCmd queries the results store for common shapes.
var shapesCmd = &cobra.Command{
	Use:   "shapes",
	Short: "Show the most common context shapes from the results store",
	RunE:  runShapes,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output with debug tracing")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cleanplate.yaml", "Config file path")

	rootCmd.Flags().StringVarP(&templateFile, "file", "f", "templates/example.jinja", "The template file to analyze")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the full analysis as JSON")

	bulkCmd.Flags().StringVarP(&bulkInput, "input", "i", "", "Input JSON file mapping template source to model IDs")
	bulkCmd.Flags().StringVarP(&bulkOutput, "output", "o", "", "Output JSON file for per-template results")
	bulkCmd.Flags().StringVarP(&bulkShapeOutput, "shape-output", "s", "", "Output JSON file for the shape-frequency report")
	bulkCmd.Flags().IntVarP(&bulkConcurrency, "concurrency", "c", 0, "Number of analysis workers (default: config or CPU count)")

	watchCmd.Flags().StringSliceVar(&watchExts, "ext", []string{".jinja", ".j2"}, "Template file extensions to watch")

	shapesCmd.Flags().IntVarP(&shapesLimit, "limit", "n", 10, "Number of shapes to show")

	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(shapesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := templateFile
	if len(args) > 0 {
		path = args[0]
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	logger.Debug("analyzing template", zap.String("file", path))
	analysis, err := analyzeSource(string(content))
	if err != nil {
		return fmt.Errorf("failed to analyze template: %w", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printReport(analysis)
	return nil
}

func analyzeSource(source string) (*analyzer.TemplateAnalysis, error) {
	if verbose {
		return analyzer.AnalyzeWithLogger(source, logger)
	}
	return analyzer.Analyze(source)
}

// printReport renders the human-readable analysis report.
func printReport(analysis *analyzer.TemplateAnalysis) {
	fmt.Println("\n=== Variable Analysis Report ===")

	fmt.Println("\nExternal Variables (required context):")
	printList(analysis.ExternalVars)

	fmt.Println("\nInternal Variables (defined in template):")
	printList(analysis.InternalVars)

	fmt.Println("\nLoop Variables:")
	if len(analysis.LoopVars) == 0 {
		fmt.Println("  None")
	} else {
		names := make([]string, 0, len(analysis.LoopVars))
		for name := range analysis.LoopVars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s (from %s)\n", name, analysis.LoopVars[name])
		}
	}

	fmt.Println("\nTemplate Data Shape (JSON):")
	data, err := json.MarshalIndent(analysis.Skeleton, "", "  ")
	if err != nil {
		fmt.Printf("  (failed to encode: %v)\n", err)
		return
	}
	fmt.Println(string(data))
}

func printList(items []string) {
	if len(items) == 0 {
		fmt.Println("  None")
		return
	}
	for _, item := range items {
		fmt.Printf("  %s\n", item)
	}
}

func runBulk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	input := bulkInput
	if input == "" {
		input = cfg.Bulk.Input
	}
	output := bulkOutput
	if output == "" {
		output = cfg.Bulk.Output
	}
	shapeOutput := bulkShapeOutput
	if shapeOutput == "" {
		shapeOutput = cfg.Bulk.ShapeOutput
	}
	workers := bulkConcurrency
	if workers <= 0 {
		workers = cfg.Bulk.Concurrency
	}

	fmt.Printf("Reading templates from: %s\n", input)
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	var templates map[string][]string
	if err := json.Unmarshal(data, &templates); err != nil {
		return fmt.Errorf("failed to parse input JSON: %w", err)
	}
	fmt.Printf("Found %d templates to analyze\n", len(templates))

	runner := &bulk.Runner{Concurrency: workers, Logger: logger}
	if cfg.Store.DatabasePath != "" {
		st, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
		runner.Store = st
	}

	report, err := runner.Run(ctx, templates)
	if err != nil {
		return err
	}

	if err := writeJSON(output, report.Results); err != nil {
		return err
	}
	if err := writeJSON(shapeOutput, report.Shapes); err != nil {
		return err
	}
	fmt.Printf("Analysis complete! Results saved to: %s\n", output)
	fmt.Printf("Shape frequency analysis saved to: %s\n", shapeOutput)

	fmt.Println("\nSummary:")
	report.WriteSummary(os.Stdout)
	fmt.Println()
	report.WriteCoverage(os.Stdout)
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Watching %s for template changes (Ctrl+C to stop)\n", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !watchedExt(event.Name) {
				continue
			}
			logger.Debug("template changed", zap.String("file", event.Name))
			content, err := os.ReadFile(event.Name)
			if err != nil {
				logger.Warn("failed to read changed file",
					zap.String("file", event.Name), zap.Error(err))
				continue
			}
			analysis, err := analyzeSource(string(content))
			if err != nil {
				fmt.Printf("%s: %v\n", event.Name, err)
				continue
			}
			fmt.Printf("\n--- %s ---\n", event.Name)
			printReport(analysis)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}

func watchedExt(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range watchExts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func runShapes(cmd *cobra.Command, args []string) error {
	if cfg.Store.DatabasePath == "" {
		return fmt.Errorf("no results store configured (set store.database_path or %s)", config.EnvDatabasePath)
	}
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	shapes, err := st.TopShapes(shapesLimit)
	if err != nil {
		return err
	}
	if len(shapes) == 0 {
		fmt.Println("No shapes recorded yet. Run 'cleanplate bulk' first.")
		return nil
	}
	for i, shape := range shapes {
		fmt.Printf("%2d. templates=%d models=%d\n    %s\n",
			i+1, shape.TemplateCount, shape.ModelIDCount, shape.ShapeJSON)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
