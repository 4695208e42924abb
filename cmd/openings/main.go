package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/japaniel/openings/pkg/catalog"
	"github.com/japaniel/openings/pkg/config"
	"github.com/japaniel/openings/pkg/db"
	"github.com/japaniel/openings/pkg/engine"
	"github.com/japaniel/openings/pkg/ingest"
	"github.com/japaniel/openings/pkg/moves"
	"github.com/japaniel/openings/pkg/position"
	"github.com/japaniel/openings/pkg/source"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configFlag := flag.String("config", "", "Path to YAML config file")
	inputFlag := flag.String("input", "", "Comma-separated opening tables (.tsv or .json)")
	dbFlag := flag.String("db", "openings.db", "Path to SQLite database")
	workersFlag := flag.Int("workers", 4, "Number of worker goroutines")
	annotateFlag := flag.Bool("annotate", false, "Replay every line and store its final FEN")
	engineFlag := flag.String("engine", "", "Path to a UCI engine binary; implies -annotate")
	catalogFlag := flag.String("catalog-json", "", "Write the catalog to this JSON file")
	treeFlag := flag.String("tree-json", "", "Write the prefix tree to this JSON file")
	lookupFlag := flag.String("lookup", "", "Look up a move sequence in a stored build instead of building")
	buildFlag := flag.String("build", "", "Build id for -lookup (default: latest)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("openings %s\n", moves.Version())
		return
	}

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		cfg, err = config.Load(*configFlag)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	// Flags given explicitly win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Inputs = splitList(*inputFlag)
		case "db":
			cfg.DB = *dbFlag
		case "workers":
			cfg.Workers = *workersFlag
		case "annotate":
			cfg.Annotate = *annotateFlag
		case "engine":
			cfg.Engine.Path = *engineFlag
			cfg.Annotate = cfg.Annotate || *engineFlag != ""
		case "catalog-json":
			cfg.Output.CatalogJSON = *catalogFlag
		case "tree-json":
			cfg.Output.TreeJSON = *treeFlag
		}
	})

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := sql.Open("sqlite3", cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	if err := db.InitDB(conn); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	fmt.Printf("Database initialized at %s\n", cfg.DB)

	if *lookupFlag != "" {
		if err := lookup(conn, *buildFlag, *lookupFlag); err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := build(ctx, conn, cfg); err != nil {
		log.Fatalf("Build failed: %v", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func build(ctx context.Context, conn *sql.DB, cfg config.Config) error {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	rows, err := source.LoadFiles(cfg.Inputs)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d raw openings from %d file(s).\n", len(rows), len(cfg.Inputs))

	buildID, err := db.CreateBuild(conn, cfg.Inputs)
	if err != nil {
		return fmt.Errorf("create build: %w", err)
	}
	fmt.Printf("Build saved with ID: %s\n", buildID)

	ingester := ingest.NewIngester(conn)
	ingester.Workers = cfg.Workers
	ingester.BatchSize = cfg.BatchSize
	ingester.Logger = logger
	ingester.OnProgress = func(current, total int) {
		fmt.Printf("\rNormalized %d/%d", current, total)
		if current == total {
			fmt.Println()
		}
	}
	res, err := ingester.Ingest(ctx, buildID, rows)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	builder := catalog.NewBuilder()
	builder.Workers = cfg.Workers
	builder.Logger = logger
	c, err := builder.Build(ctx, res.Records)
	if err != nil {
		return err
	}
	c.AddDiagnostics(res.Diagnostics...)
	if err := ingester.RecordStatus(ctx, buildID, c); err != nil {
		return fmt.Errorf("record status: %w", err)
	}

	stored := make([]db.Entry, len(c.Entries))
	for i, e := range c.Entries {
		stored[i] = db.Entry{Entry: e, Position: i}
	}
	if cfg.Annotate {
		if err := annotate(ctx, cfg, c, stored, logger); err != nil {
			return err
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	if err := db.SaveEntries(tx, buildID, stored); err != nil {
		return err
	}
	if err := db.SaveDiagnostics(tx, buildID, c.Diagnostics); err != nil {
		return err
	}
	if err := db.SaveTree(tx, buildID, c.Tree, len(rows), len(c.Entries)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit build: %w", err)
	}

	if cfg.Output.CatalogJSON != "" {
		if err := writeJSON(cfg.Output.CatalogJSON, stored); err != nil {
			return err
		}
	}
	if cfg.Output.TreeJSON != "" {
		if err := writeJSON(cfg.Output.TreeJSON, c.Tree); err != nil {
			return err
		}
	}

	fmt.Println("---------------------------------------------------")
	for _, fc := range c.FamilyCounts() {
		fmt.Printf("%5d  %s / %s\n", fc.Count, fc.Family, fc.Subfamily)
	}
	fmt.Println("---------------------------------------------------")
	for _, mc := range c.MainLineCounts() {
		fmt.Printf("%5d  %-8s %s\n", mc.Count, mc.MainLine, mc.Name)
	}
	fmt.Printf("Build complete. %d entries from %d records, %d diagnostics.\n",
		len(c.Entries), len(rows), len(c.Diagnostics))
	return nil
}

// annotate fills FEN and, with an engine configured, the evaluation of every entry.
func annotate(ctx context.Context, cfg config.Config, c *catalog.Catalog, stored []db.Entry, logger *log.Logger) error {
	annotator := position.NewAnnotator()
	annotator.Workers = cfg.Workers
	fens, diags, err := annotator.Annotate(ctx, c.Entries)
	if err != nil {
		return fmt.Errorf("annotate: %w", err)
	}
	for _, d := range diags {
		logger.Printf("Warning: %s", d)
	}
	c.AddDiagnostics(diags...)
	for i := range stored {
		stored[i].FEN = fens[i]
	}

	if cfg.Engine.Path == "" {
		return nil
	}
	fmt.Printf("Evaluating %d positions with %s...\n", len(fens), cfg.Engine.Path)
	start := time.Now()
	ev, err := engine.Start(cfg.Engine.Path, cfg.Engine.Depth, nil)
	if err != nil {
		return err
	}
	defer ev.Close()

	// A position the engine fails on keeps its FEN and gets a diagnostic.
	evals, errs, err := engine.EvaluateAll(ctx, ev, fens, cfg.Engine.Timeout)
	if err != nil {
		return err
	}
	for i, e := range evals {
		if errs[i] != nil {
			d := catalog.Diagnostic{
				Index:   c.Entries[i].Index,
				Kind:    catalog.KindEvaluationFailed,
				Name:    c.Entries[i].Name,
				Message: errs[i].Error(),
			}
			logger.Printf("Warning: %s", d)
			c.AddDiagnostics(d)
			continue
		}
		if e == nil {
			continue
		}
		pawns := e.Pawns
		stored[i].Evaluation = &pawns
		stored[i].Advantage = e.Advantage()
	}
	fmt.Printf("Evaluation finished in %v\n", time.Since(start))
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// lookup prints the stored entries that continue the given line.
func lookup(conn *sql.DB, buildID, line string) error {
	if buildID == "" {
		b, err := db.LatestBuild(conn)
		if err != nil {
			return fmt.Errorf("no stored build: %w", err)
		}
		buildID = b.ID
	}
	c, _, err := db.LoadCatalog(conn, buildID)
	if err != nil {
		return err
	}

	seq, err := moves.Normalize(line)
	if err != nil {
		// Accept bare half-moves without numbers too.
		seq = strings.Fields(line)
	}
	if e, ok := c.Identify(seq); ok {
		fmt.Printf("Identified: %s %s (%s)\n", e.Code, e.Name, moves.Format(e.Moves[:min(e.Depth, len(e.Moves))]))
	}
	matches := c.Lookup(seq)
	fmt.Printf("%d line(s) continue %q:\n", len(matches), moves.Format(seq))
	for _, e := range matches {
		fmt.Printf("  %-4s %s: %s\n", e.Code, e.Name, moves.Format(e.Moves))
	}
	return nil
}
