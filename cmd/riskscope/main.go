// riskscope - batch anomaly scoring for simulated file-access logs
//
//	riskscope generate   Generate a synthetic dataset
//	riskscope score      Score the dataset (fit or load the model)
//	riskscope export     Re-export the last scored table from the store
//	riskscope eval       Score a generated dataset against injected labels
//	riskscope watch      Re-score whenever the dataset file changes
//	riskscope config     Print the effective configuration
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"riskscope/internal/config"
	"riskscope/internal/event"
	"riskscope/internal/export"
	"riskscope/internal/logging"
	"riskscope/internal/pipeline"
	"riskscope/internal/store"
	"riskscope/internal/watcher"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A local .env can override paths and seeds during development.
	_ = godotenv.Load()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "generate":
		err = cmdGenerate(os.Args[2:])
	case "score":
		err = cmdScore(os.Args[2:])
	case "export":
		err = cmdExport(os.Args[2:])
	case "eval":
		err = cmdEval(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "config":
		err = cmdConfig(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "riskscope: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `riskscope - anomaly scoring for simulated file-access logs

Usage:
  riskscope <command> [flags]

Commands:
  generate   Generate a synthetic dataset and write it to the data path
  score      Load or generate the dataset, fit or load the model, score it
  export     Re-export the last scored table from the event store
  eval       Generate a labeled dataset and report detection precision/recall
  watch      Watch the dataset file and re-score on change
  config     Print the effective configuration

Common flags:
  -config <path>   Configuration file (TOML, JSON, or YAML)
`)
}

// setup parses common flags, loads and validates configuration, and builds
// the logger.
func setup(name string, args []string, register func(*flag.FlagSet)) (*config.Config, *pipeline.Pipeline, func(), error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file path")
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "riskscope",
	})
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		if closer != nil {
			closer.Close()
		}
	}

	return cfg, pipeline.New(cfg, logger), cleanup, nil
}

func cmdGenerate(args []string) error {
	var seed int64
	var normal, suspicious, days int
	cfg, p, cleanup, err := setup("generate", args, func(fs *flag.FlagSet) {
		fs.Int64Var(&seed, "seed", 0, "override the configured seed")
		fs.IntVar(&normal, "normal", 0, "override normal event count")
		fs.IntVar(&suspicious, "suspicious", 0, "override suspicious event count")
		fs.IntVar(&days, "days", 0, "override dataset span in days")
	})
	if err != nil {
		return err
	}
	defer cleanup()

	if seed != 0 {
		cfg.Model.Seed = seed
	}
	if normal > 0 {
		cfg.Generator.NormalEvents = normal
	}
	if suspicious > 0 {
		cfg.Generator.SuspiciousEvents = suspicious
	}
	if days > 0 {
		cfg.Generator.Days = days
	}

	events, injected := p.Generate(time.Now().AddDate(0, 0, -cfg.Generator.Days))
	if err := event.WriteCSV(cfg.Storage.DataPath, events); err != nil {
		return err
	}

	fmt.Printf("Wrote %d events (%d injected anomalies) to %s\n",
		len(events), len(injected), cfg.Storage.DataPath)
	return nil
}

func cmdScore(args []string) error {
	cfg, p, cleanup, err := setup("score", args, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	events, err := p.LoadOrGenerate()
	if err != nil {
		return err
	}

	res, err := p.Run(events)
	if err != nil {
		return err
	}

	if err := p.Persist(events, res.Scored); err != nil {
		return err
	}
	p.Summarize(res)

	fmt.Printf("Scored %d events, export written to %s\n", len(res.Scored), cfg.Storage.ExportPath)
	return nil
}

func cmdExport(args []string) error {
	var out string
	var highRiskOnly bool
	cfg, _, cleanup, err := setup("export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "", "output path (default: configured export_path)")
		fs.BoolVar(&highRiskOnly, "high-risk", false, "export only events above the risk threshold")
	})
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Storage.StorePath == "" {
		return fmt.Errorf("export requires a configured store_path")
	}
	if out == "" {
		out = cfg.Storage.ExportPath
	}

	st, err := store.Open(cfg.Storage.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var scored []event.ScoredEvent
	if highRiskOnly {
		scored, err = st.HighRisk(cfg.Model.RiskThreshold)
	} else {
		scored, err = st.LoadScored()
	}
	if err != nil {
		return err
	}
	if len(scored) == 0 {
		return fmt.Errorf("no scored events in store; run `riskscope score` first")
	}

	if err := export.WriteCSV(out, scored); err != nil {
		return err
	}
	fmt.Printf("Exported %d scored events to %s\n", len(scored), out)
	return nil
}

func cmdEval(args []string) error {
	_, p, cleanup, err := setup("eval", args, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	events, injected := p.Generate(base)

	res, err := p.Run(events)
	if err != nil {
		return err
	}
	p.Summarize(res)

	var tp, fp, fn int
	for _, se := range res.Scored {
		switch {
		case se.IsAnomaly && injected[se.EventID]:
			tp++
		case se.IsAnomaly:
			fp++
		case injected[se.EventID]:
			fn++
		}
	}

	precision, recall := 0.0, 0.0
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}

	fmt.Printf("Events:    %d (%d injected anomalies)\n", len(events), len(injected))
	fmt.Printf("Flagged:   %d (tp=%d fp=%d fn=%d)\n", tp+fp, tp, fp, fn)
	fmt.Printf("Precision: %.3f\n", precision)
	fmt.Printf("Recall:    %.3f\n", recall)
	return nil
}

func cmdWatch(args []string) error {
	var debounceSec int
	cfg, p, cleanup, err := setup("watch", args, func(fs *flag.FlagSet) {
		fs.IntVar(&debounceSec, "debounce", 2, "seconds the file must be stable before re-scoring")
	})
	if err != nil {
		return err
	}
	defer cleanup()

	// Make sure there is something to watch and an initial scored table.
	events, err := p.LoadOrGenerate()
	if err != nil {
		return err
	}
	if res, err := p.Run(events); err != nil {
		return err
	} else if err := p.Persist(events, res.Scored); err != nil {
		return err
	} else {
		p.Summarize(res)
	}

	w, err := watcher.New(cfg.Storage.DataPath, time.Duration(debounceSec)*time.Second)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.Storage.DataPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			fmt.Println("\nStopping")
			return nil

		case werr := <-w.Errors():
			fmt.Fprintf(os.Stderr, "watch error: %v\n", werr)

		case ev := <-w.Events():
			fmt.Printf("Dataset changed (%d bytes), re-scoring\n", ev.Size)

			events, _, err := event.ReadCSV(cfg.Storage.DataPath, cfg.Features.DropInvalid)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload dataset: %v\n", err)
				continue
			}

			res, err := p.Run(events)
			if err != nil {
				fmt.Fprintf(os.Stderr, "re-score: %v\n", err)
				continue
			}
			if err := p.Persist(events, res.Scored); err != nil {
				fmt.Fprintf(os.Stderr, "persist: %v\n", err)
				continue
			}
			p.Summarize(res)
		}
	}
}

func cmdConfig(args []string) error {
	cfg, _, cleanup, err := setup("config", args, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
