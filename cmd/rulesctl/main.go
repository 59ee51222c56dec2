// Command rulesctl administers triage rules and evaluation from the shell.
//
//	rulesctl import   --file rules.yaml [--user me@inbox.com]
//	rulesctl evaluate --user me@inbox.com
//	rulesctl evaluate --all
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/config"
	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/services"
	"github.com/tbourn/go-mail-triage/internal/sysutil"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	closer := sysutil.SetupLogger(sysutil.LogOptions{Level: cfg.LogLevel, Pretty: true, File: cfg.LogFile, Component: "rulesctl"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch cmd := os.Args[1]; cmd {
	case "import":
		code = runImport(ctx, cfg, os.Args[2:], os.Stdout)
	case "evaluate":
		code = runEvaluate(ctx, cfg, os.Args[2:], os.Stdout)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		code = 2
	}
	stop()
	_ = closer.Close()
	os.Exit(code)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `rulesctl - mail triage rules administration

Usage:
  rulesctl <command> [options]

Commands:
  import     Apply a YAML rules file
  evaluate   Re-evaluate pending emails of one mailbox or of every mailbox
  help       Show this help

The database comes from DB_DSN unless --dsn is given.
Use "rulesctl <command> --help" for command options.
`)
}

func runImport(ctx context.Context, cfg config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "YAML rules file (required, - for stdin)")
	user := fs.String("user", "", "Apply every rule to this mailbox")
	dsn := fs.String("dsn", "", "Database DSN (overrides DB_DSN)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fs.Usage()
		return 2
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Error().Err(err).Msg("open rules file")
			return 1
		}
		defer f.Close()
		in = f
	}
	rf, err := loadRulesFile(in)
	if err != nil {
		log.Error().Err(err).Str("file", *file).Msg("invalid rules file")
		return 1
	}

	db, err := openDB(sysutil.FirstNonEmpty(*dsn, cfg.DBDSN))
	if err != nil {
		log.Error().Err(err).Msg("database setup failed")
		return 1
	}
	defer closeDB(db)

	rep, err := applyRules(ctx, services.NewRuleService(db, nil), rf, *user)
	if rep != nil {
		fmt.Fprintf(out, "applied=%d unchanged=%d failed=%d\n", rep.Applied, rep.Noop, len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Fprintln(out, "  "+f)
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("import aborted")
		return 1
	}
	if len(rep.Failures) > 0 {
		return 1
	}
	return 0
}

func runEvaluate(ctx context.Context, cfg config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	user := fs.String("user", "", "Mailbox to evaluate")
	all := fs.Bool("all", false, "Evaluate every mailbox with pending emails")
	workers := fs.Int("concurrency", cfg.EvalConcurrency, "Mailboxes evaluated in parallel with --all")
	dsn := fs.String("dsn", "", "Database DSN (overrides DB_DSN)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (*user == "") == !*all {
		fmt.Fprintln(os.Stderr, "Error: give exactly one of --user or --all")
		fs.Usage()
		return 2
	}

	db, err := openDB(sysutil.FirstNonEmpty(*dsn, cfg.DBDSN))
	if err != nil {
		log.Error().Err(err).Msg("database setup failed")
		return 1
	}
	defer closeDB(db)

	svc := &services.EvaluationService{DB: db, Concurrency: *workers}
	var sums []services.EvaluationSummary
	if *all {
		sums, err = svc.EvaluateAllUsers(ctx)
	} else {
		var sum *services.EvaluationSummary
		if sum, err = svc.EvaluatePendingEmails(ctx, *user); err == nil {
			sums = append(sums, *sum)
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("evaluation failed")
		return 1
	}
	printSummaries(out, sums)
	return 0
}

// printSummaries writes one line per mailbox with counts in vocabulary order.
func printSummaries(w io.Writer, sums []services.EvaluationSummary) {
	sort.Slice(sums, func(i, j int) bool { return sums[i].UserEmail < sums[j].UserEmail })
	for _, s := range sums {
		fmt.Fprintf(w, "%s total=%d", s.UserEmail, s.Total)
		for _, a := range domain.Actions {
			fmt.Fprintf(w, " %s=%d", a, s.Summary[a])
		}
		fmt.Fprintln(w)
	}
}

func openDB(dsn string) (*gorm.DB, error) {
	db, err := repo.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, err
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
