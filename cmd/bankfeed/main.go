package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/bankfeed/internal/config"
	"github.com/jask/bankfeed/internal/currency"
	"github.com/jask/bankfeed/internal/database"
	"github.com/jask/bankfeed/internal/database/repository"
	"github.com/jask/bankfeed/internal/logger"
	"github.com/jask/bankfeed/internal/service"
	"github.com/jask/bankfeed/internal/storage"
	"github.com/jask/bankfeed/internal/transform"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	zl := logger.New()

	converter, err := rateTable(cfg.Currency.Rates)
	if err != nil {
		log.Fatalf("currency rates: %v", err)
	}

	txRepo := repository.NewTransactionRepo(db)
	acctRepo := repository.NewBankAccountRepo(db)
	impRepo := repository.NewImportRepo(db)
	fileRepo := repository.NewImportFileRepo(db)

	engine := transform.NewEngine(zl)
	files := &service.FileService{Files: fileRepo, Imports: impRepo, Log: zl}
	importer := &service.ImportService{
		Imports:                 impRepo,
		Files:                   fileRepo,
		Accounts:                acctRepo,
		Txs:                     txRepo,
		Creator:                 &service.TransactionService{Transactions: txRepo, Converter: converter, HomeCurrency: cfg.Currency.Home, Log: zl},
		Engine:                  engine,
		Fetcher:                 storage.Local{},
		Log:                     zl,
		TransformTimeout:        cfg.Import.TransformTimeout,
		MaxConcurrentTransforms: cfg.Import.MaxConcurrentTransforms,
	}

	switch os.Args[1] {
	case "account":
		err = runAccount(ctx, acctRepo, engine, os.Args[2:])
	case "import":
		err = runImport(ctx, importer, files, os.Args[2:])
	case "retry":
		err = runRetry(ctx, importer, os.Args[2:])
	case "status":
		err = runStatus(ctx, impRepo, fileRepo, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// rateTable builds the static converter from configured "FROM/TO" pairs.
// No configured rates means no conversion; rows keep their native currency.
func rateTable(rates map[string]string) (currency.Converter, error) {
	if len(rates) == 0 {
		return nil, nil
	}
	t := currency.NewRateTable()
	for pair, val := range rates {
		from, to, ok := strings.Cut(strings.ToUpper(pair), "/")
		if !ok {
			return nil, fmt.Errorf("rate key %q is not FROM/TO", pair)
		}
		rate, err := decimal.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", pair, err)
		}
		t.Set(from, to, rate)
	}
	return t, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  bankfeed account add|list|test [flags]
  bankfeed import  -user U -account A file.csv [file.csv ...]
  bankfeed retry   -user U -import I -file F
  bankfeed status  -user U -import I`)
}

func runAccount(ctx context.Context, repo *repository.BankAccountRepo, engine *transform.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("expected add, list or test")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("account add", flag.ExitOnError)
		user := fs.String("user", "", "owning user id")
		name := fs.String("name", "", "display name")
		delimiter := fs.String("delimiter", ",", "CSV field delimiter")
		header := fs.Bool("header", true, "first row is a header")
		idCols := fs.String("id-columns", "", "comma separated source columns that identify a row")
		queryFile := fs.String("query", "", "path to the transform SQL")
		sampleFile := fs.String("sample", "", "optional raw sample rows for dry runs")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *user == "" || *name == "" || *queryFile == "" {
			return fmt.Errorf("-user, -name and -query are required")
		}
		sql, err := os.ReadFile(*queryFile)
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}
		var cols []string
		for _, c := range strings.Split(*idCols, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		var sample []byte
		if *sampleFile != "" {
			if sample, err = os.ReadFile(*sampleFile); err != nil {
				return fmt.Errorf("read sample: %w", err)
			}
		}
		acct := repository.BankAccount{
			ID:     uuid.NewString(),
			UserID: *user,
			Name:   *name,
			Config: repository.TransformConfig{
				Delimiter:  *delimiter,
				HasHeader:  *header,
				IDColumns:  cols,
				Query:      string(sql),
				SampleData: string(sample),
			},
		}
		if err := acct.Config.Validate(); err != nil {
			return err
		}
		if err := repo.Upsert(ctx, acct); err != nil {
			return err
		}
		fmt.Println(acct.ID)
		return nil
	case "list":
		fs := flag.NewFlagSet("account list", flag.ExitOnError)
		user := fs.String("user", "", "owning user id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		accts, err := repo.List(ctx, *user)
		if err != nil {
			return err
		}
		for _, a := range accts {
			fmt.Printf("%s\t%s\n", a.ID, a.Name)
		}
		return nil
	case "test":
		fs := flag.NewFlagSet("account test", flag.ExitOnError)
		account := fs.String("account", "", "bank account id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		acct, err := repo.Get(ctx, *account)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("bank account %s not found", *account)
		}
		if acct.Config.SampleData == "" {
			return fmt.Errorf("bank account %s has no sample data", *account)
		}
		res, err := engine.Run(ctx, transform.Source{
			Reader:    strings.NewReader(acct.Config.SampleData),
			Delimiter: acct.Config.DelimiterRune(),
			HasHeader: acct.Config.HasHeader,
		}, transform.Config{
			IDColumns: acct.Config.IDColumns,
			IDField:   acct.Config.IDField,
			Query:     acct.Config.Query,
		})
		if err != nil {
			return err
		}
		for _, row := range res.Rows {
			fmt.Printf("%s\t%s\t%s\t%d %s\n",
				row.Key, row.Date.Format("2006-01-02"), row.Title, row.AccountAmount, row.AccountCurrency)
		}
		for _, rerr := range res.RowErrors {
			fmt.Printf("row %d: %s: %s\n", rerr.Row, rerr.Field, rerr.Reason)
		}
		return nil
	default:
		return fmt.Errorf("unknown account subcommand %q", args[0])
	}
}

// runImport drives one import end to end: create, attach every file,
// activate, then process the files. Individual file failures are reported
// but do not stop the remaining files.
func runImport(ctx context.Context, importer *service.ImportService, files *service.FileService, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	user := fs.String("user", "", "owning user id")
	account := fs.String("account", "", "bank account id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := fs.Args()
	if *user == "" || *account == "" || len(paths) == 0 {
		return fmt.Errorf("-user, -account and at least one file are required")
	}

	imp, err := importer.Create(ctx, *user, *account)
	if err != nil {
		return err
	}

	fileIDs := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		f, err := files.RegisterUpload(ctx, abs)
		if err != nil {
			return err
		}
		if err := importer.AttachFile(ctx, *user, imp.ID, f.ID); err != nil {
			return err
		}
		fileIDs = append(fileIDs, f.ID)
	}
	if err := importer.Activate(ctx, *user, imp.ID); err != nil {
		return err
	}

	failed := 0
	for i, id := range fileIDs {
		out, err := importer.ProcessFile(ctx, *user, imp.ID, id)
		if err != nil {
			failed++
			fmt.Printf("%s: FAILED: %v\n", paths[i], err)
			continue
		}
		fmt.Printf("%s: %d rows, %d imported, %d duplicates, %d row errors\n",
			paths[i], out.TransactionCount, out.Imported, out.SkippedDuplicates, out.RowErrors)
	}

	fmt.Printf("import %s\n", imp.ID)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(fileIDs))
	}
	return nil
}

func runRetry(ctx context.Context, importer *service.ImportService, args []string) error {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	user := fs.String("user", "", "owning user id")
	importID := fs.String("import", "", "import id")
	fileID := fs.String("file", "", "import file id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" || *importID == "" || *fileID == "" {
		return fmt.Errorf("-user, -import and -file are required")
	}
	if err := importer.Retry(ctx, *user, *importID, *fileID); err != nil {
		return err
	}
	out, err := importer.ProcessFile(ctx, *user, *importID, *fileID)
	if err != nil {
		return err
	}
	fmt.Printf("%d rows, %d imported, %d duplicates, %d row errors\n",
		out.TransactionCount, out.Imported, out.SkippedDuplicates, out.RowErrors)
	return nil
}

func runStatus(ctx context.Context, imports *repository.ImportRepo, files *repository.ImportFileRepo, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	user := fs.String("user", "", "owning user id")
	importID := fs.String("import", "", "import id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	imp, err := imports.Get(ctx, *importID)
	if err != nil {
		return err
	}
	if imp == nil || imp.UserID != *user {
		return fmt.Errorf("import %s not found", *importID)
	}
	fmt.Printf("import %s: %s, %d/%d files, %d transactions\n",
		imp.ID, imp.Status, imp.ImportedFileCount, imp.FileCount, imp.ImportedTransactionCount)
	list, err := files.ListByImport(ctx, *importID)
	if err != nil {
		return err
	}
	for _, f := range list {
		line := fmt.Sprintf("  %s\t%s\t%s", f.ID, f.Status, f.URL)
		if f.Error != nil {
			line += "\t" + *f.Error
		}
		fmt.Println(line)
	}
	return nil
}
