package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/aggregate"
	"github.com/dvloznov/daily-tracker/internal/app"
	"github.com/dvloznov/daily-tracker/internal/config"
	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/logger"
	"github.com/dvloznov/daily-tracker/internal/tracker"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(os.Args[2:])
	case "summary":
		err = runSummary(os.Args[2:])
	case "leave":
		err = runLeave(os.Args[2:])
	case "recent":
		err = runRecent(os.Args[2:])
	case "trend":
		err = runTrend(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "fetch":
		err = runFetch(os.Args[2:])
	case "test-connection":
		err = runTestConnection(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Daily Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add              Record a transaction or a leave day")
	fmt.Println("  summary          Show totals for a year and months")
	fmt.Println("  leave            Show household-help leave for a month")
	fmt.Println("  recent           List the latest transactions")
	fmt.Println("  trend            Show monthly totals for a category")
	fmt.Println("  export           Write the ledger as an xlsx file")
	fmt.Println("  fetch            Download an export from GCS")
	fmt.Println("  test-connection  Check the record store")
	fmt.Println("  init             Create the BigQuery table")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup parses the shared configuration flags along with the command's own
// and wires the tracker.
func setup(fs *flag.FlagSet, args []string) (context.Context, *app.App, zerolog.Logger, error) {
	cfg, err := config.Load(fs, args)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	log := logger.ForDebug(cfg.Debug)
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, log, err
	}
	return ctx, a, log, nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	date := fs.String("date", time.Now().Format(domain.DateLayout), "transaction date, YYYY-MM-DD")
	category := fs.String("category", "", "Income, Expense, Investment, Other or Leave")
	subcategory := fs.String("subcategory", "", "subcategory from the category's list")
	description := fs.String("description", "", "what the money was for")
	amount := fs.String("amount", "0", "amount in rupees")
	paidBy := fs.String("paid-by", "", "who paid: Shubham or Yashika")
	key := fs.String("idempotency-key", "", "reuse to make a repeated command a no-op")

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := time.Parse(domain.DateLayout, *date)
	if err != nil {
		return fmt.Errorf("invalid -date %q, expected YYYY-MM-DD", *date)
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid -amount %q", *amount)
	}

	res, err := a.Service.SubmitTransaction(ctx, tracker.SubmitRequest{
		Input: domain.Input{
			Date:        d,
			Category:    domain.Category(*category),
			Subcategory: *subcategory,
			Description: *description,
			Amount:      amt,
			PaidBy:      domain.PaidBy(*paidBy),
		},
		IdempotencyKey: *key,
	})
	if err != nil {
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", v.Field, v.Message)
			}
		}
		return err
	}

	fmt.Println(res.Message)
	return nil
}

func runSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	year := fs.Int("year", 0, "year, defaults to the current or latest year with data")
	months := fs.String("months", "", "comma-separated month numbers, defaults to the current or first month with data")
	asJSON := fs.Bool("json", false, "print the full summary as JSON")

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	selected, err := parseMonths(*months)
	if err != nil {
		return err
	}
	if *year == 0 || *months == "" {
		ov, err := a.Service.Overview(ctx)
		if err != nil {
			return err
		}
		if *year == 0 {
			*year = ov.DefaultYear
		}
		if *months == "" {
			selected = ov.DefaultMonths
		}
	}

	view, err := a.Service.SelectPeriod(ctx, *year, selected)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(view)
	}

	fmt.Printf("%s (%d transactions)\n\n", view.Label, view.Transactions)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Income\t%s\n", view.Display["income"])
	fmt.Fprintf(w, "Expense\t%s\n", view.Display["expense"])
	for _, p := range domain.Payers {
		if v, ok := view.Display["expense_"+string(p)]; ok {
			fmt.Fprintf(w, "  paid by %s\t%s\n", p, v)
		}
	}
	fmt.Fprintf(w, "Investment\t%s\n", view.Display["investment"])
	fmt.Fprintf(w, "Net\t%s\n", view.Display["net"])
	fmt.Fprintf(w, "All-time investment\t%s\n", view.Display["all_time_investment"])
	w.Flush()

	for _, tab := range view.Tabs {
		if len(tab.Breakdown) == 0 {
			continue
		}
		fmt.Printf("\n%s by subcategory\n", tab.Category)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, b := range tab.Breakdown {
			fmt.Fprintf(w, "  %s\t%s\t%d\n", b.Subcategory, aggregate.FormatCurrency(b.Total, false), b.Count)
		}
		w.Flush()
	}
	return nil
}

func runLeave(args []string) error {
	fs := flag.NewFlagSet("leave", flag.ExitOnError)
	now := time.Now()
	year := fs.Int("year", now.Year(), "year")
	month := fs.Int("month", int(now.Month()), "month number")

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.Service.LeaveView(ctx, *year, time.Month(*month))
	if err != nil {
		return err
	}

	fmt.Printf("%s %d: Maid %d day(s), Cook %d day(s)\n\n", view.MonthName, view.Year, view.Summary.MaidDays, view.Summary.CookDays)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Sun\tMon\tTue\tWed\tThu\tFri\tSat\t")
	for _, week := range view.Weeks {
		for _, d := range week {
			cell := ""
			if d != 0 {
				cell = strconv.Itoa(d)
				if len(view.Summary.Days[d]) > 0 {
					cell += "*"
				}
			}
			fmt.Fprintf(w, "%s\t", cell)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
	return nil
}

func runRecent(args []string) error {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	n := fs.Int("n", tracker.DefaultRecentLimit, "number of transactions")

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	recent, err := a.Service.Recent(ctx, *n)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCATEGORY\tSUBCATEGORY\tDESCRIPTION\tAMOUNT\tPAID BY")
	for _, tx := range recent {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", tx.Date, tx.Category, tx.Subcategory, tx.Description, tx.AmountDisplay, tx.PaidBy)
	}
	return w.Flush()
}

func runTrend(args []string) error {
	fs := flag.NewFlagSet("trend", flag.ExitOnError)
	category := fs.String("category", string(domain.CategoryExpense), "category")
	window := fs.Int("window", aggregate.DefaultTrendWindow, "number of months")

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	points, err := a.Service.Trend(ctx, domain.Category(*category), *window)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, p := range points {
		fmt.Fprintf(w, "%s\t%s\n", p.Label, aggregate.FormatAmount(p.Total))
	}
	return w.Flush()
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "output file, defaults to finance_tracker_YYYYMMDD.xlsx in the current directory")
	upload := fs.Bool("upload", false, "store the export in the configured bucket or export directory instead")

	ctx, a, log, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := a.Service.Export(ctx)
	if err != nil {
		return err
	}

	if *upload {
		if a.Sink == nil {
			return tracker.ErrNoSink
		}
		location, err := a.Sink.Put(ctx, file)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to %s\n", file.Rows, location)
		return nil
	}

	path := *out
	if path == "" {
		path = file.Name
	}
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("bytes", len(file.Data)).Msg("Export written")
	fmt.Printf("Exported %d rows to %s\n", file.Rows, path)
	return nil
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	uri := fs.String("uri", "", "gs:// URI of an export")
	out := fs.String("out", "", "output file, defaults to the object's base name")
	fs.Parse(args)

	if *uri == "" {
		return errors.New("-uri is required")
	}
	bucket, object, err := export.ParseGCSURI(*uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	up, err := export.NewGCSUploader(ctx, bucket, "")
	if err != nil {
		return err
	}
	defer up.Close()

	data, err := up.Fetch(ctx, *uri)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Base(object)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Downloaded %s to %s\n", *uri, path)
	return nil
}

func runTestConnection(args []string) error {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Service.TestConnection(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s (%s)\n", info.Target, info.Backend)
	fmt.Printf("Columns: %s\n", strings.Join(info.Headers, ", "))
	fmt.Printf("Rows:    %d\n", info.RowCount)
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)

	ctx, a, _, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.Backend.Init(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("Backend %s needs no initialization\n", a.Config.Backend)
		return nil
	}
	fmt.Println("Storage ready.")
	return nil
}

func parseMonths(s string) ([]time.Month, error) {
	months := []time.Month{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid month %q", part)
		}
		months = append(months, time.Month(n))
	}
	return months, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
