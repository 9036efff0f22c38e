package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the storage format of the Date column.
const DateLayout = "2006-01-02"

// Column names of the tracker worksheet. Reads match on these names exactly.
const (
	ColumnDate        = "Date"
	ColumnCategory    = "Category"
	ColumnSubcategory = "Subcategory"
	ColumnDescription = "Description"
	ColumnAmount      = "Amount (₹)"
	ColumnPaidBy      = "Paid by"
)

// Columns lists the worksheet columns in positional write order.
var Columns = []string{
	ColumnDate,
	ColumnCategory,
	ColumnSubcategory,
	ColumnDescription,
	ColumnAmount,
	ColumnPaidBy,
}

// Row is the positional value sequence appended to the record store:
// [Date, Category, Subcategory, Description, Amount, Paid by].
// The store maps positions to columns; writers never name columns.
type Row []interface{}

// Record is one stored row as read back from the record store,
// keyed by column name.
type Record map[string]string

// Transaction represents one recorded financial or leave event.
// Values are immutable once built; the ledger only grows.
type Transaction struct {
	Date        time.Time // midnight UTC, time-of-day is never stored
	Category    Category
	Subcategory string
	Description string
	Amount      decimal.Decimal
	PaidBy      PaidBy
}

// Ledger is the full ordered collection of transactions in store insertion order.
type Ledger []Transaction

// Clone returns a copy that shares no backing array with l.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	copy(out, l)
	return out
}

// Input is the raw user-supplied form data for a new transaction.
type Input struct {
	Date        time.Time
	Category    Category
	Subcategory string
	Description string
	Amount      decimal.Decimal
	PaidBy      PaidBy
}

// Build validates the input and returns the normalized Transaction.
// Leave entries have their description, amount and payer forced empty.
// All violated rules are returned together as ValidationErrors.
func (in Input) Build() (Transaction, error) {
	tx := Transaction{
		Date:        TruncateDate(in.Date),
		Category:    in.Category,
		Subcategory: strings.TrimSpace(in.Subcategory),
		Description: in.Description,
		Amount:      in.Amount,
		PaidBy:      in.PaidBy,
	}
	if tx.IsLeave() {
		tx.Description = ""
		tx.Amount = decimal.Zero
		tx.PaidBy = ""
	}

	errs := Validate(tx.Category, tx.Amount, tx.Description, tx.Subcategory)
	if !tx.IsLeave() && tx.Category.Valid() && !tx.PaidBy.Valid() {
		errs = append(errs, ValidationError{Field: "paid_by", Message: fmt.Sprintf("Paid by must be one of %v", Payers)})
	}
	if tx.Date.IsZero() {
		errs = append(errs, ValidationError{Field: "date", Message: "Date is required"})
	}
	if len(errs) > 0 {
		return Transaction{}, errs
	}

	tx.Description = NormalizeDescription(tx.Description)
	return tx, nil
}

// Validate checks user input against the transaction rules and returns one
// error per violated rule. It has no side effects.
func Validate(category Category, amount decimal.Decimal, description, subcategory string) ValidationErrors {
	var errs ValidationErrors

	if !category.Valid() {
		errs = append(errs, ValidationError{Field: "category", Message: fmt.Sprintf("Unknown category %q", category)})
	}

	if category != CategoryLeave {
		if !amount.IsPositive() {
			errs = append(errs, ValidationError{Field: "amount", Message: "Amount must be greater than 0"})
		}
		if strings.TrimSpace(description) == "" {
			errs = append(errs, ValidationError{Field: "description", Message: "Description cannot be empty"})
		}
	}

	switch {
	case strings.TrimSpace(subcategory) == "":
		errs = append(errs, ValidationError{Field: "subcategory", Message: "Please select a subcategory"})
	case category.Valid() && !category.AllowsSubcategory(subcategory):
		errs = append(errs, ValidationError{
			Field:   "subcategory",
			Message: fmt.Sprintf("Subcategory %q is not valid for %s", subcategory, category),
		})
	}

	return errs
}

// ToStorageRow serializes the transaction into the store's positional row.
func (t Transaction) ToStorageRow() Row {
	return Row{
		t.Date.Format(DateLayout),
		string(t.Category),
		t.Subcategory,
		NormalizeDescription(t.Description),
		t.Amount.InexactFloat64(),
		string(t.PaidBy),
	}
}

// FromStorageRecord parses a stored record back into a Transaction.
// A malformed date or non-numeric amount yields a *ParseError.
func FromStorageRecord(rec Record) (Transaction, error) {
	rawDate := strings.TrimSpace(rec[ColumnDate])
	date, err := time.Parse(DateLayout, rawDate)
	if err != nil {
		return Transaction{}, &ParseError{Column: ColumnDate, Value: rawDate, Err: err}
	}

	rawAmount := strings.TrimSpace(rec[ColumnAmount])
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return Transaction{}, &ParseError{Column: ColumnAmount, Value: rawAmount, Err: err}
	}

	return Transaction{
		Date:        date,
		Category:    Category(rec[ColumnCategory]),
		Subcategory: rec[ColumnSubcategory],
		Description: rec[ColumnDescription],
		Amount:      amount,
		PaidBy:      PaidBy(rec[ColumnPaidBy]),
	}, nil
}

// RecordFromRow applies the store's positional-to-column mapping to a row.
// Backends that keep named columns use it on write so reads return the
// same shape as the spreadsheet.
func RecordFromRow(row Row) Record {
	rec := make(Record, len(Columns))
	for i, col := range Columns {
		if i >= len(row) {
			rec[col] = ""
			continue
		}
		rec[col] = CellString(row[i])
	}
	return rec
}

// CellString renders a cell value the way a spreadsheet displays it unformatted.
func CellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case decimal.Decimal:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// IsLeave reports whether the transaction is a household-help leave record.
func (t Transaction) IsLeave() bool { return t.Category == CategoryLeave }

// IsIncome reports whether the transaction is income.
func (t Transaction) IsIncome() bool { return t.Category == CategoryIncome }

// IsExpense reports whether the transaction is an expense.
func (t Transaction) IsExpense() bool { return t.Category == CategoryExpense }

// IsInvestment reports whether the transaction is an investment.
func (t Transaction) IsInvestment() bool { return t.Category == CategoryInvestment }

// SameDay reports whether the transaction falls on the calendar date of d.
func (t Transaction) SameDay(d time.Time) bool {
	ty, tm, td := t.Date.Date()
	dy, dm, dd := d.Date()
	return ty == dy && tm == dm && td == dd
}

// TruncateDate drops the time-of-day, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeDescription trims and title-cases a description.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(s)
}
