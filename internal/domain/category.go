package domain

// Category is the top-level classification of a transaction.
type Category string

const (
	CategoryIncome     Category = "Income"
	CategoryExpense    Category = "Expense"
	CategoryInvestment Category = "Investment"
	CategoryOther      Category = "Other"
	CategoryLeave      Category = "Leave"
)

// Categories lists every category in form order.
var Categories = []Category{
	CategoryIncome,
	CategoryExpense,
	CategoryInvestment,
	CategoryOther,
	CategoryLeave,
}

// Leave subcategories name the household help on leave.
const (
	LeaveMaid = "Maid"
	LeaveCook = "Cook"
)

var subcategories = map[Category][]string{
	CategoryIncome: {
		"Salary", "Freelancing", "Business Income", "Rental Income",
		"Interest/Dividends", "Bonus", "Gift", "Other Income",
	},
	CategoryExpense: {
		"Food & Dining", "Groceries", "Transportation", "Utilities",
		"Rent/EMI", "Healthcare", "Entertainment", "Shopping",
		"Education", "Insurance", "Travel", "Personal Care", "Other Expense",
	},
	CategoryInvestment: {
		"Mutual Funds", "Stocks", "Fixed Deposits", "PPF", "EPF",
		"Gold", "Real Estate", "Crypto", "Bonds", "Other Investment",
	},
	CategoryOther: {
		"Transfer", "Loan Given", "Loan Received", "Tax Payment", "Miscellaneous",
	},
	CategoryLeave: {LeaveMaid, LeaveCook},
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := subcategories[c]
	return ok
}

// Subcategories returns a copy of the allow-list for c.
func (c Category) Subcategories() []string {
	list := subcategories[c]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// AllowsSubcategory reports whether sub is in the allow-list of c.
func (c Category) AllowsSubcategory(sub string) bool {
	for _, s := range subcategories[c] {
		if s == sub {
			return true
		}
	}
	return false
}

// ParseCategory returns the category named s, or false if unknown.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// PaidBy identifies which household member paid.
type PaidBy string

const (
	PaidByShubham PaidBy = "Shubham"
	PaidByYashika PaidBy = "Yashika"
)

// Payers lists the household members in form order.
var Payers = []PaidBy{PaidByShubham, PaidByYashika}

// Valid reports whether p is a known payer.
func (p PaidBy) Valid() bool {
	return p == PaidByShubham || p == PaidByYashika
}
