package classify

import (
	"fmt"
	"strings"

	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

const (
	maxDescriptionLen = 100
	maxPartnerLen     = 50
)

// BuildPrompt assembles the categorization prompt for one batch. It
// enumerates the taxonomy in set order and the batch in calling order, so the
// output is byte-identical given the same taxonomy and batch contents.
func BuildPrompt(tax taxonomy.Set, batch []Summary) string {
	var b strings.Builder

	b.WriteString("You are a financial transaction categorizer. Categorize each transaction into the appropriate category and subcategory.\n\n")

	b.WriteString("AVAILABLE CATEGORIES AND SUBCATEGORIES:\n")
	for _, cat := range tax.Categories() {
		b.WriteString("- " + cat.Name + ": " + strings.Join(cat.Subcategories, ", ") + "\n")
	}

	b.WriteString("\nTRANSACTIONS TO CATEGORIZE:\n")
	for i, t := range batch {
		side := "Income"
		if t.IsExpense {
			side = "Expense"
		}
		fmt.Fprintf(&b, "%d. ID:%d | %s | Partner: %s | Type: %s | %s: %s GEL\n",
			i+1,
			t.ID,
			orNA(truncate(t.Description, maxDescriptionLen)),
			orNA(truncate(t.CounterpartyName, maxPartnerLen)),
			orNA(t.Kind),
			side,
			t.Amount.StringFixed(2),
		)
	}

	b.WriteString("\nRULES:\n")
	b.WriteString(`1. For transfers between own accounts, use "Transfers" > "Internal Transfer"
2. For salary/income payments, use "Income" > appropriate subcategory
3. For Wolt, Glovo, Bolt Food use "Food & Dining" > "Fast Food & Delivery"
4. For Bolt, Yandex taxi use "Transportation" > "Taxi & Rideshare"
5. For currency exchange/conversion use "Financial" > "Currency Exchange"
6. For interest earned use "Income" > "Interest Earned"
7. For SPAR, Carrefour, Goodwill use "Food & Dining" > "Groceries"
8. For restaurants, cafes use "Food & Dining" > "Restaurants" or "Cafes & Bars"
9. For parking use "Transportation" > "Parking"
10. For Silknet, Magti, Geocell use "Housing" > "Internet & TV"
`)

	b.WriteString("\nReturn ONLY a valid JSON array with this exact format (no markdown, no explanation):\n")
	b.WriteString(`[{"id": <transaction_id>, "category": "<category>", "subcategory": "<subcategory>"}]` + "\n\n")
	b.WriteString("Respond with the JSON array only:")

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
