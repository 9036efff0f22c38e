package notionsync

import (
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// Property names of the mirror database.
const (
	PropertyTitle       = "Description"
	PropertyDate        = "Date"
	PropertyCategory    = "Category"
	PropertySubcategory = "Subcategory"
	PropertyAmount      = "Amount"
	PropertyPaidBy      = "Paid By"
	PropertyRowKey      = "Row Key"
)

// RequiredProperties are the columns the mirror database must define.
var RequiredProperties = []string{
	PropertyTitle,
	PropertyDate,
	PropertyCategory,
	PropertySubcategory,
	PropertyAmount,
	PropertyPaidBy,
	PropertyRowKey,
}

func missingProperties(configs notionapi.PropertyConfigs) []string {
	var missing []string
	for _, name := range RequiredProperties {
		if _, ok := configs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// title is the page title; leave rows have no description.
func title(tx domain.Transaction) string {
	if tx.IsLeave() {
		return fmt.Sprintf("Leave: %s", tx.Subcategory)
	}
	return tx.Description
}

// TransactionToNotionProperties converts a ledger row to Notion properties.
func TransactionToNotionProperties(tx domain.Transaction, key string) notionapi.Properties {
	date := notionapi.Date(tx.Date)

	props := notionapi.Properties{
		PropertyTitle: notionapi.TitleProperty{
			Title: richText(title(tx)),
		},
		PropertyDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropertyCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Category)},
		},
		PropertySubcategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Subcategory},
		},
		PropertyRowKey: notionapi.RichTextProperty{
			RichText: richText(key),
		},
	}

	if !tx.IsLeave() {
		props[PropertyAmount] = notionapi.NumberProperty{Number: tx.Amount.InexactFloat64()}
	}
	if tx.PaidBy != "" {
		props[PropertyPaidBy] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.PaidBy)},
		}
	}

	return props
}

// extractRowKey returns the row key of a mirrored page, or "".
func extractRowKey(page notionapi.Page) string {
	if prop, ok := page.Properties[PropertyRowKey]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}
