// Package reports aggregates pharmacy sale records for the dashboard widgets:
// revenue per period, best selling products and reorder suggestions.
package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Period selects the bucketing granularity for sales aggregation
type Period string

const (
	PeriodDay         Period = "day"
	PeriodISOWeek     Period = "iso-week"
	PeriodWeekOfMonth Period = "week-of-month"
	PeriodMonth       Period = "month"
	PeriodYear        Period = "year"
)

// Sale is one line of a completed sale
type Sale struct {
	SoldAt   time.Time
	Product  string
	Quantity int64
	Total    decimal.Decimal
}

// Bucket is the aggregate of all sales sharing one period label
type Bucket struct {
	Label    string
	Quantity int64
	Total    decimal.Decimal
}

// label renders the bucket key of a moment for the given period
func label(at time.Time, period Period) (string, error) {
	switch period {
	case PeriodDay:
		return at.Format("2006-01-02"), nil
	case PeriodISOWeek:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case PeriodWeekOfMonth:
		week := (at.Day()-1)/7 + 1
		return fmt.Sprintf("%s W%d", at.Format("2006-01"), week), nil
	case PeriodMonth:
		return at.Format("2006-01"), nil
	case PeriodYear:
		return at.Format("2006"), nil
	default:
		return "", fmt.Errorf("unknown report period %q", period)
	}
}

// BucketSales groups sales by period and sums quantity and revenue per
// bucket. Buckets come back sorted by label, which for every supported
// period is also chronological order.
func BucketSales(sales []Sale, period Period) ([]Bucket, error) {
	byLabel := make(map[string]*Bucket)

	for _, sale := range sales {
		key, err := label(sale.SoldAt, period)
		if err != nil {
			return nil, err
		}

		bucket, ok := byLabel[key]
		if !ok {
			bucket = &Bucket{Label: key}
			byLabel[key] = bucket
		}
		bucket.Quantity += sale.Quantity
		bucket.Total = bucket.Total.Add(sale.Total)
	}

	buckets := make([]Bucket, 0, len(byLabel))
	for _, bucket := range byLabel {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Label < buckets[j].Label })

	return buckets, nil
}

// ProductTotal is the all-time aggregate of one product
type ProductTotal struct {
	Product  string
	Quantity int64
	Total    decimal.Decimal
}

// TopSellers returns up to limit products ordered by units sold, revenue
// breaking ties. A non-positive limit means no cap.
func TopSellers(sales []Sale, limit int) []ProductTotal {
	byProduct := make(map[string]*ProductTotal)

	for _, sale := range sales {
		total, ok := byProduct[sale.Product]
		if !ok {
			total = &ProductTotal{Product: sale.Product}
			byProduct[sale.Product] = total
		}
		total.Quantity += sale.Quantity
		total.Total = total.Total.Add(sale.Total)
	}

	totals := make([]ProductTotal, 0, len(byProduct))
	for _, total := range byProduct {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Quantity != totals[j].Quantity {
			return totals[i].Quantity > totals[j].Quantity
		}
		if !totals[i].Total.Equal(totals[j].Total) {
			return totals[i].Total.GreaterThan(totals[j].Total)
		}
		return totals[i].Product < totals[j].Product
	})

	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals
}

// StockLevel is the current inventory position of one product
type StockLevel struct {
	Product   string
	OnHand    int64
	Threshold int64
}

// ReorderSuggestion asks to refill a product back to twice its threshold
type ReorderSuggestion struct {
	Product   string
	OnHand    int64
	Threshold int64
	Suggested int64
}

// ReorderSuggestions lists products at or below their reorder threshold,
// most depleted first
func ReorderSuggestions(stock []StockLevel) []ReorderSuggestion {
	suggestions := make([]ReorderSuggestion, 0)

	for _, level := range stock {
		if level.OnHand > level.Threshold {
			continue
		}
		suggestions = append(suggestions, ReorderSuggestion{
			Product:   level.Product,
			OnHand:    level.OnHand,
			Threshold: level.Threshold,
			Suggested: level.Threshold*2 - level.OnHand,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].OnHand != suggestions[j].OnHand {
			return suggestions[i].OnHand < suggestions[j].OnHand
		}
		return suggestions[i].Product < suggestions[j].Product
	})

	return suggestions
}
