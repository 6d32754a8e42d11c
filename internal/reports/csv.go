package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV renders buckets as a CSV document with a header row.
// Totals are written with two decimal places, the register currency precision
func WriteCSV(w io.Writer, buckets []Bucket) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"period", "quantity", "total"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, bucket := range buckets {
		record := []string{
			bucket.Label,
			strconv.FormatInt(bucket.Quantity, 10),
			bucket.Total.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
