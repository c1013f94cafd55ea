package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/afroash/worker-monitor/internal/models"
)

const CSVContentType = "text/csv"

// WriteCSV writes a header row and one row per reading, in order.
func WriteCSV(w io.Writer, readings []models.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(columns))
	for i, r := range readings {
		for j, c := range columns {
			record[j] = formatCell(c.value(r))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
