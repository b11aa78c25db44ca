package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/inventory"
)

// Columns expected in the catalog CSV, in order.
var Columns = []string{"code", "name", "category", "unit", "reorder_level", "reorder_quantity", "unit_cost"}

// Creator is the catalog write the loader needs.
type Creator interface {
	CreateItem(ctx context.Context, in inventory.ItemInput) (*domain.Item, error)
}

type Result struct {
	Created int
	Skipped int
	Failed  int
}

// LoadItemsFile seeds the catalog from a CSV file.
func LoadItemsFile(ctx context.Context, c Creator, csvPath string, log zerolog.Logger) (Result, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return Result{}, fmt.Errorf("open item catalog %s: %w", csvPath, err)
	}
	defer file.Close()
	return LoadItems(ctx, c, file, log)
}

// LoadItems ingests catalog rows. Codes that already exist are skipped, so
// loading the same file twice changes nothing. Bad rows are logged and
// counted; they do not stop the load.
func LoadItems(ctx context.Context, c Creator, r io.Reader, log zerolog.Logger) (Result, error) {
	var res Result
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return res, fmt.Errorf("read item catalog header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return res, err
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("unable to read catalog row")
			res.Failed++
			continue
		}
		in, err := parseRow(record)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping invalid catalog row")
			res.Failed++
			continue
		}

		if _, err := c.CreateItem(ctx, in); err != nil {
			if errors.Is(err, domain.ErrDuplicateItem) {
				res.Skipped++
				continue
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn().Err(err).Int("line", line).Str("code", in.Code).Msg("unable to create catalog item")
			res.Failed++
			continue
		}
		res.Created++
	}

	log.Info().Int("created", res.Created).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("seeded item catalog")
	return res, nil
}

func checkHeader(header []string) error {
	if len(header) < len(Columns) {
		return fmt.Errorf("item catalog header must be %s", strings.Join(Columns, ","))
	}
	for i, col := range Columns {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return fmt.Errorf("item catalog column %d must be %q, got %q", i+1, col, header[i])
		}
	}
	return nil
}

func parseRow(record []string) (inventory.ItemInput, error) {
	var in inventory.ItemInput
	if len(record) < len(Columns) {
		return in, fmt.Errorf("expected %d columns, got %d", len(Columns), len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	in.Code = record[0]
	in.Name = record[1]
	in.Category = domain.Category(record[2])
	in.Unit = record[3]

	var err error
	if in.ReorderLevel, err = parseCount(record[4], "reorder_level"); err != nil {
		return in, err
	}
	if in.ReorderQuantity, err = parseCount(record[5], "reorder_quantity"); err != nil {
		return in, err
	}
	if record[6] != "" {
		if in.UnitCost, err = decimal.NewFromString(record[6]); err != nil {
			return in, fmt.Errorf("unit_cost %q: %w", record[6], err)
		}
	}
	return in, nil
}

func parseCount(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a whole number", name, raw)
	}
	return n, nil
}
