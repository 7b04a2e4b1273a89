package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

const (
	filePrefix = "amazon_"
	fileSuffix = ".csv"
)

// Column headers of the marketplace exports.
const (
	colTitle       = "Title"
	colPrice       = "Price"
	colRating      = "Rating"
	colReviews     = "Reviews"
	colBrand       = "Brand"
	colLink        = "Product Link"
	colBaseCost    = "Base Cost"
	colDeliveryFee = "Delivery Fee"
)

// CSVOptions controls how missing cost columns are estimated.
type CSVOptions struct {
	DefaultDeliveryFee decimal.Decimal
	MarkupRatio        decimal.Decimal
}

// DefaultCSVOptions returns the estimation used when exports carry no cost data.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		DefaultDeliveryFee: decimal.NewFromInt(5),
		MarkupRatio:        decimal.NewFromFloat(1.3),
	}
}

// RowError describes a CSV row that could not be turned into a product.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// CSVProvider serves products read from a directory of amazon_<category>.csv files.
type CSVProvider struct {
	*MemoryProvider
	Skipped []RowError
}

// LoadCSVDir reads every amazon_<category>.csv file in dir. Rows that cannot
// be priced are skipped and reported in Skipped.
func LoadCSVDir(ctx context.Context, dir string, opts CSVOptions) (*CSVProvider, error) {
	files, err := CategoryFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s*%s files in %s", filePrefix, fileSuffix, dir)
	}

	var products []domain.Product
	var skipped []RowError
	for category, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, rowErrs, err := readCSVFile(path, category, opts)
		if err != nil {
			return nil, err
		}
		products = append(products, rows...)
		skipped = append(skipped, rowErrs...)
	}

	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return products[i].ID < products[j].ID
	})

	return &CSVProvider{MemoryProvider: NewMemoryProvider(products), Skipped: skipped}, nil
}

// CategoryFiles maps category names to export files found in dir.
func CategoryFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", err)
	}
	files := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		category := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if category == "" {
			continue
		}
		files[category] = filepath.Join(dir, name)
	}
	return files, nil
}

func readCSVFile(path, category string, opts CSVOptions) ([]domain.Product, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	products, rowErrs, err := ReadCSV(f, category, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	for i := range rowErrs {
		rowErrs[i].File = filepath.Base(path)
	}
	return products, rowErrs, nil
}

// ReadCSV parses one category export. Row errors do not abort the read.
func ReadCSV(r io.Reader, category string, opts CSVOptions) ([]domain.Product, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := cols[colTitle]; !ok {
		return nil, nil, fmt.Errorf("missing %q column", colTitle)
	}
	if _, ok := cols[colPrice]; !ok {
		return nil, nil, fmt.Errorf("missing %q column", colPrice)
	}

	var products []domain.Product
	var rowErrs []RowError
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}

		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		p, err := productFromRow(get, category, line, opts)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		products = append(products, p)
	}
	return products, rowErrs, nil
}

func productFromRow(get func(string) string, category string, line int, opts CSVOptions) (domain.Product, error) {
	title := get(colTitle)
	if title == "" {
		return domain.Product{}, fmt.Errorf("empty title")
	}

	price, err := parseMoney(get(colPrice))
	if err != nil {
		return domain.Product{}, fmt.Errorf("price: %w", err)
	}
	if !price.IsPositive() {
		return domain.Product{}, fmt.Errorf("price %s must be positive", price.String())
	}

	p := domain.Product{
		ID:        productID(category, get(colLink), title, line),
		Title:     title,
		Category:  category,
		ListPrice: price.Round(2),
		Brand:     get(colBrand),
		Link:      get(colLink),
	}

	if v := get(colRating); v != "" {
		if rating, err := strconv.ParseFloat(v, 64); err == nil && rating >= 0 && rating <= 5 {
			p.Rating = &rating
		}
	}
	if v := get(colReviews); v != "" {
		if reviews, err := strconv.Atoi(strings.ReplaceAll(v, ",", "")); err == nil && reviews >= 0 {
			p.Reviews = reviews
		}
	}

	p.DeliveryFee = opts.DefaultDeliveryFee
	if v := get(colDeliveryFee); v != "" {
		if fee, err := parseMoney(v); err == nil {
			p.DeliveryFee = fee
		}
	}

	if v := get(colBaseCost); v != "" {
		cost, err := parseMoney(v)
		if err != nil {
			return domain.Product{}, fmt.Errorf("base cost: %w", err)
		}
		p.BaseCost = cost
	} else {
		p.BaseCost = estimateBaseCost(p.ListPrice, p.DeliveryFee, opts.MarkupRatio)
	}

	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// estimateBaseCost divides the price by the markup ratio, lowered further when
// needed so that the landed cost never exceeds the list price.
func estimateBaseCost(price, fee, markup decimal.Decimal) decimal.Decimal {
	if !markup.IsPositive() {
		markup = decimal.NewFromFloat(1.3)
	}
	cost := price.Div(markup).RoundFloor(2)
	if limit := price.Sub(fee); cost.GreaterThan(limit) {
		cost = limit
	}
	return cost
}

func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£₹ ")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount %s is negative", d.String())
	}
	return d, nil
}

// productID derives a stable identifier so reloading the same export yields
// the same IDs.
func productID(category, link, title string, line int) string {
	name := link
	if name == "" {
		name = fmt.Sprintf("%s|%d", title, line)
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(category+"|"+name))
	return category + "_" + strings.ReplaceAll(id.String(), "-", "")[:8]
}
