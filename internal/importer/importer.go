// Package importer loads backlink URLs from CSV or XLSX uploads into a campaign.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
)

// Format is an accepted upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const urlHeader = "url"

var (
	// ErrUnsupportedFormat is returned for uploads that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format: expected .csv or .xlsx")
	// ErrNoURLs is returned when the upload holds no usable URL.
	ErrNoURLs = errors.New("file contains no backlink URLs")
	// ErrMissingCampaign is returned for an empty campaign id.
	ErrMissingCampaign = errors.New("campaign id is required")
	// ErrInvalidFile is returned when the upload cannot be parsed.
	ErrInvalidFile = errors.New("invalid backlink file")
)

// BacklinkInserter persists parsed URLs as pending backlinks.
type BacklinkInserter interface {
	InsertBacklinks(ctx context.Context, campaignID string, urls []string) (int, error)
}

// Result summarises one import.
type Result struct {
	CampaignID string `json:"campaign_id"`
	Parsed     int    `json:"parsed"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
}

// Importer parses uploads and inserts their URLs.
type Importer struct {
	store  BacklinkInserter
	logger infralogger.Logger
}

// New creates an Importer.
func New(store BacklinkInserter, log infralogger.Logger) *Importer {
	return &Importer{
		store:  store,
		logger: log.With(infralogger.String("component", "backlink_importer")),
	}
}

// DetectFormat picks the format from the file extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Import parses r and inserts its URLs into the campaign. URLs the campaign
// already owns are not inserted again.
func (i *Importer) Import(ctx context.Context, campaignID, filename string, r io.Reader) (*Result, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, ErrMissingCampaign
	}

	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	urls, skipped, err := Parse(r, format)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	inserted, err := i.store.InsertBacklinks(ctx, campaignID, urls)
	if err != nil {
		return nil, fmt.Errorf("insert backlinks: %w", err)
	}

	i.logger.Info("Backlinks imported",
		infralogger.CampaignID(campaignID),
		infralogger.String("format", string(format)),
		infralogger.Int("parsed", len(urls)),
		infralogger.Int("inserted", inserted),
		infralogger.Int("skipped", skipped),
	)

	return &Result{
		CampaignID: campaignID,
		Parsed:     len(urls),
		Inserted:   inserted,
		Skipped:    skipped + len(urls) - inserted,
	}, nil
}

// Parse returns the unique URLs in r and the number of rows it skipped.
func Parse(r io.Reader, format Format) (urls []string, skipped int, err error) {
	var rows [][]string
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX:
		rows, err = readXLSX(r)
	default:
		return nil, 0, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, 0, err
	}
	urls, skipped = extractURLs(rows)
	return urls, skipped, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %w", ErrInvalidFile, err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %w", ErrInvalidFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoURLs
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// extractURLs reads the `url` column when the first row names one, otherwise
// the first column. Blank, non-http and repeated values are skipped.
func extractURLs(rows [][]string) (urls []string, skipped int) {
	if len(rows) == 0 {
		return nil, 0
	}

	col := 0
	if idx := headerIndex(rows[0]); idx >= 0 {
		col = idx
		rows = rows[1:]
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if col >= len(row) {
			skipped++
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(row[col], "\ufeff"))
		if !isHTTPURL(value) {
			skipped++
			continue
		}
		if _, dup := seen[value]; dup {
			skipped++
			continue
		}
		seen[value] = struct{}{}
		urls = append(urls, value)
	}
	return urls, skipped
}

func headerIndex(row []string) int {
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff")))
		if name == urlHeader {
			return i
		}
	}
	return -1
}

func isHTTPURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
