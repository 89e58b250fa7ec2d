package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

const (
	DefaultSheetName = "Transactions"

	// idColumn holds the transaction ID used to find rows on re-export.
	idColumn = "G"
)

var header = []any{"Date", "Type", "Description", "Category", "Amount", "Notes", "ID"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is the name without year, e.g. "Transactions"; rows go to
	// "<year> <base>" for the year of the transaction date.
	sheetBase string
}

var _ ports.TransactionExporter = (*Client)(nil)

// Options configures New.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = DefaultSheetName
	}

	svc, err := newSheetsService(ctx, opts.CredentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

// NewFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_NAME and the service
// account variables accepted by LoadCredentials.
func NewFromEnv(ctx context.Context) (*Client, error) {
	creds, err := LoadCredentials(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"), os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if err != nil {
		return nil, err
	}
	return New(ctx, Options{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: creds,
	})
}

// LoadCredentials returns inline JSON when set, otherwise the content of
// file, otherwise the file named by GOOGLE_APPLICATION_CREDENTIALS.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)
	if inlineJSON == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inlineJSON != "":
		return []byte(inlineJSON), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newSheetsService parses the service account key up front so a malformed
// key fails at startup instead of on the first export.
func newSheetsService(ctx context.Context, credentialsJSON []byte) (*gsheet.Service, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	service, err := gsheet.NewService(ctx, goption.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "project_id", creds.ProjectID)
	return service, nil
}

// Export writes t to the sheet for its year. A row whose ID column matches
// t.ID is overwritten; otherwise a new row is appended, preceded by the
// header when the sheet is empty.
func (c *Client) Export(ctx context.Context, t core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if t.ID <= 0 {
		return "", errors.New("transaction has no ID")
	}

	sheet := yearPrefixedName(c.sheetBase, t.Date.Year())
	resp, err := c.readIDs(ctx, sheet)
	if err != nil {
		return "", err
	}

	row := rowValues(t)
	if n := findRow(resp.Values, t.ID); n > 0 {
		target := a1Range(sheet, fmt.Sprintf("A%d:%s%d", n, idColumn, n))
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, &gsheet.ValueRange{Values: [][]any{row}}).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("update %s: %w", target, err)
		}
		return target, nil
	}

	values := [][]any{row}
	if len(resp.Values) == 0 {
		values = [][]any{header, row}
	}
	appendRange := a1Range(sheet, "A:"+idColumn)
	out, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}
	if out.Updates != nil && out.Updates.UpdatedRange != "" {
		return out.Updates.UpdatedRange, nil
	}
	return appendRange, nil
}

// readIDs reads the ID column of sheet. A missing sheet is created once and
// read again, so the first transaction of a new year gets its own tab.
func (c *Client) readIDs(ctx context.Context, sheet string) (*gsheet.ValueRange, error) {
	idRange := a1Range(sheet, idColumn+":"+idColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, idRange).Context(ctx).Do()
	if err == nil {
		return resp, nil
	}
	if !isMissingSheet(err) {
		return nil, fmt.Errorf("read IDs from %s: %w", sheet, err)
	}

	if err := c.addSheet(ctx, sheet); err != nil {
		return nil, err
	}
	resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, idRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read IDs from %s: %w", sheet, err)
	}
	return resp, nil
}

func (c *Client) addSheet(ctx context.Context, sheet string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: sheet},
			},
		}},
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil && !isSheetExists(err) {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Created sheet", "sheet", sheet)
	return nil
}

// a1Range quotes sheet for A1 notation, so names with spaces or quotes work.
func a1Range(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

// isMissingSheet matches the 400 the API returns for a range on a sheet
// that does not exist.
func isMissingSheet(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		return false
	}
	return strings.Contains(apiErr.Message, "Unable to parse range")
}

// isSheetExists matches the error for adding a sheet another worker created
// in the meantime.
func isSheetExists(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		return false
	}
	return strings.Contains(apiErr.Message, "already exists")
}

// rowValues lays out one transaction as
// Date | Type | Description | Category | Amount | Notes | ID.
func rowValues(t core.Transaction) []any {
	category := core.UncategorizedName
	if t.Category != nil && t.Category.Name != "" {
		category = t.Category.Name
	}
	return []any{
		t.Date.String(),
		string(t.Type),
		t.Description,
		category,
		t.Amount.Float(),
		t.Notes,
		strconv.FormatInt(t.ID, 10),
	}
}

// findRow returns the 1-based row whose first cell equals id, or 0.
func findRow(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 1
		}
	}
	return 0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
