package report

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"trainflow/internal/apperr"
)

// ParseEmails reads the first worksheet of an XLSX upload and returns the
// first-column values of every row after the header. Blank cells are
// skipped; duplicates are kept for the caller to resolve.
func ParseEmails(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.New(http.StatusBadRequest, "bad_request", fmt.Errorf("invalid spreadsheet: %w", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.BadRequest("spreadsheet has no worksheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.New(http.StatusBadRequest, "bad_request", fmt.Errorf("read worksheet: %w", err))
	}
	var emails []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if v := strings.TrimSpace(row[0]); v != "" {
			emails = append(emails, v)
		}
	}
	return emails, nil
}
