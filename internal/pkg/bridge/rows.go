package bridge

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// parseHeaderList parses the configured CSV list of import column names.
func parseHeaderList(raw string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(raw)))
	headers, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("no columns configured")
	}
	return headers, nil
}

// renderImportRow substitutes payload-derived variables into the configured
// row template and parses the result into column values. The parse is
// quote-aware, so delimiters and quotes embedded in template literals
// round-trip. A value/header count mismatch is a deployment configuration
// error, not a client input error.
func (s *Service) renderImportRow(evt Event) ([]string, error) {
	rendered := strings.NewReplacer(
		"{{orderNumber}}", evt.OrderNumber,
		"{{trackingNumber}}", evt.TrackingNumber,
		"{{trackingCompany}}", evt.TrackingCompany,
		"{{shipDate}}", time.Now().Format("2006-01-02"),
	).Replace(s.rowTemplate)

	r := csv.NewReader(strings.NewReader(rendered))
	values, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("import row template did not render to valid CSV: %w", err)
	}

	if len(values) != len(s.headers) {
		return nil, fmt.Errorf(
			"import row rendered %d values but %d headers are configured",
			len(values), len(s.headers),
		)
	}
	return values, nil
}
