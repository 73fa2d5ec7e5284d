package campaign

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Lead is one campaign recipient.
type Lead struct {
	Name         string
	Phone        string
	InterestArea string
}

// LoadLeads reads leads from a CSV file with a name,phone,interest_area header.
func LoadLeads(path string) ([]Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open leads: %w", err)
	}
	defer f.Close()

	return ReadLeads(f)
}

// ReadLeads parses leads CSV from r. Columns are matched by header name and
// phones are kept verbatim as text.
func ReadLeads(r io.Reader) ([]Lead, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leads header: %w", err)
	}

	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range []string{"name", "phone"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("leads: missing %q column", col)
		}
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var leads []Lead
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read leads line %d: %w", line, err)
		}
		lead := Lead{
			Name:         get(rec, "name"),
			Phone:        get(rec, "phone"),
			InterestArea: get(rec, "interest_area"),
		}
		if lead.Name == "" && lead.Phone == "" {
			continue
		}
		leads = append(leads, lead)
	}
	return leads, nil
}
