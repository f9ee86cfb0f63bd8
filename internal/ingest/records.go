package ingest

import (
	"strings"

	"github.com/sells-group/adcrawl/internal/model"
)

// Domains maps rows of "domain[,active]" to domains. A header row whose
// first cell is "domain" is skipped. A missing or unparsable active cell
// means active; "false", "0", "no" and "inactive" mean inactive.
func Domains(rows [][]string) []model.Domain {
	var out []model.Domain
	seen := make(map[string]bool)
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(row[0]))
		if name == "" || (i == 0 && name == "domain") {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		active := true
		if len(row) > 1 {
			switch strings.ToLower(strings.TrimSpace(row[1])) {
			case "false", "0", "no", "inactive":
				active = false
			}
		}
		out = append(out, model.Domain{Domain: name, Active: active})
	}
	return out
}

// Regions returns the first column of rows, skipping a "region" or "name"
// header. Trimming and blank removal happen in the store.
func Regions(rows [][]string) []string {
	var out []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if i == 0 {
			switch strings.ToLower(strings.TrimSpace(row[0])) {
			case "region", "name":
				continue
			}
		}
		out = append(out, row[0])
	}
	return out
}
