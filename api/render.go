package api

import (
	"encoding/csv"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/pkg/models"
)

const (
	formatJSON = "json"
	formatHTML = "html"
	formatCSV  = "csv"
)

// negotiateFormat picks the response format: an explicit ?format= wins,
// then the Accept header, defaulting to JSON. A plain browser form submit
// therefore gets the rendered table while fetch() callers get JSON.
func negotiateFormat(r *http.Request) string {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case formatHTML:
		return formatHTML
	case formatCSV:
		return formatCSV
	case formatJSON:
		return formatJSON
	}

	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/html"):
		return formatHTML
	case strings.Contains(accept, "text/csv"):
		return formatCSV
	}
	return formatJSON
}

var resultsTmpl = template.Must(template.New("results").Parse(resultsPage))

const resultsPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>geckomap results</title>
<link rel="stylesheet" href="/style.css">
</head>
<body>
<main class="container">
<h1>Resolution results</h1>
<table class="results">
<thead>
<tr><th>Ticker</th><th>Token ID</th><th>Name</th><th>Link</th><th>Fuzzy</th><th>Matched</th><th>Strategy</th><th>Score</th></tr>
</thead>
<tbody>
{{- range . }}
<tr class="{{ if not .Found }}miss{{ else if .FuzzyMatch }}fuzzy{{ else }}hit{{ end }}">
<td>{{ .Ticker }}</td>
<td>{{ .TokenID }}</td>
<td>{{ .Name }}</td>
<td>{{ if .Found }}<a href="{{ .Link }}" rel="noopener">{{ .TokenID }}</a>{{ end }}</td>
<td>{{ if .FuzzyMatch }}yes{{ end }}</td>
<td>{{ .MatchedTicker }}</td>
<td>{{ .Strategy }}</td>
<td>{{ if .Score }}{{ printf "%.1f" .Score }}{{ end }}</td>
</tr>
{{- end }}
</tbody>
</table>
<p><a href="/">New lookup</a></p>
</main>
</body>
</html>
`

func renderHTMLTable(w http.ResponseWriter, rows []models.Resolution) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultsTmpl.Execute(w, rows); err != nil {
		logger.Error("render results table", zap.Error(err))
	}
}

func renderCSV(w http.ResponseWriter, rows []models.Resolution) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="token_mappings.csv"`)

	cw := csv.NewWriter(w)
	cw.Write(models.ResolutionCSVHeader) //nolint:errcheck
	for _, row := range rows {
		cw.Write(row.CSVRow()) //nolint:errcheck
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.Error("write csv response", zap.Error(err))
	}
}
