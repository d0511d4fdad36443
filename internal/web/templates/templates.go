// Package templates holds the HTML components of the web UI. Components are
// authored in .templ files; run `templ generate` after editing them.
package templates

import (
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/mapexport/internal/core"
)

// DashboardParams is the data for the dashboard page.
type DashboardParams struct {
	Groups    []string
	Targets   map[string][]core.TargetSchema
	Limiter   core.ExportLimiterStatus
	Functions []string
	Sources   int
}

// ExportPageParams is the data for the export detail page.
type ExportPageParams struct {
	Progress core.ExportProgress
	Summary  *core.ExportSummary
	Report   string
	Error    string
}

// columnList renders target columns with required ones starred.
func columnList(t core.TargetSchema) string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
		if c.Required {
			names[i] += "*"
		}
	}
	return strings.Join(names, ", ")
}

func downloadURL(exportID string) templ.SafeURL {
	return templ.URL("/api/exports/" + url.PathEscape(exportID) + "/download")
}
