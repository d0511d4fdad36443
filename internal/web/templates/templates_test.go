package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mapexport/internal/core"
)

func TestDashboard(t *testing.T) {
	var buf bytes.Buffer
	err := Dashboard(DashboardParams{
		Groups: []string{"CRM"},
		Targets: map[string][]core.TargetSchema{"CRM": {{
			Key:   "crm_contacts",
			Label: "Contacts <people>",
			Columns: []core.TargetColumn{
				{Name: "Email", Required: true},
				{Name: "Phone"},
			},
		}}},
		Limiter:   core.ExportLimiterStatus{Active: 1, Available: 4, MaxConcurrent: 5},
		Functions: []string{"digits", "phone"},
		Sources:   2,
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
	assert.Contains(t, html, "Contacts &lt;people&gt;")
	assert.Contains(t, html, "Email*, Phone")
	assert.Contains(t, html, `<span class="active">1</span> running`)
	assert.Contains(t, html, `<span class="available">4</span> of 5 slots free, 2 sources loaded`)
	assert.Contains(t, html, "<title>Dashboard · mapexport</title>")
	assert.Contains(t, html, "digits, phone")
}

func TestExportPage(t *testing.T) {
	var buf bytes.Buffer
	err := ExportPage(ExportPageParams{
		Progress: core.ExportProgress{FileName: "orders.dbf", Phase: core.PhaseComplete},
		Summary: &core.ExportSummary{
			ExportID: "abc",
			Filename: "orders-1700000000.CSV",
			Stats:    core.Stats{TotalRows: 3, ExportedRows: 2, SkippedRows: 1},
			Duration: "12ms",
		},
		Report: "Exported rows: 2\n<b>",
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "complete · 100%")
	assert.Contains(t, html, `href="/api/exports/abc/download"`)
	assert.Contains(t, html, "<dt>Skipped</dt><dd>1</dd>")
	assert.Contains(t, html, "Exported rows: 2\n&lt;b&gt;")
	assert.Contains(t, html, `data-phase="complete"`)
	assert.NotContains(t, html, `class="alert`)
}

func TestExportPage_Running(t *testing.T) {
	var buf bytes.Buffer
	err := ExportPage(ExportPageParams{
		Progress: core.ExportProgress{FileName: "a<b>.csv", Phase: core.PhaseFailed},
		Error:    "source went away",
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "<h2>a&lt;b&gt;.csv</h2>")
	assert.Contains(t, html, "source went away")
	assert.NotContains(t, html, "<dl>")
	assert.NotContains(t, html, `class="report"`)
}

func TestDownloadURL(t *testing.T) {
	assert.Equal(t, "/api/exports/abc/download", string(downloadURL("abc")))
	assert.Equal(t, "/api/exports/a%2Fb/download", string(downloadURL("a/b")))
}

func TestErrorAlert(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ErrorAlert("Too many exports", "Wait", "XPT002").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Too many exports")
	assert.Contains(t, buf.String(), "Code: XPT002")

	buf.Reset()
	require.NoError(t, ErrorAlert("Oops", "", "").Render(context.Background(), &buf))
	assert.NotContains(t, buf.String(), "Code:")
	assert.NotContains(t, buf.String(), `class="action"`)
}
