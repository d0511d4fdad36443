package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mapexport/internal/record"
)

func decodeCSVString(t *testing.T, s string, opts Options) *record.Table {
	t.Helper()
	tbl, err := DecodeCSV(context.Background(), strings.NewReader(s), int64(len(s)), opts)
	require.NoError(t, err)
	return tbl
}

func cell(t *testing.T, row *record.Row, key string) any {
	t.Helper()
	v, ok := row.Get(key)
	require.True(t, ok, "missing key %q", key)
	return v
}

func TestDecodeCSV_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"comma", "id,name\n1,Ada\n"},
		{"semicolon", "id;name\n1;Ada\n"},
		{"tab", "id\tname\n1\tAda\n"},
		{"pipe", "id|name\n1|Ada\n"},
		{"CRLF", "id,name\r\n1,Ada\r\n"},
		{"BOM", "\xEF\xBB\xBFid;name\n1;Ada\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := decodeCSVString(t, tt.input, Options{})
			assert.Equal(t, []string{"id", "name"}, tbl.Columns)
			require.Len(t, tbl.Rows, 1)
			assert.Equal(t, "1", cell(t, tbl.Rows[0], "id"))
			assert.Equal(t, "Ada", cell(t, tbl.Rows[0], "name"))
			assert.Equal(t, "csv", tbl.Format)
		})
	}
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ';', DetectDelimiter(`"last, first";city;zip`+"\n"))
	assert.Equal(t, ',', DetectDelimiter("single\n"))
	assert.Equal(t, '\t', DetectDelimiter("\n\na\tb\tc\n"))
	assert.Equal(t, ',', DetectDelimiter(""))
}

func TestDecodeCSV_DelimiterOverride(t *testing.T) {
	tbl := decodeCSVString(t, "a;b,c\n1;2,3\n", Options{Delimiter: ';'})
	assert.Equal(t, []string{"a", "b,c"}, tbl.Columns)
}

func TestDecodeCSV_Headers(t *testing.T) {
	tbl := decodeCSVString(t, ",,\n id ,,id\n1,2,3\n", Options{})

	assert.Equal(t, []string{"id", "Column B", "id_2"}, tbl.Columns)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "3", cell(t, tbl.Rows[0], "id_2"))
}

func TestDecodeCSV_RaggedRows(t *testing.T) {
	tbl := decodeCSVString(t, "a,b\n1\n1,2,3\n", Options{})

	assert.Equal(t, []string{"a", "b", "Column C"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "", cell(t, tbl.Rows[0], "b"))
	assert.Equal(t, "3", cell(t, tbl.Rows[1], "Column C"))
	assert.False(t, tbl.Rows[0].Has("Column C"))
}

func TestDecodeCSV_KeepsBlankDataRows(t *testing.T) {
	tbl := decodeCSVString(t, "id,name\n1,X\n,\n3,Z\n", Options{})
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "", cell(t, tbl.Rows[1], "id"))
}

func TestDecodeCSV_QuotedFields(t *testing.T) {
	tbl := decodeCSVString(t, "name,note\n\"Smith, J\",\"said \"\"hi\"\"\"\n", Options{})
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "Smith, J", cell(t, tbl.Rows[0], "name"))
	assert.Equal(t, `said "hi"`, cell(t, tbl.Rows[0], "note"))
}

func TestDecodeCSV_TextEncoding(t *testing.T) {
	input := "name\nCaf\xe9\n"

	tbl := decodeCSVString(t, input, Options{TextEncoding: "ISO-8859-1"})
	assert.Equal(t, "Café", cell(t, tbl.Rows[0], "name"))

	tbl = decodeCSVString(t, input, Options{TextEncoding: "UTF-8"})
	assert.Equal(t, "Caf?", cell(t, tbl.Rows[0], "name"))

	_, err := DecodeCSV(context.Background(), strings.NewReader(input), 0, Options{TextEncoding: "klingon"})
	assert.Error(t, err)
}

func TestDecodeCSV_Errors(t *testing.T) {
	_, err := DecodeCSV(context.Background(), strings.NewReader(""), 0, Options{})
	assert.ErrorContains(t, err, "no header row")

	_, err = DecodeCSV(context.Background(), strings.NewReader(" , \n"), 0, Options{})
	assert.ErrorContains(t, err, "no header row")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DecodeCSV(ctx, strings.NewReader("a\n1\n"), 0, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
