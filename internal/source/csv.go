package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/transform"

	"github.com/JonMunkholm/mapexport/internal/dbf"
	"github.com/JonMunkholm/mapexport/internal/record"
)

// csvDelimiters are the candidates for delimiter detection, in order of
// preference on a tie.
var csvDelimiters = []rune{',', ';', '\t', '|'}

// ctxCheckRows is how often long decodes check for cancellation.
const ctxCheckRows = 10000

// DecodeCSV reads delimited text. The first non-blank record is the header.
// Cell values stay strings; fully blank records are kept so the export can
// account for them.
func DecodeCSV(ctx context.Context, r io.Reader, size int64, opts Options) (*record.Table, error) {
	if te := strings.ToLower(strings.TrimSpace(opts.TextEncoding)); te != "" && te != "utf-8" && te != "utf8" {
		enc, err := dbf.EncodingByName(te)
		if err != nil {
			return nil, err
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	counter := WrapForStreaming(r, size)
	br := bufio.NewReaderSize(counter, 64*1024)

	delim := opts.Delimiter
	if delim == 0 {
		head, _ := br.Peek(br.Size())
		delim = DetectDelimiter(string(head))
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	tbl := &record.Table{Format: string(FormatCSV)}
	for n := 0; ; n++ {
		if n%ctxCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}

		if tbl.Columns == nil {
			if blankCells(cells) {
				continue
			}
			tbl.Columns = uniqueHeaders(cells)
			continue
		}
		tbl.Rows = append(tbl.Rows, rowFromCells(&tbl.Columns, cells))
	}

	if tbl.Columns == nil {
		return nil, errors.New("parse csv: no header row")
	}

	opts.logger().Debug("csv decoded",
		"delimiter", string(delim),
		"bytes", counter.BytesRead,
		"rows", len(tbl.Rows),
	)
	return tbl, nil
}

// DetectDelimiter picks the candidate that occurs most often outside quotes
// on the first non-blank line of head. Comma wins when none occurs.
func DetectDelimiter(head string) rune {
	line := firstLine(head)

	counts := make(map[rune]int, len(csvDelimiters))
	inQuotes := false
	for _, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range csvDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimRight(line, "\r")
		}
	}
	return ""
}
