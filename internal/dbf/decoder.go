// Package dbf decodes dBase-style binary tables (.dbf) and their companion
// memo stores (.dbt) into ordered rows.
//
// The decoder is read-only. A table is a 32-byte header, a run of 32-byte
// field descriptors closed by 0x0D, then fixed-length records that each start
// with a one-byte deletion flag. Soft-deleted records are decoded like any
// other record.
//
//	res, err := dbf.Decode(tableBytes, memoBytes, dbf.WithEncoding(charmap.CodePage850))
//	if err != nil {
//	    var de *dbf.DecodeError
//	    errors.As(err, &de)
//	}
//	for _, row := range res.Rows { ... }
package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/mapexport/internal/record"
	"golang.org/x/text/encoding"
)

// Layout constants of the table format.
const (
	HeaderSize          = 32
	FieldDescriptorSize = 32
	FieldNameSize       = 11
	FieldTerminator     = 0x0D
	MemoBlockSize       = 512
	MemoTerminator      = 0x1A
)

// FieldType is the one-character type code of a field descriptor.
type FieldType byte

const (
	Character FieldType = 'C'
	Number    FieldType = 'N'
	Float     FieldType = 'F'
	Logical   FieldType = 'L'
	Date      FieldType = 'D'
	Memo      FieldType = 'M'
)

// String returns the type name used in logs and API responses.
func (t FieldType) String() string {
	switch t {
	case Character:
		return "character"
	case Number:
		return "number"
	case Float:
		return "float"
	case Logical:
		return "logical"
	case Date:
		return "date"
	case Memo:
		return "memo"
	default:
		return fmt.Sprintf("unknown(%q)", rune(t))
	}
}

// Field describes one column as read from the table header.
type Field struct {
	Name         string    `json:"name"`
	Type         FieldType `json:"type"`
	Length       int       `json:"length"`
	DecimalCount int       `json:"decimalCount"`
}

// Header is the fixed-size table header.
type Header struct {
	Version        byte
	RecordCount    int
	HeaderLength   int
	RecordLength   int
	LanguageDriver byte
}

// Result is the outcome of a decode.
type Result struct {
	Header Header
	Fields []Field
	Rows   []*record.Row

	// MemoErrors counts memo cells that could not be resolved and were set to nil.
	MemoErrors int
}

// Columns returns the field names in descriptor order.
func (r *Result) Columns() []string {
	cols := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Table converts the result into the format-agnostic table shape.
func (r *Result) Table() *record.Table {
	return &record.Table{
		Columns: r.Columns(),
		Rows:    r.Rows,
		Format:  "dbf",
	}
}

// Option configures a decode.
type Option func(*decoder)

// WithEncoding sets the codepage used for field names and values.
func WithEncoding(enc encoding.Encoding) Option {
	return func(d *decoder) {
		if enc != nil {
			d.enc = enc
		}
	}
}

// WithCodePageDetection makes the decoder honour the header language driver
// mark when it names a known codepage, overriding WithEncoding.
func WithCodePageDetection() Option {
	return func(d *decoder) {
		d.detectCodePage = true
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *decoder) {
		if l != nil {
			d.log = l
		}
	}
}

type decoder struct {
	enc            encoding.Encoding
	detectCodePage bool
	log            *slog.Logger
	dec            *encoding.Decoder
}

// Decode parses table bytes, and optionally the memo store, into rows in
// on-disk order. It returns a *DecodeError for empty, malformed or truncated
// input. Memo lookups that fail are isolated to their cell.
func Decode(table []byte, memo []byte, opts ...Option) (*Result, error) {
	d := &decoder{
		enc: DefaultEncoding,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if len(table) == 0 {
		return nil, &DecodeError{Offset: -1, Reason: "no table data", Err: ErrEmptyInput}
	}

	header, err := readHeader(table)
	if err != nil {
		return nil, err
	}

	if d.detectCodePage {
		if enc := EncodingForLanguageDriver(header.LanguageDriver); enc != nil {
			d.enc = enc
		}
	}
	d.dec = d.enc.NewDecoder()

	fields, err := d.readFields(table, header)
	if err != nil {
		return nil, err
	}

	d.log.Debug("dbf header",
		"version", header.Version,
		"records", header.RecordCount,
		"header_length", header.HeaderLength,
		"record_length", header.RecordLength,
		"fields", len(fields),
	)

	rows, err := d.readRecords(table, header, fields)
	if err != nil {
		return nil, err
	}

	res := &Result{Header: header, Fields: fields, Rows: rows}

	if len(memo) > 0 {
		res.MemoErrors = d.resolveMemos(memo, fields, rows)
	}

	return res, nil
}

// readHeader reads the fixed header at offset 0.
func readHeader(table []byte) (Header, error) {
	if len(table) < HeaderSize {
		return Header{}, truncated(len(table), "header")
	}
	h := Header{
		Version:        table[0],
		RecordCount:    int(binary.LittleEndian.Uint32(table[4:8])),
		HeaderLength:   int(binary.LittleEndian.Uint16(table[8:10])),
		RecordLength:   int(binary.LittleEndian.Uint16(table[10:12])),
		LanguageDriver: table[29],
	}
	return h, nil
}

// readFields reads 32-byte descriptors from offset 32 until the terminator
// byte or headerLength-1.
func (d *decoder) readFields(table []byte, h Header) ([]Field, error) {
	var fields []Field
	seen := make(map[string]int)

	for offset := HeaderSize; offset < h.HeaderLength-1; offset += FieldDescriptorSize {
		if offset >= len(table) {
			return nil, truncated(offset, "field descriptors")
		}
		if table[offset] == FieldTerminator {
			break
		}
		if offset+FieldDescriptorSize > len(table) {
			return nil, truncated(offset, "field descriptor")
		}

		desc := table[offset : offset+FieldDescriptorSize]
		name := d.decodeName(desc[:FieldNameSize])

		// Names must be unique within a decode; repeated names get a suffix.
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}

		fields = append(fields, Field{
			Name:         name,
			Type:         FieldType(desc[11]),
			Length:       int(desc[16]),
			DecimalCount: int(desc[17]),
		})
	}

	// Each record is a deletion flag followed by every field.
	width := 1
	for _, f := range fields {
		width += f.Length
	}
	if h.RecordLength < width {
		return nil, &DecodeError{
			Offset: 10,
			Reason: fmt.Sprintf("record length %d shorter than fields (%d)", h.RecordLength, width),
		}
	}

	return fields, nil
}

// readRecords decodes recordCount fixed-length records starting at headerLength.
func (d *decoder) readRecords(table []byte, h Header, fields []Field) ([]*record.Row, error) {
	// Never trust the header count for preallocation on short buffers.
	capacity := h.RecordCount
	if h.RecordLength > 0 {
		if fit := (len(table)-h.HeaderLength)/h.RecordLength + 1; fit >= 0 && fit < capacity {
			capacity = fit
		}
	}
	if capacity < 0 {
		capacity = 0
	}
	rows := make([]*record.Row, 0, capacity)

	for i := 0; i < h.RecordCount; i++ {
		start := h.HeaderLength + i*h.RecordLength
		if start+h.RecordLength > len(table) {
			return nil, truncated(start, fmt.Sprintf("record %d of %d", i+1, h.RecordCount))
		}

		row := record.NewRow(len(fields))
		pos := start + 1 // deletion flag
		for _, f := range fields {
			end := pos + f.Length
			if end > len(table) {
				return nil, truncated(pos, fmt.Sprintf("field %s of record %d", f.Name, i+1))
			}
			raw := strings.TrimSpace(d.decodeString(table[pos:end]))
			row.Set(f.Name, coerce(f.Type, raw))
			pos = end
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// resolveMemos replaces memo block pointers with their text. Returns the
// number of cells that failed and were set to nil.
func (d *decoder) resolveMemos(memo []byte, fields []Field, rows []*record.Row) int {
	failures := 0
	for _, f := range fields {
		if f.Type != Memo {
			continue
		}
		for i, row := range rows {
			v, _ := row.Get(f.Name)
			ptr, ok := v.(int64)
			if !ok {
				continue
			}

			text, err := d.readMemo(memo, ptr)
			if err != nil {
				failures++
				merr := &MemoResolutionError{Field: f.Name, Record: i, Pointer: ptr, Err: err}
				d.log.Debug("memo cell set to null", "error", merr.Error())
				row.Set(f.Name, nil)
				continue
			}
			row.Set(f.Name, text)
		}
	}
	return failures
}

// readMemo returns the text stored at block ptr: from ptr*512 up to the
// block terminator or the end of the store.
func (d *decoder) readMemo(memo []byte, ptr int64) (string, error) {
	if ptr < 0 || ptr > int64(len(memo)/MemoBlockSize) {
		return "", errMemoOutOfRange
	}
	offset := int(ptr) * MemoBlockSize
	if offset >= len(memo) {
		return "", errMemoOutOfRange
	}

	end := bytes.IndexByte(memo[offset:], MemoTerminator)
	if end < 0 {
		end = len(memo) - offset
	}
	return d.decodeString(memo[offset : offset+end]), nil
}

func (d *decoder) decodeName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(d.decodeString(b))
}

// decodeString converts legacy codepage bytes to UTF-8. Single-byte
// charmaps cannot fail, so a decoder error falls back to the raw bytes.
func (d *decoder) decodeString(b []byte) string {
	out, err := d.dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
