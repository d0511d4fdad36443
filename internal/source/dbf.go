package source

import (
	"github.com/JonMunkholm/mapexport/internal/dbf"
	"github.com/JonMunkholm/mapexport/internal/record"
)

// DecodeDBF decodes a DBF table and its optional memo store.
func DecodeDBF(table, memo []byte, opts Options) (*record.Table, error) {
	enc, err := dbf.EncodingByName(opts.Codepage)
	if err != nil {
		return nil, err
	}

	dopts := []dbf.Option{dbf.WithEncoding(enc), dbf.WithLogger(opts.logger())}
	if opts.DetectCodePage {
		dopts = append(dopts, dbf.WithCodePageDetection())
	}

	res, err := dbf.Decode(table, memo, dopts...)
	if err != nil {
		return nil, err
	}
	if res.MemoErrors > 0 {
		opts.logger().Warn("dbf memo cells could not be resolved",
			"count", res.MemoErrors,
			"records", len(res.Rows),
		)
	}
	return res.Table(), nil
}
