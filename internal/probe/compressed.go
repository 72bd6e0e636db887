package probe

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"

	"github.com/cockroachdb/errors"
)

// Decompress decodes body per encoding ("gzip" or "deflate"), returning an
// error if the stream doesn't decode cleanly.
func Decompress(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip stream")
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading gzip stream")
		}
		return out, nil
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading deflate stream")
		}
		return out, nil
	default:
		return nil, errors.Newf("unsupported encoding %q", encoding)
	}
}
