package transport

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Compression is a chunk payload compression scheme. The server advertises
// which schemes it accepts; the client picks the best one it implements.
type Compression string

// Supported compression schemes, in preference order.
const (
	Brotli       Compression = "brotli"
	Gzip         Compression = "gzip"
	Uncompressed Compression = ""
)

// rank orders schemes for negotiation. Higher is better.
func (c Compression) rank() int {
	switch c {
	case Brotli:
		return 2
	case Gzip:
		return 1
	default:
		return 0
	}
}

// FieldName returns the multipart form field name encoding the scheme.
// The server dispatches decompression by field name.
func (c Compression) FieldName() string {
	switch c {
	case Brotli:
		return "file_brotli"
	case Gzip:
		return "file_gzip"
	default:
		return "file"
	}
}

func (c Compression) String() string {
	if c == Uncompressed {
		return "uncompressed"
	}
	return string(c)
}

// BestCompression picks the preferred scheme from the server-advertised
// list. Unknown schemes are ignored; an empty or all-unknown list falls
// back to uncompressed.
func BestCompression(advertised []string) Compression {
	best := Uncompressed
	for _, a := range advertised {
		var c Compression
		switch a {
		case "brotli":
			c = Brotli
		case "gzip":
			c = Gzip
		default:
			continue
		}
		if c.rank() > best.rank() {
			best = c
		}
	}
	return best
}

// Compress encodes the payload with the scheme.
func (c Compression) Compress(data []byte) ([]byte, error) {
	switch c {
	case Uncompressed:
		return data, nil

	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip chunk: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip chunk: %w", err)
		}
		return buf.Bytes(), nil

	case Brotli:
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, 6)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("brotli chunk: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli chunk: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression %q", string(c))
	}
}
