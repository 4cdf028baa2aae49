package tracefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/interpol/internal/event"
)

// Compression selects how a trace file is compressed on disk.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

var compressionNames = [...]string{None: "none", Gzip: "gzip", Zstd: "zstd"}

func (c Compression) String() string {
	if c < 0 || int(c) >= len(compressionNames) {
		return fmt.Sprintf("Compression(%d)", int(c))
	}
	return compressionNames[c]
}

// Ext returns the file suffix conventionally used for c.
func (c Compression) Ext() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseCompression parses "none", "gzip" or "zstd".
func ParseCompression(s string) (Compression, error) {
	for i, name := range compressionNames {
		if strings.EqualFold(s, name) {
			return Compression(i), nil
		}
	}
	return None, fmt.Errorf("unknown compression %q", s)
}

// CompressionFor infers the compression from a file name's suffix.
func CompressionFor(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return Gzip
	case strings.HasSuffix(name, ".zst"):
		return Zstd
	default:
		return None
	}
}

// codec is the JSON configuration shared by readers and writers.
var codec = sonic.ConfigStd

// Encode writes doc to w as JSON compressed with c.
func Encode(w io.Writer, doc *Document, c Compression) error {
	data, err := codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	switch c {
	case None:
		_, err = w.Write(data)
		return err
	case Gzip:
		zw := gzip.NewWriter(w)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	default:
		return fmt.Errorf("unknown compression %d", int(c))
	}
}

// errLayout is returned for content that is neither a document nor a bare
// event array.
var errLayout = errors.New("not a trace document")

// Decode parses a trace file's content, decompressing it first when its
// magic bytes say so. Bare event arrays, as written by older capture
// libraries, are accepted and attributed to rank; a negative rank takes the
// rank of the first event.
func Decode(data []byte, rank int) (*Document, error) {
	plain, err := decompress(data)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(plain, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", errLayout)
	}

	switch trimmed[0] {
	case '{':
		var doc Document
		if err := codec.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
		if doc.Events == nil {
			doc.Events = event.Trace{}
		}
		return &doc, nil
	case '[':
		var events event.Trace
		if err := codec.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		if rank < 0 && len(events) > 0 {
			rank = int(events[0].CurrentRank)
		}
		return NewDocument(rank, "", events), nil
	default:
		return nil, fmt.Errorf("%w: starts with %q", errLayout, trimmed[0])
	}
}

func decompress(data []byte) ([]byte, error) {
	mime := mimetype.Detect(data)
	switch {
	case mime.Is("application/gzip"):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		plain, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return plain, nil
	case mime.Is("application/zstd"):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		plain, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return plain, nil
	default:
		return data, nil
	}
}
