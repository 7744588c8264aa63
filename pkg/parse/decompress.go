package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipDecompress inflates a gzip-compressed stream, used for feeds that
// publish a .gz file directly.
func GzipDecompress() Transformer {
	return gzipTransformer{}
}

type gzipTransformer struct{}

func (gzipTransformer) Transform(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		gz, err := gzip.NewReader(r)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("parse: gzip: %w", err))
			return
		}
		defer gz.Close()
		_, err = io.Copy(pw, gz)
		pw.CloseWithError(err)
	}()
	return pr
}

// ZipDecompress extracts the single file inside a zip archive, used for
// feeds that publish a .zip containing one list file. It buffers the
// whole archive since zip requires a ReaderAt/seekable length.
func ZipDecompress() Transformer {
	return zipTransformer{}
}

type zipTransformer struct{}

func (zipTransformer) Transform(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		buf, err := io.ReadAll(r)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("parse: zip: read archive: %w", err))
			return
		}
		zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
		if err != nil {
			pw.CloseWithError(fmt.Errorf("parse: zip: %w", err))
			return
		}
		if len(zr.File) != 1 {
			pw.CloseWithError(fmt.Errorf("parse: zip: expected exactly one file, found %d", len(zr.File)))
			return
		}
		f, err := zr.File[0].Open()
		if err != nil {
			pw.CloseWithError(fmt.Errorf("parse: zip: open %s: %w", zr.File[0].Name, err))
			return
		}
		defer f.Close()
		_, err = io.Copy(pw, f)
		pw.CloseWithError(err)
	}()
	return pr
}
