package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mkline/granary/internal/domain"
	"github.com/mkline/granary/internal/schema"
)

// ParseError reports input that could not be parsed as delimited text, e.g.
// malformed quoting or rows whose field count disagrees with the header.
// It routes the artifact to quarantine, unlike plain I/O errors which are
// transient.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// File is one opened input artifact. The header is read eagerly so callers
// can reject a mismatched file before paying for a full parse.
type File struct {
	path   string
	f      *os.File
	reader *csv.Reader
	header []string
	delim  rune
}

// Open opens an input artifact and reads its header row, normalizing the
// delimiter against the schema's declaration. If parsing with the declared
// delimiter does not yield the schema's field count and an alternate
// delimiter is declared, the header is re-split with the alternate; a file
// that arrived in the alternate format but still misses the declared field
// count is a parse failure, while a declared-delimiter file with a wrong
// field set stays open so validation reports the concrete mismatch.
// Parameters:
//   - path: input artifact path.
//   - def: dataset schema carrying the declared delimiters.
// Returns:
//   - *File: opened file positioned after the header.
//   - error: *ParseError if the header cannot be split to a usable width,
//     or the underlying I/O error.
func Open(path string, def *schema.Definition) (*File, error) {
	header, delim, err := sniffHeader(path, def)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := csv.NewReader(f)
	r.Comma = delim
	r.TrimLeadingSpace = true

	// Skip the header; FieldsPerRecord locks to its width so body rows with
	// a different field count surface as csv.ErrFieldCount.
	if _, err := r.Read(); err != nil {
		f.Close()
		return nil, &ParseError{Path: path, Err: err}
	}

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = schema.NormalizeFieldName(h)
	}

	return &File{
		path:   path,
		f:      f,
		reader: r,
		header: normalized,
		delim:  delim,
	}, nil
}

// sniffHeader reads the first record under each candidate delimiter and
// picks the winning split.
func sniffHeader(path string, def *schema.Definition) ([]string, rune, error) {
	want := len(def.Fields)

	header, err := readFirstRecord(path, def.Delimiter)
	if err != nil {
		return nil, 0, err
	}
	if len(header) == want || def.AltDelimiter == 0 {
		if len(header) <= 1 && want > 1 {
			return nil, 0, &ParseError{Path: path, Err: fmt.Errorf("header yields %d field(s), schema declares %d", len(header), want)}
		}
		return header, def.Delimiter, nil
	}

	alt, altErr := readFirstRecord(path, def.AltDelimiter)
	if altErr == nil && len(alt) == want {
		return alt, def.AltDelimiter, nil
	}

	// The alternate separator splits the header where the declared one did
	// not, so the file arrived in the alternate format; re-splitting still
	// missing the declared field count is a parse failure.
	if altErr == nil && len(alt) > len(header) {
		return nil, 0, &ParseError{Path: path, Err: fmt.Errorf("re-splitting on alternate delimiter yields %d field(s), schema declares %d", len(alt), want)}
	}
	if len(header) <= 1 && want > 1 {
		return nil, 0, &ParseError{Path: path, Err: fmt.Errorf("header yields %d field(s) under either delimiter, schema declares %d", len(header), want)}
	}
	return header, def.Delimiter, nil
}

func readFirstRecord(path string, delim rune) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("empty file")}
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	return record, nil
}

// Header returns the normalized header field names in file order.
func (f *File) Header() []string {
	return f.header
}

// Delimiter returns the delimiter the file is being parsed with.
func (f *File) Delimiter() rune {
	return f.delim
}

// ReadAll materializes the remaining data rows into a RecordSet keyed by the
// normalized header names. A zero-row file yields an empty record-set.
// Parameters: none.
// Returns:
//   - *domain.RecordSet: all data rows in file order.
//   - error: *ParseError on malformed rows, or the underlying I/O error.
func (f *File) ReadAll() (*domain.RecordSet, error) {
	rs := domain.NewRecordSet(f.header)
	for {
		record, err := f.reader.Read()
		if errors.Is(err, io.EOF) {
			return rs, nil
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Path: f.path, Err: err}
			}
			return nil, fmt.Errorf("read %s: %w", f.path, err)
		}
		rs.Append(record)
	}
}

// Close releases the underlying file handle.
func (f *File) Close() error {
	return f.f.Close()
}
