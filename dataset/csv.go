package dataset

import (
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// ReadOption configures ReadCSV.
type ReadOption func(*readConfig)

type readConfig struct {
	source    string
	delimiter rune
	naTokens  []string
	infer     bool
}

// WithSource names the input in error messages, usually the uploaded file name.
func WithSource(name string) ReadOption {
	return func(c *readConfig) { c.source = name }
}

// WithDelimiter sets the field separator. The default is ','.
func WithDelimiter(d rune) ReadOption {
	return func(c *readConfig) { c.delimiter = d }
}

// WithNATokens replaces DefaultNATokens.
func WithNATokens(tokens ...string) ReadOption {
	return func(c *readConfig) { c.naTokens = tokens }
}

// WithInferTypes toggles numeric dtype inference. It is on by default; with it
// off every column is read as Object.
func WithInferTypes(infer bool) ReadOption {
	return func(c *readConfig) { c.infer = infer }
}

// ParseDelimiter accepts a single character, or "tab" for a tab.
func ParseDelimiter(s string) (rune, error) {
	if s == "tab" || s == `\t` {
		s = "\t"
	}
	c, size := utf8.DecodeRuneInString(s)
	if s == "" || size != len(s) || c == '\n' || c == '\r' || c == '"' || c == utf8.RuneError {
		return 0, errors.NewValidationError("delimiter", "delimiter must be a single character", s)
	}
	return c, nil
}

// ReadCSV reads a delimited file whose first record is the header.
func ReadCSV(r io.Reader, opts ...ReadOption) (*Frame, error) {
	cfg := &readConfig{
		source:    "input",
		delimiter: ',',
		naTokens:  DefaultNATokens,
		infer:     true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cr := csv.NewReader(r)
	cr.Comma = cfg.delimiter
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewParseError(cfg.source, 0, errors.ErrEmptyData)
	}
	if err != nil {
		return nil, parseErr(cfg.source, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	cells := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseErr(cfg.source, err)
		}
		for j, v := range rec {
			cells[j] = append(cells[j], v)
		}
	}

	na := naSet(cfg.naTokens)
	cols := make([]*Column, len(header))
	for j, name := range header {
		c := newRawColumn(name, cells[j], na)
		if cfg.infer {
			c = c.infer()
		}
		cols[j] = c
	}

	f, err := New(cols...)
	if err != nil {
		return nil, errors.NewParseError(cfg.source, 1, err)
	}
	if f.Len() == 0 {
		return nil, errors.NewParseError(cfg.source, 0, errors.ErrEmptyData)
	}
	return f, nil
}

func parseErr(source string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return errors.NewParseError(source, pe.Line, pe.Err)
	}
	return errors.NewParseError(source, 0, err)
}

// WriteCSV writes the frame with a header record. Missing values are written
// as empty fields.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	for _, rec := range f.Records(-1) {
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "write csv")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "write csv")
}
