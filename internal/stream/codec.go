// Package stream implements the newline-delimited JSON codec the
// filesystem and object-bucket baseline backends use: one record per line,
// O(1 + largest record) memory, backpressure-aware writes.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"deltasync/internal/deltaerr"
	"deltasync/internal/record"
)

// wireRecord is the JSON shape of one record: fieldValues holds each field
// as a singleton object {"name": value}.
type wireRecord struct {
	FieldValues        []map[string]record.Value `json:"fieldValues"`
	Hash               string                     `json:"hash,omitempty"`
	ValidationMessages map[string][]string        `json:"validationMessages,omitempty"`
}

func toWire(fs record.FieldSet) wireRecord {
	fv := make([]map[string]record.Value, len(fs.Fields))
	for i, f := range fs.Fields {
		fv[i] = map[string]record.Value{f.Name: f.Value}
	}
	w := wireRecord{FieldValues: fv, Hash: fs.Hash}
	if len(fs.ValidationMessages) > 0 {
		w.ValidationMessages = fs.ValidationMessages
	}
	return w
}

func fromWire(w wireRecord) record.FieldSet {
	fields := make([]record.Field, 0, len(w.FieldValues))
	for _, singleton := range w.FieldValues {
		for name, value := range singleton {
			fields = append(fields, record.Field{Name: name, Value: value})
		}
	}
	return record.FieldSet{
		Fields:             fields,
		Hash:               w.Hash,
		ValidationMessages: w.ValidationMessages,
	}
}

// Writer serializes records one per line, honoring backpressure signalled
// via SetBackpressure: after each write, if the downstream is "full" the
// writer waits for a drain signal before continuing.
type Writer struct {
	w       *bufio.Writer
	full    <-chan struct{}
	drained <-chan struct{}
}

// NewWriter wraps w for NDJSON output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// SetBackpressure wires the full/drained signal channels a downstream
// consumer uses to pace this writer. Either channel may be nil, meaning
// backpressure is never signalled.
func (wr *Writer) SetBackpressure(full, drained <-chan struct{}) {
	wr.full = full
	wr.drained = drained
}

// WriteRecord serializes fs as one JSON line. Empty ValidationMessages maps
// are omitted from the wire form.
func (wr *Writer) WriteRecord(fs record.FieldSet) error {
	line, err := json.Marshal(toWire(fs))
	if err != nil {
		return deltaerr.Wrap(deltaerr.IO, "encode record", err)
	}
	if _, err := wr.w.Write(line); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "write record", err)
	}
	if err := wr.w.WriteByte('\n'); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "write record", err)
	}

	if wr.full != nil {
		select {
		case <-wr.full:
			if wr.drained != nil {
				<-wr.drained
			}
		default:
		}
	}
	return nil
}

// Flush flushes any buffered output to the underlying writer.
func (wr *Writer) Flush() error {
	if err := wr.w.Flush(); err != nil {
		return deltaerr.Wrap(deltaerr.IO, "flush stream", err)
	}
	return nil
}

// Reader yields records one per non-empty line. A malformed line fails the
// whole read with deltaerr.ParseError naming the offending line's prefix.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader wraps r for NDJSON input. The scanner's buffer grows to
// accommodate individual lines up to 64MiB, keeping peak memory bounded by
// the largest single record rather than the whole stream.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &Reader{sc: sc}
}

// ReadRecord returns the next record, or io.EOF once the stream is
// exhausted.
func (rd *Reader) ReadRecord() (record.FieldSet, error) {
	for rd.sc.Scan() {
		line := strings.TrimSpace(rd.sc.Text())
		if line == "" {
			continue
		}
		var w wireRecord
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			return record.FieldSet{}, deltaerr.Wrap(deltaerr.ParseError, fmt.Sprintf("malformed line: %q", truncate(line, 80)), err)
		}
		return fromWire(w), nil
	}
	if err := rd.sc.Err(); err != nil {
		return record.FieldSet{}, deltaerr.Wrap(deltaerr.IO, "read stream", err)
	}
	return record.FieldSet{}, io.EOF
}

// ReadAll drains the reader into a slice. Convenience for backends and
// tests that don't need to stream record-by-record.
func ReadAll(r io.Reader) ([]record.FieldSet, error) {
	rd := NewReader(r)
	var out []record.FieldSet
	for {
		fs, err := rd.ReadRecord()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
}

// WriteAll writes every record in fss to w, one per line, and flushes.
func WriteAll(w io.Writer, fss []record.FieldSet) error {
	wr := NewWriter(w)
	for _, fs := range fss {
		if err := wr.WriteRecord(fs); err != nil {
			return err
		}
	}
	return wr.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
