// Package ingest drives the parser over uploaded files and finalizes their status.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/parser"
)

const (
	formatSampleLines = 10
	maxLineBytes      = 1 << 20
)

// Batch is the result of parsing every line of one file.
type Batch struct {
	Records []domain.Record
	Format  string
	Parsed  int
	Skipped int
}

// Counts summarizes the batch for persistence.
func (b Batch) Counts() domain.IngestCounts {
	return domain.IngestCounts{Format: b.Format, Parsed: b.Parsed, Skipped: b.Skipped}
}

// Pipeline parses line sets with a registry in best-effort mode.
type Pipeline struct {
	registry *parser.Registry
}

// NewPipeline returns a Pipeline; a nil registry selects parser.Default.
func NewPipeline(registry *parser.Registry) Pipeline {
	if registry == nil {
		registry = parser.Default()
	}
	return Pipeline{registry: registry}
}

// Parse normalizes every non-blank line. Lines no variant can turn into a
// record are counted as skipped and otherwise dropped.
func (p Pipeline) Parse(lines []string) Batch {
	var (
		batch  Batch
		sample []string
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if len(sample) < formatSampleLines {
			sample = append(sample, line)
		}
		rec, ok := p.registry.Parse(line)
		if !ok {
			batch.Skipped++
			continue
		}
		batch.Records = append(batch.Records, rec)
		batch.Parsed++
	}
	batch.Format, _ = p.registry.DetectFormat(sample)
	return batch
}

// ParseReader reads every line of r and parses them. Lines longer than
// the line limit are drained and counted as skipped.
func (p Pipeline) ParseReader(r io.Reader) (Batch, error) {
	lines, overlong, err := ReadLines(r)
	if err != nil {
		return Batch{}, err
	}
	batch := p.Parse(lines)
	batch.Skipped += overlong
	return batch, nil
}

// ReadLines reads r fully, one element per line, and reports how many lines
// exceeded the line limit. Overlong lines are discarded without being buffered.
func ReadLines(r io.Reader) ([]string, int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		lines    []string
		buf      []byte
		overlong int
		tooLong  bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			// room for a trailing CRLF
			if len(buf) > maxLineBytes+2 {
				tooLong, buf = true, buf[:0]
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read lines: %w", err)
		}
		eof := err != nil
		if !eof || len(buf) > 0 || tooLong {
			line := strings.TrimRight(string(buf), "\r\n")
			if tooLong || len(line) > maxLineBytes {
				overlong++
			} else {
				lines = append(lines, line)
			}
			buf, tooLong = buf[:0], false
		}
		if eof {
			return lines, overlong, nil
		}
	}
}
