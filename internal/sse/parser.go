// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse splits an incrementally arriving server-sent event stream into
// decoded records.
//
// Frames are separated by a blank line ("\n\n"). Inside a frame only the line
// starting with "data: " is read; its remainder is a JSON object with the
// optional fields "token" (string) and "done" (bool). Any other keys are kept
// as passthrough fields.
//
//	p := sse.NewParser(logger)
//	for _, rec := range p.Feed(chunk) {
//	    if tok, ok := rec.TokenText(); ok { ... }
//	}
package sse

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// FrameSeparator terminates every frame.
	FrameSeparator = "\n\n"

	// DataPrefix marks the payload line inside a frame.
	DataPrefix = "data: "
)

// ErrNotObject is returned by Decode when the payload is JSON null.
var ErrNotObject = errors.New("sse: payload is not a JSON object")

// =============================================================================
// RECORD
// =============================================================================

// Record is the decoded payload of one frame.
type Record struct {
	// Token is the text fragment to append, if present.
	Token *string

	// Done is set on the completion record.
	Done bool

	// Fields holds every key of the payload, including token and done.
	Fields map[string]json.RawMessage
}

// TokenText returns the token fragment and whether one was present.
func (r Record) TokenText() (string, bool) {
	if r.Token == nil {
		return "", false
	}
	return *r.Token, true
}

// Field decodes the passthrough field key into v. It reports false when the
// key is absent or does not decode.
func (r Record) Field(key string, v any) bool {
	raw, ok := r.Fields[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Decode parses a single payload. The payload must be a JSON object; a token
// or done value of the wrong type is an error.
func Decode(payload string) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Record{}, err
	}
	if fields == nil {
		return Record{}, ErrNotObject
	}

	rec := Record{Fields: fields}
	if raw, ok := fields["token"]; ok && string(raw) != "null" {
		var tok string
		if err := json.Unmarshal(raw, &tok); err != nil {
			return Record{}, err
		}
		rec.Token = &tok
	}
	if raw, ok := fields["done"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &rec.Done); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// =============================================================================
// PARSER
// =============================================================================

// Parser turns text chunks into records, carrying incomplete frames over to
// the next call. A Parser is not safe for concurrent use.
type Parser struct {
	buf     strings.Builder
	skipped int
	logger  *slog.Logger
}

// NewParser creates a parser. A nil logger uses slog.Default().
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Feed appends chunk to the carry-over buffer and returns the records of all
// frames completed by it, in arrival order. Text after the last separator is
// retained for the next call.
func (p *Parser) Feed(chunk string) []Record {
	p.buf.WriteString(chunk)
	text := p.buf.String()

	last := strings.LastIndex(text, FrameSeparator)
	if last < 0 {
		return nil
	}

	complete, rest := text[:last], text[last+len(FrameSeparator):]
	p.buf.Reset()
	p.buf.WriteString(rest)

	var records []Record
	for _, frame := range strings.Split(complete, FrameSeparator) {
		if rec, ok := p.parseFrame(frame); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Flush parses whatever is left in the buffer as a final frame and clears it.
// Call it once the transport reports end of stream.
func (p *Parser) Flush() []Record {
	rest := p.buf.String()
	p.buf.Reset()
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	if rec, ok := p.parseFrame(rest); ok {
		return []Record{rec}
	}
	return nil
}

// Remainder returns the unconsumed carry-over text.
func (p *Parser) Remainder() string {
	return p.buf.String()
}

// Skipped returns how many data frames failed to decode.
func (p *Parser) Skipped() int {
	return p.skipped
}

// parseFrame extracts the record of a single frame. Frames without a data
// line yield nothing.
func (p *Parser) parseFrame(frame string) (Record, bool) {
	payload, ok := dataLine(frame)
	if !ok {
		return Record{}, false
	}
	rec, err := Decode(payload)
	if err != nil {
		p.skipped++
		p.logger.Warn("skipping malformed stream frame",
			"error", err,
			"payload", truncate(payload, 120))
		return Record{}, false
	}
	return rec, true
}

// dataLine returns the payload of the first "data: " line in frame.
func dataLine(frame string) (string, bool) {
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, DataPrefix) {
			return line[len(DataPrefix):], true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
