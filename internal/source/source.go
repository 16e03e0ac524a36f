// Package source provides the event feeds the dispatcher consumes: a JSONL
// reader (stdin or file), a spawned agent CLI subprocess, and a remote
// runtime over websocket. Every source decodes with its own parser and pumps
// envelopes into a buffered channel; the channel closes when the stream
// ends, and Err reports why.
package source

import (
	"bufio"
	"io"

	"agenttree/internal/event"
)

// Source is an ordered stream of decoded events. The core assumes nothing
// about transport beyond ordering and duplicate tolerance.
type Source interface {
	Events() <-chan event.Envelope
	Err() error
	Close() error
}

const (
	chanBuffer = 256
	// Tool payloads (file contents, diffs) can be large single lines.
	maxLineBytes = 8 * 1024 * 1024
)

// pump scans r line by line, parses each into envelopes and sends them.
// Undecodable lines degrade to unknown-kind events rather than stopping the
// stream. Returns the scanner error, if any.
func pump(r io.Reader, p *event.Parser, out chan<- event.Envelope) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		evs, err := p.ParseLine(line)
		if err != nil {
			out <- event.Envelope{Kind: event.KindUnknown, Raw: line}
			continue
		}
		for _, ev := range evs {
			out <- ev
		}
	}
	return scanner.Err()
}
