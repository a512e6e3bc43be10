// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

const readBufferSize = 1 << 20

type line struct {
	data []byte
	err  error
}

// StdioServerTransport exchanges newline-delimited JSON messages over a
// reader and writer, normally os.Stdin and os.Stdout.
//
// A single reader goroutine feeds Receive for the transport's lifetime, so a
// Receive abandoned through its context does not lose or leak anything. The
// goroutine exits when the reader returns an error.
type StdioServerTransport struct {
	reader *bufio.Reader
	lines  chan line
	start  sync.Once

	writeMu sync.Mutex
	writer  io.Writer

	closeOnce sync.Once
	done      chan struct{}
}

// NewStdioServerTransport creates a transport reading r and writing w.
func NewStdioServerTransport(r io.Reader, w io.Writer) *StdioServerTransport {
	return &StdioServerTransport{
		reader: bufio.NewReaderSize(r, readBufferSize),
		lines:  make(chan line, 1),
		writer: w,
		done:   make(chan struct{}),
	}
}

func (t *StdioServerTransport) readLoop() {
	defer close(t.lines)
	for {
		data, err := t.reader.ReadBytes('\n')
		if len(data) > 0 && err != nil && !errors.Is(err, io.EOF) {
			// Deliver the partial message first, then the failure.
			if !t.deliver(line{data: data}) {
				return
			}
			data = nil
		}
		if !t.deliver(line{data: data, err: err}) || err != nil {
			return
		}
	}
}

func (t *StdioServerTransport) deliver(l line) bool {
	select {
	case t.lines <- l:
		return true
	case <-t.done:
		return false
	}
}

// Send writes message followed by a newline in a single write.
func (t *StdioServerTransport) Send(_ context.Context, message []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	framed := make([]byte, 0, len(message)+1)
	framed = append(framed, message...)
	framed = append(framed, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(framed); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive returns the next non-empty line without its line terminator.
func (t *StdioServerTransport) Receive(ctx context.Context) ([]byte, error) {
	t.start.Do(func() { go t.readLoop() })

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.done:
			return nil, ErrClosed
		case l, ok := <-t.lines:
			if !ok {
				return nil, io.EOF
			}
			msg := bytes.TrimRight(l.data, "\r\n")
			if len(bytes.TrimSpace(msg)) > 0 {
				// A final line without a newline is still a message.
				return msg, nil
			}
			if l.err != nil {
				if errors.Is(l.err, io.EOF) {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("read message: %w", l.err)
			}
		}
	}
}

// Close stops Send and Receive. The underlying reader and writer are left
// open since they are usually the process's standard streams.
func (t *StdioServerTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}
