package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker records which symbols have been written for a target end
// date so an interrupted gather resumes where it stopped. The file's first
// line is the end date; each further line is a finished symbol. A tracker
// opened for a different end date starts over.
type progressTracker struct {
	mu     sync.Mutex
	path   string
	done   map[string]struct{}
	file   *os.File
	writer *bufio.Writer
}

// newProgressTracker opens the .progress file under dir for endDate.
func newProgressTracker(dir, endDate string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	pt := &progressTracker{
		path: filepath.Join(dir, ".progress"),
		done: make(map[string]struct{}),
	}

	fresh := true
	if data, err := os.ReadFile(pt.path); err == nil {
		lines := strings.Split(string(data), "\n")
		if strings.TrimSpace(lines[0]) == endDate {
			fresh = false
			for _, line := range lines[1:] {
				if sym := strings.TrimSpace(line); sym != "" {
					pt.done[sym] = struct{}{}
				}
			}
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if fresh {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(pt.path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pt.path, err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)
	if fresh {
		if _, err := pt.writer.WriteString(endDate + "\n"); err != nil {
			f.Close()
			return nil, err
		}
		if err := pt.writer.Flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pt, nil
}

// Done reports whether symbol was already written for this end date.
func (p *progressTracker) Done(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// MarkDone records symbols as written.
func (p *progressTracker) MarkDone(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := p.done[sym]; ok {
			continue
		}
		p.done[sym] = struct{}{}
		if _, err := p.writer.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing progress: %w", err)
		}
	}
	return p.writer.Flush()
}

// Close flushes and closes the progress file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writer.Flush(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
