package command

import (
	"context"
	"sync"

	"pkt.systems/cellbook/schema"
)

// Clipboard stores one serialized cell between copy and paste.
type Clipboard interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context) ([]byte, error)
}

// MemoryClipboard is a process-local Clipboard.
type MemoryClipboard struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryClipboard returns an empty clipboard.
func NewMemoryClipboard() *MemoryClipboard {
	return &MemoryClipboard{}
}

// Write replaces the clipboard contents.
func (c *MemoryClipboard) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append([]byte(nil), data...)
	return nil
}

// Read returns the clipboard contents or schema.ErrClipboardEmpty.
func (c *MemoryClipboard) Read(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) == 0 {
		return nil, schema.ErrClipboardEmpty
	}
	return append([]byte(nil), c.data...), nil
}
