package status

import (
	"bytes"
	"fmt"
	"image/png"
	"sync"
)

// Icon is a decoded server favicon. The PNG bytes are owned by the Icon and
// dropped on Release.
type Icon struct {
	mu     sync.RWMutex
	data   []byte
	width  int
	height int
}

// DecodeIcon validates PNG data and wraps it in an Icon.
func DecodeIcon(data []byte) (*Icon, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon: %w", err)
	}

	owned := make([]byte, len(data))
	copy(owned, data)

	return &Icon{data: owned, width: cfg.Width, height: cfg.Height}, nil
}

// PNG returns the raw image bytes, or nil once released.
func (i *Icon) PNG() []byte {
	if i == nil {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data
}

// Size returns the image dimensions.
func (i *Icon) Size() (int, int) {
	if i == nil {
		return 0, 0
	}
	return i.width, i.height
}

// Released reports whether the image bytes have been dropped.
func (i *Icon) Released() bool {
	if i == nil {
		return true
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data == nil
}

// Release drops the image bytes.
func (i *Icon) Release() {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.data = nil
	i.mu.Unlock()
}
