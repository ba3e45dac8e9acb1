package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"jorra-tryon/internal/models"

	"github.com/google/uuid"
)

var ErrTransferFull = errors.New("transfer store is full")

type transferItem struct {
	result    *models.GenerationResult
	expiresAt time.Time
}

// TransferStore holds generation results between the request that produced them and
// the page that displays them. Every key is consumed by the first Take.
type TransferStore struct {
	mu       sync.Mutex
	items    map[string]transferItem
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

func NewTransferStore(ttl time.Duration, capacity int) *TransferStore {
	return &TransferStore{
		items:    make(map[string]transferItem),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *TransferStore) Put(result *models.GenerationResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	if s.capacity > 0 && len(s.items) >= s.capacity {
		return "", ErrTransferFull
	}

	key := fmt.Sprintf("tryon-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
	s.items[key] = transferItem{result: result, expiresAt: now.Add(s.ttl)}
	return key, nil
}

func (s *TransferStore) Take(key string) (*models.GenerationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return nil, false
	}
	delete(s.items, key)
	if s.now().After(item.expiresAt) {
		return nil, false
	}
	return item.result, true
}

func (s *TransferStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *TransferStore) sweepLocked(now time.Time) {
	for k, item := range s.items {
		if now.After(item.expiresAt) {
			delete(s.items, k)
		}
	}
}

// DataURL embeds the image inline; used when the transfer store cannot take the result.
func DataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "image/png"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
