package reconciler

import (
	"sync"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

type codeKey struct {
	userID string
	code   string
}

// ItemCache is the reconciler's view of the inventory, keyed by item id
// and indexed by (user, product code). Entries only move forward in
// version. Writes come from a single goroutine; reads may come from any.
type ItemCache struct {
	mu     sync.RWMutex
	items  map[string]domain.Item
	byCode map[codeKey]string
	owners map[string]map[string]struct{} // product code -> user ids
}

func NewItemCache() *ItemCache {
	return &ItemCache{
		items:  make(map[string]domain.Item),
		byCode: make(map[codeKey]string),
		owners: make(map[string]map[string]struct{}),
	}
}

// Apply folds one inventory change into the cache. It reports whether the
// cache changed. Malformed documents are returned as errors and ignored.
func (c *ItemCache) Apply(ch docstore.Change) (bool, error) {
	if ch.Kind == docstore.Removed {
		c.mu.Lock()
		defer c.mu.Unlock()
		it, ok := c.items[ch.Doc.ID]
		if !ok {
			return false, nil
		}
		c.remove(it)
		return true, nil
	}
	it, err := domain.DecodeItem(ch.Doc)
	if err != nil {
		return false, err
	}
	return c.Put(it), nil
}

// Put stores it unless the cache already holds the same or a newer version.
func (c *ItemCache) Put(it domain.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.items[it.ID]; ok {
		if cur.Version >= it.Version {
			return false
		}
		c.remove(cur)
	}
	c.items[it.ID] = it
	c.byCode[codeKey{it.UserID, it.ProductCode}] = it.ID
	users, ok := c.owners[it.ProductCode]
	if !ok {
		users = make(map[string]struct{})
		c.owners[it.ProductCode] = users
	}
	users[it.UserID] = struct{}{}
	return true
}

func (c *ItemCache) Get(id string) (domain.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// Resolve finds the item for a product code. An empty userID matches only
// when a single owner holds the code. The second result is a skip reason.
func (c *ItemCache) Resolve(userID, code string) (domain.Item, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if userID == "" {
		users := c.owners[code]
		switch len(users) {
		case 0:
			return domain.Item{}, domain.SkipNoMatch
		case 1:
			for u := range users {
				userID = u
			}
		default:
			return domain.Item{}, domain.SkipAmbiguous
		}
	}
	id, ok := c.byCode[codeKey{userID, code}]
	if !ok {
		return domain.Item{}, domain.SkipNoMatch
	}
	return c.items[id], ""
}

func (c *ItemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// remove must be called with c.mu held.
func (c *ItemCache) remove(it domain.Item) {
	delete(c.items, it.ID)
	k := codeKey{it.UserID, it.ProductCode}
	if c.byCode[k] == it.ID {
		delete(c.byCode, k)
		if users := c.owners[it.ProductCode]; users != nil {
			delete(users, it.UserID)
			if len(users) == 0 {
				delete(c.owners, it.ProductCode)
			}
		}
	}
}
