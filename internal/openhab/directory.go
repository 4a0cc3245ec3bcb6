package openhab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

// Item is one entry of the openHAB item listing.
type Item struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	State      string   `json:"state"`
	Label      string   `json:"label,omitempty"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	GroupNames []string `json:"groupNames,omitempty"`
	Link       string   `json:"link,omitempty"`
}

// ItemDirectory is a complete snapshot from one listing fetch. It is
// never modified after construction.
type ItemDirectory struct {
	Items     []Item
	FetchedAt time.Time

	// Raw is the listing exactly as the server returned it.
	Raw json.RawMessage

	index map[string]int
}

func newItemDirectory(raw []byte, fetchedAt time.Time) (*ItemDirectory, error) {
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: item listing: %w", ErrMalformedMessage, err)
	}
	d := &ItemDirectory{
		Items:     items,
		FetchedAt: fetchedAt,
		Raw:       json.RawMessage(raw),
		index:     make(map[string]int, len(items)),
	}
	for i, it := range items {
		d.index[it.Name] = i
	}
	return d, nil
}

// Lookup returns the named item.
func (d *ItemDirectory) Lookup(name string) (Item, bool) {
	i, ok := d.index[name]
	if !ok {
		return Item{}, false
	}
	return d.Items[i], true
}

// Names returns the item names in listing order.
func (d *ItemDirectory) Names() []string {
	names := make([]string, len(d.Items))
	for i, it := range d.Items {
		names[i] = it.Name
	}
	return names
}

// ItemListKey is the global store key under which the listing of host is
// persisted.
func ItemListKey(host string) string {
	return "openhab-v2-itemList:" + host
}

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	// Base is the controller base URL.
	Base string
	// Host names the server in logs and in the persisted store key.
	Host      string
	Requester Requester
	// Timeout bounds one shared listing fetch. It is independent of the
	// callers' contexts. Defaults to config.DefaultRequestTimeout seconds.
	Timeout time.Duration
	// Store, when set, persists every successful listing and seeds the
	// cache at construction.
	Store  store.Store
	Logger Logger
}

// Directory caches the item listing of one server. A failed fetch leaves
// the cache absent, so callers must read a nil directory as "unknown"
// rather than "no items".
//
// Thread Safety: all methods are safe for concurrent use. Concurrent
// fetches are collapsed into one request.
type Directory struct {
	base      string        // controller base URL
	host      string        // log label and persisted key suffix
	requester Requester     // issues the listing GET
	timeout   time.Duration // bound of one shared fetch
	store     store.Store   // optional persistence, nil when disabled
	logger    Logger

	group singleflight.Group // keyed "items"

	mu       sync.RWMutex
	snapshot *ItemDirectory // nil while unknown
}

// NewDirectory creates a directory, loading a persisted listing if the
// store holds one.
func NewDirectory(opts DirectoryOptions) *Directory {
	d := &Directory{
		base:      opts.Base,
		host:      opts.Host,
		requester: opts.Requester,
		timeout:   opts.Timeout,
		store:     opts.Store,
		logger:    orNoop(opts.Logger),
	}
	if d.timeout <= 0 {
		d.timeout = config.DefaultRequestTimeout * time.Second
	}
	d.load()
	return d
}

func (d *Directory) load() {
	if d.store == nil {
		return
	}
	raw, ok := store.GetString(context.Background(), d.store, store.Global, ItemListKey(d.host))
	if !ok {
		return
	}
	snap, err := newItemDirectory([]byte(raw), time.Time{})
	if err != nil {
		d.logger.Warn("ignoring persisted item list", "host", d.host, "error", err)
		return
	}
	d.snapshot = snap
}

// Get returns the cached snapshot unless force is set or none is cached,
// in which case the listing is fetched.
//
// Concurrent fetches share one request, which runs detached from every
// caller's context and is bounded by the directory timeout. A caller
// whose ctx ends stops waiting and gets ctx's error; the shared fetch
// carries on for the others.
//
// Parameters:
//   - ctx: bounds how long this caller waits
//   - force: re-fetch even when a snapshot is cached
//
// Returns:
//   - *ItemDirectory: the snapshot, nil on error
//   - error: the fetch error, or ctx's error wrapped in ErrRequestFailed.
//     On a fetch error the cache is cleared.
func (d *Directory) Get(ctx context.Context, force bool) (*ItemDirectory, error) {
	if !force {
		if snap := d.Cached(); snap != nil {
			return snap, nil
		}
	}

	ch := d.group.DoChan("items", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		return d.fetch(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ItemDirectory), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, ctx.Err())
	}
}

func (d *Directory) fetch(ctx context.Context) (*ItemDirectory, error) {
	if d.requester == nil {
		return nil, errors.New("openhab: directory has no requester")
	}

	body, err := fetch(ctx, d.requester, ItemsURL(d.base))
	var snap *ItemDirectory
	if err == nil {
		snap, err = newItemDirectory(body, time.Now())
	}

	d.mu.Lock()
	d.snapshot = snap
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("item list refresh failed", "host", d.host, "error", err)
		return nil, err
	}

	d.logger.Debug("item list refreshed", "host", d.host, "items", len(snap.Items))
	if d.store != nil {
		if perr := d.store.Set(ctx, store.Global, ItemListKey(d.host), string(body)); perr != nil {
			d.logger.Warn("persisting item list failed", "host", d.host, "error", perr)
		}
	}
	return snap, nil
}

// Cached returns the current snapshot without fetching, or nil.
func (d *Directory) Cached() *ItemDirectory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// DirectoryPool shares one Directory per base URL across controllers.
type DirectoryPool struct {
	mu    sync.Mutex
	byURL map[string]*Directory
}

// NewDirectoryPool creates an empty pool.
func NewDirectoryPool() *DirectoryPool {
	return &DirectoryPool{byURL: make(map[string]*Directory)}
}

// Directory returns the pooled directory for opts.Base, creating it from
// opts on first use. Later options for the same base are ignored.
func (p *DirectoryPool) Directory(opts DirectoryOptions) *Directory {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.byURL[opts.Base]; ok {
		return d
	}
	d := NewDirectory(opts)
	p.byURL[opts.Base] = d
	return d
}
