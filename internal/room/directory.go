package room

import (
	"log"
	"sync"

	"liveclass-backend/internal/cache"
	"liveclass-backend/internal/config"
	"liveclass-backend/internal/registry"
	"liveclass-backend/internal/rtc"
	"liveclass-backend/internal/store"
)

// Directory maps a live-class ID to its Room. Rooms are created lazily
// on the first join attempt and evicted once no connection remains, to
// bound memory. Rooms are never addressed through a shared namespace;
// this is the only way to reach one.
type Directory struct {
	gateway store.Gateway
	reg     *registry.Registry
	cache   *cache.RedisClient
	rtcSvc  *rtc.Service
	cfg     config.RoomConfig

	mu    sync.Mutex
	rooms map[int64]*Room
}

// NewDirectory creates an empty Directory.
func NewDirectory(gateway store.Gateway, reg *registry.Registry, cacheClient *cache.RedisClient, rtcSvc *rtc.Service, cfg config.RoomConfig) *Directory {
	return &Directory{
		gateway: gateway,
		reg:     reg,
		cache:   cacheClient,
		rtcSvc:  rtcSvc,
		cfg:     cfg,
		rooms:   make(map[int64]*Room),
	}
}

// GetOrCreate returns the Room for a live class, creating it on first
// use. Hydration from the persistence gateway happens inside the room's
// own critical section, not under the directory lock, so unrelated
// classes are never serialized against each other.
func (d *Directory) GetOrCreate(liveClassID int64) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.rooms[liveClassID]; ok {
		return r
	}

	r := newRoom(liveClassID, d.gateway, d.reg, d.cache, d.rtcSvc, d.cfg)
	d.rooms[liveClassID] = r
	log.Printf("[Directory] Created room for class %d", liveClassID)
	return r
}

// Get returns an existing Room without creating one.
func (d *Directory) Get(liveClassID int64) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[liveClassID]
	return r, ok
}

// ReleaseIfEmpty evicts the room if no connection is joined. Called
// after every leave, disconnect, and kick. Eviction marks the room
// closed under its own lock, so a join racing against it either lands
// before the check (room stays) or observes the closed flag and
// re-fetches from the directory.
func (d *Directory) ReleaseIfEmpty(liveClassID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[liveClassID]
	if !ok {
		return
	}
	if !r.closeIfEmpty() {
		return
	}
	delete(d.rooms, liveClassID)
	log.Printf("[Directory] Released empty room for class %d", liveClassID)
}

// Size returns the number of live rooms, for health reporting.
func (d *Directory) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}
