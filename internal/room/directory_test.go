package room

import (
	"context"
	"errors"
	"testing"

	"liveclass-backend/internal/model"
	"liveclass-backend/internal/registry"
)

func TestGetOrCreateReturnsSameRoom(t *testing.T) {
	gw := newMockGateway()
	reg := registry.New()
	d := NewDirectory(gw, reg, nil, nil, testRoomConfig())

	r1 := d.GetOrCreate(1)
	r2 := d.GetOrCreate(1)
	if r1 != r2 {
		t.Fatal("expected the same room instance for the same class")
	}
	if r1.LiveClassID() != 1 {
		t.Fatalf("room bound to class %d, want 1", r1.LiveClassID())
	}

	other := d.GetOrCreate(2)
	if other == r1 {
		t.Fatal("distinct classes share a room")
	}
	if d.Size() != 2 {
		t.Fatalf("expected 2 rooms, got %d", d.Size())
	}
}

func TestGetDoesNotCreate(t *testing.T) {
	d := NewDirectory(newMockGateway(), registry.New(), nil, nil, testRoomConfig())

	if _, ok := d.Get(7); ok {
		t.Fatal("Get created a room")
	}
	d.GetOrCreate(7)
	if _, ok := d.Get(7); !ok {
		t.Fatal("existing room not found")
	}
}

func TestReleaseIfEmptyEvictsOnlyEmptyRooms(t *testing.T) {
	gw := newMockGateway()
	gw.addClass(1, model.ClassLive)
	reg := registry.New()
	d := NewDirectory(gw, reg, nil, nil, testRoomConfig())

	r := d.GetOrCreate(1)

	ft := &fakeTransport{}
	c := registry.NewConn(200, model.RoleStudent, "Alice", ft, 64, nil)
	reg.Register(c)
	go c.WritePump()
	if err := r.Join(context.Background(), c); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Occupied: the room survives.
	d.ReleaseIfEmpty(1)
	if _, ok := d.Get(1); !ok {
		t.Fatal("occupied room was evicted")
	}

	reg.Unregister(c)
	if err := r.Disconnect(context.Background(), c); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}

	d.ReleaseIfEmpty(1)
	if _, ok := d.Get(1); ok {
		t.Fatal("empty room was not evicted")
	}

	// A later join gets a fresh room.
	if again := d.GetOrCreate(1); again == r {
		t.Fatal("evicted room instance was reused")
	}
}

func TestJoinAfterEvictionRetargetsFreshRoom(t *testing.T) {
	gw := newMockGateway()
	gw.addClass(1, model.ClassLive)
	reg := registry.New()
	d := NewDirectory(gw, reg, nil, nil, testRoomConfig())

	// A teardown's eviction can land between a joiner's room lookup and
	// its Join call. The evicted instance must refuse the join so the
	// class never splits across two rooms.
	stale := d.GetOrCreate(1)
	d.ReleaseIfEmpty(1)

	ft := &fakeTransport{}
	c := registry.NewConn(200, model.RoleStudent, "Alice", ft, 64, nil)
	reg.Register(c)
	go c.WritePump()

	if err := stale.Join(context.Background(), c); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed from evicted room, got %v", err)
	}
	if !stale.Empty() {
		t.Fatal("evicted room admitted a connection")
	}

	fresh := d.GetOrCreate(1)
	if fresh == stale {
		t.Fatal("directory served the evicted room instance")
	}
	if err := fresh.Join(context.Background(), c); err != nil {
		t.Fatalf("join on fresh room failed: %v", err)
	}
	if got, ok := d.Get(1); !ok || got != fresh {
		t.Fatal("directory no longer serves the room the user joined")
	}
}

func TestReleaseIfEmptyUnknownRoom(t *testing.T) {
	d := NewDirectory(newMockGateway(), registry.New(), nil, nil, testRoomConfig())
	d.ReleaseIfEmpty(42) // must be a no-op
	if d.Size() != 0 {
		t.Fatalf("expected no rooms, got %d", d.Size())
	}
}
