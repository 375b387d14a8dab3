package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/starford/scenesync/internal/collab"
	"github.com/starford/scenesync/internal/gateway"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/view"
)

// slowRooms holds every leave until gate is closed.
type slowRooms struct {
	*collab.RedisRooms
	gate    chan struct{}
	leaving chan string
}

func (r *slowRooms) Leave(ctx context.Context, req gateway.LeaveRequest) error {
	r.leaving <- req.RoomID
	<-r.gate
	return r.RedisRooms.Leave(ctx, req)
}

func TestRejoinWaitsForPendingLeave(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	backing, err := collab.NewRedisRooms("redis://"+mr.Addr(), time.Hour, logger)
	if err != nil {
		t.Fatalf("NewRedisRooms: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	rooms := &slowRooms{RedisRooms: backing, gate: make(chan struct{}), leaving: make(chan string, 4)}

	persist := newFakePersistence()
	persist.add(t, shared("A"), contentOf("A", 1))
	persist.add(t, solo("X"), contentOf("X", 1))

	coord := New(persist, rooms, logger)
	canvas := view.New(nil)
	coord.AttachView(canvas)

	coord.LoadDocument(context.Background(), refOf("A"), LoadOptions{})
	edited := models.Content{
		Elements: append(contentOf("A", 1).Elements, models.Element{ID: "late", Type: "rectangle", Version: 1}),
		AppState: models.AppState{ViewBackgroundColor: "#ffffff"},
	}
	canvas.Update(edited)

	coord.LoadDocument(context.Background(), refOf("X"), LoadOptions{})
	select {
	case room := <-rooms.leaving:
		if room != "room-A" {
			t.Fatalf("leaving %q, want room-A", room)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leave of room-A never started")
	}

	done := make(chan struct{})
	go func() {
		coord.LoadDocument(context.Background(), refOf("A"), LoadOptions{})
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("rejoin finished before the pending leave flushed")
	case <-time.After(50 * time.Millisecond):
	}

	close(rooms.gate)
	<-done
	coord.Wait()

	if b := coord.Binding(); b == nil || b.RoomID != "room-A" {
		t.Fatalf("binding = %+v, want room-A", b)
	}
	if !rooms.IsActive() || rooms.RoomID() != "room-A" {
		t.Error("gateway should stay joined to the rejoined room")
	}
	if got := rooms.ActiveDocumentID(); got != "A" {
		t.Errorf("active document = %q, want A", got)
	}
	if n := len(canvas.Snapshot().Elements); n != 2 {
		t.Errorf("canvas elements = %d, want the 2 flushed before the rejoin", n)
	}
}
