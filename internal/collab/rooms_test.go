package collab

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/starford/scenesync/internal/gateway"
	"github.com/starford/scenesync/internal/models"
)

func setupRooms(t *testing.T) (*RedisRooms, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rooms, err := NewRedisRooms("redis://"+s.Addr(), time.Hour, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedisRooms: %v", err)
	}
	t.Cleanup(func() { rooms.Close() })
	return rooms, s
}

func snapshot() models.Content {
	return models.Content{
		Elements: []models.Element{{ID: "e1", Type: "rectangle", Version: 2}},
		AppState: models.AppState{ViewBackgroundColor: "#fafafa"},
	}
}

func TestJoinEmptyRoom(t *testing.T) {
	rooms, _ := setupRooms(t)
	content, err := rooms.Join(context.Background(), gateway.JoinRequest{RoomID: "r1", RoomKey: "k1", AutoJoin: true})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if content != nil {
		t.Errorf("empty room content = %+v, want nil", content)
	}
	if !rooms.IsActive() || rooms.RoomID() != "r1" {
		t.Error("room should be active after join")
	}
}

func TestLeaveFlushThenRejoin(t *testing.T) {
	rooms, s := setupRooms(t)
	ctx := context.Background()

	_, _ = rooms.Join(ctx, gateway.JoinRequest{RoomID: "r1", RoomKey: "k1"})
	rooms.SetActiveDocumentID("doc-1")
	if err := rooms.Leave(ctx, gateway.LeaveRequest{RoomID: "r1", RoomKey: "k1", Session: rooms.Session(), FlushSave: true, Snapshot: snapshot()}); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if rooms.IsActive() || rooms.ActiveDocumentID() != "" {
		t.Error("room should be inactive after leave")
	}
	if ttl := s.TTL("room:r1"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	content, err := rooms.Join(ctx, gateway.JoinRequest{RoomID: "r1", RoomKey: "k1"})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if content == nil || len(content.Elements) != 1 || content.Elements[0].Version != 2 {
		t.Errorf("content = %+v", content)
	}
}

func TestPayloadIsSealed(t *testing.T) {
	rooms, s := setupRooms(t)
	ctx := context.Background()
	if err := rooms.Save(ctx, "r1", "k1", snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := s.Get("room:r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(raw) == 0 || raw[0] == '{' {
		t.Errorf("payload looks like plaintext: %q", raw)
	}
}

func TestJoinWrongKey(t *testing.T) {
	rooms, _ := setupRooms(t)
	ctx := context.Background()
	_ = rooms.Save(ctx, "r1", "right", snapshot())

	_, err := rooms.Join(ctx, gateway.JoinRequest{RoomID: "r1", RoomKey: "wrong"})
	if !errors.Is(err, ErrBadRoomKey) {
		t.Errorf("err = %v, want ErrBadRoomKey", err)
	}
	if rooms.IsActive() {
		t.Error("failed join must not activate the room")
	}
}

func TestStaleLeaveKeepsNewRoom(t *testing.T) {
	rooms, _ := setupRooms(t)
	ctx := context.Background()

	_, _ = rooms.Join(ctx, gateway.JoinRequest{RoomID: "old", RoomKey: "k"})
	oldSession := rooms.Session()
	_, _ = rooms.Join(ctx, gateway.JoinRequest{RoomID: "new", RoomKey: "k"})
	_ = rooms.Leave(ctx, gateway.LeaveRequest{RoomID: "old", RoomKey: "k", Session: oldSession, FlushSave: true, Snapshot: snapshot()})

	if rooms.RoomID() != "new" {
		t.Errorf("room = %q, want new", rooms.RoomID())
	}
}

func TestStaleLeaveOfRejoinedRoomKeepsSession(t *testing.T) {
	rooms, _ := setupRooms(t)
	ctx := context.Background()

	_, _ = rooms.Join(ctx, gateway.JoinRequest{RoomID: "r1", RoomKey: "k"})
	first := rooms.Session()
	_, _ = rooms.Join(ctx, gateway.JoinRequest{RoomID: "r1", RoomKey: "k"})
	rooms.SetActiveDocumentID("doc-1")
	if rooms.Session() == first {
		t.Fatal("join should start a new session")
	}

	if err := rooms.Leave(ctx, gateway.LeaveRequest{RoomID: "r1", RoomKey: "k", Session: first}); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if !rooms.IsActive() || rooms.ActiveDocumentID() != "doc-1" {
		t.Error("leave of an earlier session must not end the rejoined one")
	}
}

func TestSealOpen(t *testing.T) {
	sealed, err := seal("room", "key", []byte("hello"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	plain, err := open("room", "key", sealed)
	if err != nil || string(plain) != "hello" {
		t.Fatalf("open = %q, %v", plain, err)
	}
	if _, err := open("other-room", "key", sealed); !errors.Is(err, ErrBadRoomKey) {
		t.Errorf("room id is bound as additional data; err = %v", err)
	}
}
