// Package coordinator owns which scene is displayed and serializes the loads that change it.
//
// At most one load runs at a time. Requests that arrive while a load is in flight
// go into a single queue slot, each overwriting the previous one, and the survivor
// runs once the current load settles. A load never returns an error: failures are
// reported through the configured reporter and leave an empty canvas behind.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/gateway"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sse"
)

// View is the live view target a scene is painted onto.
type View interface {
	SetLoading(loading bool)
	Clear()
	Apply(scene *models.Scene)
	Snapshot() models.Content
}

// Publisher receives load events.
type Publisher interface {
	Publish(event sse.Event)
}

// LoadOptions tune a single LoadDocument call.
type LoadOptions struct {
	IsInitialLoad bool
	// RoomKeyOverride replaces the record's room key, as when joining from a shared link.
	RoomKeyOverride string
	// OnInitialLoad is resolved exactly once with the loaded scene, or nil on failure.
	OnInitialLoad func(*models.Scene)
}

type queued struct {
	ref  models.DocumentRef
	opts LoadOptions
	// startup is set when an initial load's callback rides on this request.
	startup bool
}

// Coordinator loads scenes into a View.
type Coordinator struct {
	persist        gateway.Persistence
	collab         gateway.Collaboration
	collabDisabled bool
	report         func(msg string)
	reinit         func(id string, snapshot []byte)
	pub            Publisher
	logger         *slog.Logger
	tracer         trace.Tracer

	mu      sync.Mutex
	view    View
	loading bool
	slot    *queued
	current *models.DisplayedScene
	scene   *models.Scene
	binding *models.CollabBinding
	// leaves holds the latest pending leave per room id; it is closed once
	// that leave and every earlier one for the room have finished.
	leaves map[string]chan struct{}

	wg sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReporter sets the hook that receives human-readable load failures.
func WithReporter(fn func(msg string)) Option {
	return func(c *Coordinator) { c.report = fn }
}

// WithReinit sets the hook handed the encoded content of every successfully loaded scene.
func WithReinit(fn func(id string, snapshot []byte)) Option {
	return func(c *Coordinator) { c.reinit = fn }
}

// WithPublisher sets where scene.loaded and scene.load_failed events go.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.pub = p }
}

// WithCollaborationDisabled forces every load onto the solo path.
func WithCollaborationDisabled(disabled bool) Option {
	return func(c *Coordinator) { c.collabDisabled = disabled }
}

// New creates a Coordinator. collab may be nil, which disables collaboration.
func New(persist gateway.Persistence, collab gateway.Collaboration, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		persist: persist,
		collab:  collab,
		logger:  logger,
		tracer:  otel.Tracer("github.com/starford/scenesync/internal/coordinator"),
		leaves:  make(map[string]chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AttachView sets the view loads paint onto.
func (c *Coordinator) AttachView(v View) {
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
}

// DetachView removes the view; later loads are no-ops until a view is attached again.
func (c *Coordinator) DetachView() {
	c.mu.Lock()
	c.view = nil
	c.mu.Unlock()
}

// Current returns the displayed scene identity, or nil.
func (c *Coordinator) Current() *models.DisplayedScene {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cur := *c.current
	return &cur
}

// Binding returns the active collaboration binding, or nil.
func (c *Coordinator) Binding() *models.CollabBinding {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == nil {
		return nil
	}
	b := *c.binding
	return &b
}

// Loading reports whether a load is in flight.
func (c *Coordinator) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Wait blocks until detached room leaves and queued loads have settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// LoadDocument makes ref the displayed scene. It blocks until the load settles,
// except when the request is queued behind an in-flight load or is a no-op.
func (c *Coordinator) LoadDocument(ctx context.Context, ref models.DocumentRef, opts LoadOptions) {
	opts.OnInitialLoad = once(opts.OnInitialLoad)

	c.mu.Lock()
	if c.view == nil {
		c.mu.Unlock()
		c.logger.Debug("coordinator: no view attached", slog.String("document", ref.String()))
		opts.OnInitialLoad(nil)
		return
	}
	if c.loading {
		startup := opts.IsInitialLoad
		if c.slot != nil && c.slot.startup {
			// The superseding load settles the startup wait too.
			first, then := c.slot.opts.OnInitialLoad, opts.OnInitialLoad
			opts.OnInitialLoad = func(s *models.Scene) {
				first(s)
				then(s)
			}
			startup = true
		}
		c.slot = &queued{ref: ref, opts: opts, startup: startup}
		c.mu.Unlock()
		c.logger.Debug("coordinator: queued", slog.String("document", ref.String()))
		return
	}
	if !opts.IsInitialLoad && c.current != nil && c.current.SceneID == ref.DocumentID {
		c.mu.Unlock()
		return
	}
	c.loading = true
	c.mu.Unlock()

	c.run(ctx, ref, opts)
}

// run performs one load. The caller must have set c.loading.
func (c *Coordinator) run(ctx context.Context, ref models.DocumentRef, opts LoadOptions) {
	defer c.drain(ctx, ref)

	ctx, span := c.tracer.Start(ctx, "coordinator.load", trace.WithAttributes(
		attribute.String("document.id", ref.DocumentID),
		attribute.String("workspace.id", ref.WorkspaceID),
		attribute.Bool("initial", opts.IsInitialLoad),
	))
	defer span.End()

	c.mu.Lock()
	v := c.view
	if v == nil {
		c.mu.Unlock()
		opts.OnInitialLoad(nil)
		return
	}
	prev := c.binding
	c.binding = nil
	c.mu.Unlock()

	if prev != nil && c.collab != nil {
		// Captured before the clear below so last-second edits reach the room.
		c.leave(ctx, gateway.LeaveRequest{
			RoomID:    prev.RoomID,
			RoomKey:   prev.RoomKey,
			Session:   prev.Session,
			FlushSave: true,
			Snapshot:  v.Snapshot(),
		})
	}

	if !opts.IsInitialLoad {
		v.SetLoading(true)
		v.Clear()
	}

	scene, binding, err := c.fetch(ctx, ref, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.fail(v, ref, opts, err)
		return
	}
	span.SetAttributes(attribute.Bool("collaborative", binding != nil))
	c.succeed(v, ref, opts, scene, binding)
}

func (c *Coordinator) fetch(ctx context.Context, ref models.DocumentRef, opts LoadOptions) (*models.Scene, *models.CollabBinding, error) {
	record, err := c.persist.FetchDocumentRecord(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch record: %w", err)
	}

	if !c.eligible(record) {
		content, err := c.fetchContent(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		return &models.Scene{Record: *record, Content: *content}, nil, nil
	}

	key := opts.RoomKeyOverride
	if key == "" {
		key = record.RoomKey
	}
	// A leave of this room still in flight would flush after our read.
	if err := c.awaitLeave(ctx, record.RoomID); err != nil {
		return nil, nil, fmt.Errorf("wait for room leave: %w", err)
	}
	content, err := c.collab.Join(ctx, gateway.JoinRequest{RoomID: record.RoomID, RoomKey: key, AutoJoin: true})
	if err != nil {
		return nil, nil, fmt.Errorf("join room: %w", err)
	}
	session := c.collab.Session()
	if content == nil {
		// Empty room: seed it from the persisted scene.
		content, err = c.fetchContent(ctx, ref)
		if err != nil {
			c.leave(ctx, gateway.LeaveRequest{RoomID: record.RoomID, RoomKey: key, Session: session})
			return nil, nil, err
		}
	}
	binding := &models.CollabBinding{RoomID: record.RoomID, RoomKey: key, Session: session, AutoJoined: true}
	return &models.Scene{Record: *record, Content: *content}, binding, nil
}

func (c *Coordinator) eligible(record *models.SceneRecord) bool {
	return c.collab != nil && !c.collabDisabled && record.HasRoom() && record.AccessRights.CanCollaborate()
}

func (c *Coordinator) fetchContent(ctx context.Context, ref models.DocumentRef) (*models.Content, error) {
	data, err := c.persist.FetchContentBytes(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	content, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return content, nil
}

func (c *Coordinator) succeed(v View, ref models.DocumentRef, opts LoadOptions, scene *models.Scene, binding *models.CollabBinding) {
	v.Apply(scene)

	rec := scene.Record
	c.mu.Lock()
	c.current = &models.DisplayedScene{
		SceneID:       rec.ID,
		WorkspaceID:   rec.WorkspaceID,
		Title:         rec.Title,
		AccessRights:  rec.AccessRights,
		WorkspaceSlug: rec.WorkspaceSlug,
	}
	c.scene = scene
	c.binding = binding
	c.mu.Unlock()

	if c.collab != nil {
		if binding != nil {
			c.collab.SetActiveDocumentID(rec.ID)
		} else {
			c.collab.SetActiveDocumentID("")
		}
	}

	v.SetLoading(false)
	opts.OnInitialLoad(scene)

	if c.reinit != nil {
		snapshot, err := codec.Encode(scene.Content)
		if err != nil {
			c.logger.Warn("coordinator: encode snapshot", slog.String("document", ref.String()), slog.String("error", err.Error()))
		} else {
			c.reinit(rec.ID, snapshot)
		}
	}

	c.logger.Info("coordinator: loaded",
		slog.String("document", ref.String()),
		slog.Bool("collaborative", binding != nil),
	)
	c.publish(sse.TypeSceneLoaded, map[string]any{
		"workspace_id":  ref.WorkspaceID,
		"document_id":   ref.DocumentID,
		"title":         rec.Title,
		"collaborative": binding != nil,
	})
}

func (c *Coordinator) fail(v View, ref models.DocumentRef, opts LoadOptions, err error) {
	msg := Describe(err)
	c.logger.Error("coordinator: load failed", slog.String("document", ref.String()), slog.String("error", err.Error()))
	if c.report != nil {
		c.report(msg)
	}

	v.Clear()
	c.mu.Lock()
	c.current = nil
	c.scene = nil
	c.binding = nil
	c.mu.Unlock()
	v.SetLoading(false)
	opts.OnInitialLoad(nil)

	c.publish(sse.TypeSceneLoadFailed, map[string]string{
		"workspace_id": ref.WorkspaceID,
		"document_id":  ref.DocumentID,
		"message":      msg,
	})
}

// drain releases the in-flight flag or hands it to the queued request.
func (c *Coordinator) drain(ctx context.Context, done models.DocumentRef) {
	c.mu.Lock()
	next := c.slot
	c.slot = nil
	if next == nil || next.ref.DocumentID == done.DocumentID {
		c.loading = false
		scene := c.scene
		c.mu.Unlock()
		if next != nil {
			// Already displayed by the load that just finished.
			next.opts.OnInitialLoad(scene)
		}
		return
	}
	// c.loading stays set so nothing overtakes the queued request.
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(context.WithoutCancel(ctx), next.ref, next.opts)
	}()
}

// leave runs req detached. Leaves of the same room run in order.
func (c *Coordinator) leave(ctx context.Context, req gateway.LeaveRequest) {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	before := c.leaves[req.RoomID]
	c.leaves[req.RoomID] = done
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			if c.leaves[req.RoomID] == done {
				delete(c.leaves, req.RoomID)
			}
			c.mu.Unlock()
			close(done)
		}()
		if before != nil {
			<-before
		}
		if err := c.collab.Leave(ctx, req); err != nil {
			c.logger.Warn("coordinator: leave room failed", slog.String("room", req.RoomID), slog.String("error", err.Error()))
		}
	}()
}

// awaitLeave blocks until no leave of roomID is pending.
func (c *Coordinator) awaitLeave(ctx context.Context, roomID string) error {
	c.mu.Lock()
	pending := c.leaves[roomID]
	c.mu.Unlock()
	if pending == nil {
		return nil
	}
	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) publish(typ string, data any) {
	if c.pub != nil {
		c.pub.Publish(sse.Event{Type: typ, Data: data})
	}
}

func once(fn func(*models.Scene)) func(*models.Scene) {
	if fn == nil {
		return func(*models.Scene) {}
	}
	var o sync.Once
	return func(s *models.Scene) {
		o.Do(func() { fn(s) })
	}
}
