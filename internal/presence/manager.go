package presence

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/engagements"
	"fieldserve/dispatch/dispatch-backend/internal/events"
	"fieldserve/dispatch/dispatch-backend/internal/matching"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/pkg/geocell"
)

// EngagementLocator resolves a provider's current active booking. The
// engagements repository satisfies it.
type EngagementLocator interface {
	FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*engagements.Engagement, error)
}

// Manager owns every live socket session and routes events to the
// per-actor, per-engagement and nearby-cell channels. It implements
// events.Broadcaster; deliveries are fire-and-forget and a slow session
// is dropped rather than awaited.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	hub      *Hub
	upgrader websocket.Upgrader

	providers   providers.Repository
	engagements EngagementLocator
	matcher     *matching.Service
	policy      config.PolicyConfig
	logger      *zap.Logger

	// Pending offline timers per provider, cancelled on reconnect.
	graceMu sync.Mutex
	grace   map[string]*time.Timer
}

// Session represents one authenticated socket. Send stays open for the
// session's whole lifetime; done tells the write pump to stop.
type Session struct {
	ID           string
	ActorID      string
	Role         string
	Conn         *websocket.Conn
	Send         chan Message
	done         chan struct{}
	LastActivity time.Time

	// Cells is the searcher's nearby subscription footprint; Engagements
	// are the booking channels this session is tracking.
	Cells       []string
	Engagements map[string]bool
	mu          sync.Mutex
}

// Hub manages session lifecycle.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	stop       chan struct{}
}

// NewManager creates a new presence manager
func NewManager(providerRepo providers.Repository, engagementRepo EngagementLocator, matcher *matching.Service, policy config.PolicyConfig, logger *zap.Logger) *Manager {
	hub := &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		stop:       make(chan struct{}),
	}

	m := &Manager{
		sessions:    make(map[string]*Session),
		hub:         hub,
		providers:   providerRepo,
		engagements: engagementRepo,
		matcher:     matcher,
		policy:      policy,
		logger:      logger,
		grace:       make(map[string]*time.Timer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin allow-listing happens at the edge proxy.
				return true
			},
		},
	}

	go hub.run()
	return m
}

// HandleConnection upgrades an authenticated request and starts the
// session pumps. A provider reconnecting within the grace window keeps
// their online status.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, actor auth.Actor) (*Session, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	session := &Session{
		ID:           uuid.New().String(),
		ActorID:      actor.ID,
		Role:         actor.Role,
		Conn:         conn,
		Send:         make(chan Message, 256),
		done:         make(chan struct{}),
		LastActivity: time.Now(),
		Engagements:  make(map[string]bool),
	}

	if actor.Role == auth.RoleProvider {
		m.cancelGrace(actor.ID)
	}

	m.hub.register <- session

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	go m.readPump(session)
	go m.writePump(session)

	m.logger.Info("Session connected",
		zap.String("session_id", session.ID),
		zap.String("actor_id", actor.ID),
		zap.String("role", actor.Role))
	return session, nil
}

// readPump pumps messages from the socket into the handler
func (m *Manager) readPump(session *Session) {
	defer func() {
		// Leave the routing table before the hub stops the write pump so
		// broadcasters never race a departing session.
		m.mu.Lock()
		delete(m.sessions, session.ID)
		m.mu.Unlock()
		m.hub.unregister <- session
		session.Conn.Close()
		m.startGrace(session)
	}()

	session.Conn.SetReadLimit(4096)
	session.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	session.Conn.SetPongHandler(func(string) error {
		session.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := session.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("Socket read error", zap.Error(err))
			}
			break
		}

		session.mu.Lock()
		session.LastActivity = time.Now()
		session.mu.Unlock()

		m.handleMessage(session, &msg)
	}
}

// writePump pumps queued messages to the socket and keeps it alive
func (m *Manager) writePump(session *Session) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		session.Conn.Close()
	}()

	for {
		select {
		case message := <-session.Send:
			session.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := session.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-session.done:
			session.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			session.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			session.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := session.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) handleMessage(session *Session, msg *Message) {
	ctx := context.Background()

	switch msg.Type {
	case MsgSetAvailability:
		m.handleSetAvailability(ctx, session, msg)
	case MsgLocationUpdate:
		m.handleLocationUpdate(ctx, session, msg)
	case MsgRequestNearby:
		m.handleRequestNearby(ctx, session, msg)
	case MsgTrackEngagement:
		if id, ok := msg.Data["engagement_id"].(string); ok {
			session.mu.Lock()
			session.Engagements[id] = true
			// A session watches the nearby channel or an engagement,
			// never both; tracked movements must not leak to searchers.
			session.Cells = nil
			session.mu.Unlock()
		}
	case MsgUntrack:
		if id, ok := msg.Data["engagement_id"].(string); ok {
			session.mu.Lock()
			delete(session.Engagements, id)
			session.mu.Unlock()
		}
	default:
		m.deliver(session, errorMessage("UNKNOWN_TYPE", "unknown message type "+msg.Type))
	}
}

// handleSetAvailability flips a provider between online and offline.
// Going online requires a current approval.
func (m *Manager) handleSetAvailability(ctx context.Context, session *Session, msg *Message) {
	if session.Role != auth.RoleProvider {
		m.deliver(session, errorMessage("FORBIDDEN", "only providers set availability"))
		return
	}
	status, _ := msg.Data["status"].(string)
	availability := providers.Availability(status)
	if availability != providers.AvailabilityOnline && availability != providers.AvailabilityOffline && availability != providers.AvailabilityBusy {
		m.deliver(session, errorMessage("BAD_STATUS", "unknown availability "+status))
		return
	}

	providerID, err := uuid.Parse(session.ActorID)
	if err != nil {
		m.deliver(session, errorMessage("BAD_ACTOR", "invalid provider id"))
		return
	}

	if availability == providers.AvailabilityOnline {
		p, err := m.providers.Get(ctx, providerID)
		if err != nil {
			m.deliver(session, errorMessage("STORAGE", "could not load provider"))
			return
		}
		if !p.Eligible(time.Now()) {
			m.deliver(session, errorMessage("NOT_ELIGIBLE", "verification approval required to go online"))
			return
		}
	}

	if err := m.providers.UpdateAvailability(ctx, providerID, availability); err != nil {
		m.deliver(session, errorMessage("STORAGE", "could not update availability"))
		return
	}

	m.ToSearchers("", events.ProviderStatusChanged, map[string]interface{}{
		"provider_id": session.ActorID,
		"status":      string(availability),
	})
	m.deliver(session, outbound(events.ProviderStatusChanged, map[string]interface{}{"status": string(availability)}))
}

// handleLocationUpdate stores the provider's latest coordinate and fans
// the live position out. Routing follows the stored state, never the
// session's own claims: a provider on an active booking reaches that
// booking's channel only, and the nearby channel sees only providers
// who are online with a current approval.
func (m *Manager) handleLocationUpdate(ctx context.Context, session *Session, msg *Message) {
	if session.Role != auth.RoleProvider {
		m.deliver(session, errorMessage("FORBIDDEN", "only providers report location"))
		return
	}
	lat, latOK := msg.Data["lat"].(float64)
	lng, lngOK := msg.Data["lng"].(float64)
	if !latOK || !lngOK {
		m.deliver(session, errorMessage("BAD_COORDINATE", "lat and lng are required numbers"))
		return
	}

	cell, err := geocell.Encode(lat, lng, geocell.DefaultPrecision)
	if err != nil {
		m.deliver(session, errorMessage("BAD_COORDINATE", err.Error()))
		return
	}

	providerID, err := uuid.Parse(session.ActorID)
	if err != nil {
		m.deliver(session, errorMessage("BAD_ACTOR", "invalid provider id"))
		return
	}
	if err := m.providers.UpdateLocation(ctx, providerID, lat, lng, cell); err != nil {
		m.deliver(session, errorMessage("STORAGE", "could not update location"))
		return
	}

	payload := map[string]interface{}{
		"provider_id": session.ActorID,
		"lat":         lat,
		"lng":         lng,
	}

	active, err := m.engagements.FindActiveByProvider(ctx, providerID)
	if err != nil {
		m.logger.Warn("Active engagement lookup failed, holding location fanout",
			zap.String("provider_id", session.ActorID), zap.Error(err))
		return
	}
	if active != nil {
		m.ToEngagement(active.ID.String(), events.ProviderLocationLive, payload)
		return
	}

	p, err := m.providers.Get(ctx, providerID)
	if err != nil {
		m.deliver(session, errorMessage("STORAGE", "could not load provider"))
		return
	}
	if p.Availability != providers.AvailabilityOnline || !p.Eligible(time.Now()) {
		return
	}
	m.ToSearchers(cell, events.ProviderLocationLive, payload)
}

// handleRequestNearby subscribes a searcher to the cells around a point
// and answers with the current ranked matches.
func (m *Manager) handleRequestNearby(ctx context.Context, session *Session, msg *Message) {
	lat, latOK := msg.Data["lat"].(float64)
	lng, lngOK := msg.Data["lng"].(float64)
	if !latOK || !lngOK {
		m.deliver(session, errorMessage("BAD_COORDINATE", "lat and lng are required numbers"))
		return
	}
	radius, _ := msg.Data["radius_km"].(float64)
	skill, _ := msg.Data["skill"].(string)

	cell, err := geocell.Encode(lat, lng, geocell.DefaultPrecision)
	if err != nil {
		m.deliver(session, errorMessage("BAD_COORDINATE", err.Error()))
		return
	}

	session.mu.Lock()
	session.Cells = geocell.Neighbors(cell)
	session.mu.Unlock()

	matches, err := m.matcher.FindNearby(ctx, lat, lng, radius, matching.Options{Skill: skill})
	if err != nil {
		m.deliver(session, errorMessage("MATCH_FAILED", err.Error()))
		return
	}
	m.deliver(session, outbound(events.NearbyProviders, matches))
}

// ToActor implements events.Broadcaster.
func (m *Manager) ToActor(role, actorID, event string, payload interface{}) {
	msg := outbound(event, payload)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.Role == role && session.ActorID == actorID {
			m.deliver(session, msg)
		}
	}
}

// ToEngagement implements events.Broadcaster.
func (m *Manager) ToEngagement(engagementID, event string, payload interface{}) {
	msg := outbound(event, payload)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		session.mu.Lock()
		tracking := session.Engagements[engagementID]
		session.mu.Unlock()
		if tracking {
			m.deliver(session, msg)
		}
	}
}

// ToSearchers implements events.Broadcaster. An empty cell reaches every
// subscribed searcher.
func (m *Manager) ToSearchers(cell, event string, payload interface{}) {
	msg := outbound(event, payload)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.Role == auth.RoleProvider {
			continue
		}
		session.mu.Lock()
		subscribed := cell == "" && len(session.Cells) > 0
		for _, c := range session.Cells {
			if c == cell {
				subscribed = true
				break
			}
		}
		session.mu.Unlock()
		if subscribed {
			m.deliver(session, msg)
		}
	}
}

// deliver is fire-and-forget; a full buffer means the session is too
// slow to be worth blocking on.
func (m *Manager) deliver(session *Session, msg Message) {
	select {
	case session.Send <- msg:
	default:
	}
}

// startGrace arms the offline timer for a disconnected provider. A brief
// network blip must not flap the provider through the searchers' lists.
func (m *Manager) startGrace(session *Session) {
	if session.Role != auth.RoleProvider {
		return
	}
	m.mu.RLock()
	for _, other := range m.sessions {
		if other.Role == auth.RoleProvider && other.ActorID == session.ActorID {
			m.mu.RUnlock()
			return
		}
	}
	m.mu.RUnlock()

	actorID := session.ActorID
	m.graceMu.Lock()
	defer m.graceMu.Unlock()
	if _, armed := m.grace[actorID]; armed {
		return
	}
	m.grace[actorID] = time.AfterFunc(m.policy.DisconnectGrace, func() {
		m.graceMu.Lock()
		delete(m.grace, actorID)
		m.graceMu.Unlock()

		providerID, err := uuid.Parse(actorID)
		if err != nil {
			return
		}
		if err := m.providers.UpdateAvailability(context.Background(), providerID, providers.AvailabilityOffline); err != nil {
			m.logger.Error("Failed to mark provider offline after grace",
				zap.String("provider_id", actorID), zap.Error(err))
			return
		}
		m.ToSearchers("", events.ProviderStatusChanged, map[string]interface{}{
			"provider_id": actorID,
			"status":      string(providers.AvailabilityOffline),
		})
		m.logger.Info("Provider marked offline after disconnect grace",
			zap.String("provider_id", actorID))
	})
}

func (m *Manager) cancelGrace(actorID string) {
	m.graceMu.Lock()
	defer m.graceMu.Unlock()
	if timer, ok := m.grace[actorID]; ok {
		timer.Stop()
		delete(m.grace, actorID)
	}
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes the manager and all sessions.
func (m *Manager) Close() {
	close(m.hub.stop)

	m.mu.Lock()
	for _, session := range m.sessions {
		session.Conn.Close()
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
}

// run runs the hub in its own goroutine
func (h *Hub) run() {
	for {
		select {
		case session := <-h.register:
			h.sessions[session] = true

		case session := <-h.unregister:
			if _, ok := h.sessions[session]; ok {
				delete(h.sessions, session)
				close(session.done)
			}

		case <-h.stop:
			for session := range h.sessions {
				close(session.done)
				delete(h.sessions, session)
			}
			return
		}
	}
}
