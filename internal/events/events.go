package events

// Event names published to the notification/UI layer. Every payload is a
// full current-state snapshot, not a diff.
const (
	EngagementUpdated     = "engagement:update"
	ProviderLocationLive  = "provider:location:live"
	ProviderStatusChanged = "provider:status:changed"
	NearbyProviders       = "nearby:providers"
)

// Channel roles for ToActor.
const (
	ChannelCustomer = "customer"
	ChannelProvider = "provider"
)

// Broadcaster is the capability the lifecycle and verification services use
// to push events to connected sessions. The presence manager implements it;
// tests supply fakes.
type Broadcaster interface {
	// ToActor delivers to the named per-actor channel (customer:{id} or
	// provider:{id}). Best-effort, fire-and-forget.
	ToActor(role, actorID, event string, payload interface{})
	// ToEngagement delivers to an engagement's private channel.
	ToEngagement(engagementID, event string, payload interface{})
	// ToSearchers delivers to every searcher session whose nearby
	// subscription covers the given cell. An empty cell reaches all
	// searchers (status-change fanout).
	ToSearchers(cell, event string, payload interface{})
}

// Nop discards every event. Used where broadcasting is not wired, such as
// the maintenance worker.
type Nop struct{}

func (Nop) ToActor(role, actorID, event string, payload interface{})     {}
func (Nop) ToEngagement(engagementID, event string, payload interface{}) {}
func (Nop) ToSearchers(cell, event string, payload interface{})          {}
