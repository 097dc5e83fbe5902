// Package activitymap flattens auth activity events into the generic
// actor/verb/object shape activity-log backends expect.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/klasshub/go-lms-auth"
)

// Metadata keys attached during normalization.
const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity record.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type settings struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.ActivityEvent) string
}

// Option customizes normalization behavior.
type Option func(*settings)

// WithDefaultChannel sets the channel stamped on normalized records.
func WithDefaultChannel(channel string) Option {
	return func(s *settings) {
		if s != nil {
			s.channel = strings.TrimSpace(channel)
		}
	}
}

// WithDefaultObjectType sets the object type stamped on normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(s *settings) {
		if s != nil {
			s.objectType = strings.TrimSpace(objectType)
		}
	}
}

// WithObjectIDResolver overrides object-id extraction from the event.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(s *settings) {
		if s != nil {
			s.objectIDResolver = resolver
		}
	}
}

// WithActorFallback sets the actor id used when the event carries
// neither an actor nor a user id.
func WithActorFallback(actorID string) Option {
	return func(s *settings) {
		if s != nil {
			s.actorFallback = strings.TrimSpace(actorID)
		}
	}
}

// Normalize converts an auth.ActivityEvent into a Normalized record.
// Actor resolution order: event actor, then subject user, then the
// configured fallback.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	cfg := settings{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(event.Actor.ID, event.UserID, cfg.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: cfg.objectType,
		ObjectID:   objectID(event, cfg.objectIDResolver),
		Channel:    cfg.channel,
		Metadata:   eventMetadata(event),
		OccurredAt: occurredAt,
	}
}

func objectID(event auth.ActivityEvent, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.UserID)
}

// eventMetadata clones the event metadata and folds in the actor type
// and any lifecycle transition endpoints. Caller-supplied actor_type
// wins over the derived one.
func eventMetadata(event auth.ActivityEvent) map[string]any {
	var meta map[string]any
	set := func(key string, value any, overwrite bool) {
		if meta == nil {
			meta = map[string]any{}
		}
		if _, exists := meta[key]; exists && !overwrite {
			return
		}
		meta[key] = value
	}

	if len(event.Metadata) > 0 {
		meta = make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			meta[k] = v
		}
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		set(MetadataKeyActorType, actorType, false)
	}
	if event.FromStatus != "" {
		set(MetadataKeyFromStatus, string(event.FromStatus), true)
	}
	if event.ToStatus != "" {
		set(MetadataKeyToStatus, string(event.ToStatus), true)
	}

	return meta
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
