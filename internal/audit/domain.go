package audit

import "time"

// ActionType classifies an audited event.
type ActionType string

const (
	ActionLogin              ActionType = "login"
	ActionLogout             ActionType = "logout"
	ActionPermissionDenied   ActionType = "permission_denied"
	ActionDataAccess         ActionType = "data_access"
	ActionDataCreated        ActionType = "data_created"
	ActionDataUpdated        ActionType = "data_updated"
	ActionDataDeleted        ActionType = "data_deleted"
	ActionDataExported       ActionType = "data_exported"
	ActionRoleAssigned       ActionType = "role_assigned"
	ActionRoleRemoved        ActionType = "role_removed"
	ActionSessionExpired     ActionType = "session_expired"
	ActionAPIAccess          ActionType = "api_access"
	ActionSuspiciousActivity ActionType = "suspicious_activity"
)

// RiskLevel is a coarse severity classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ActorKind tags the kind of account behind an event. System events carry
// ActorSystem and no actor ID. Keeping the kind alongside the ID means every
// account category is auditable without a fixed user-table foreign key.
type ActorKind string

const (
	ActorStudent ActorKind = "student"
	ActorFaculty ActorKind = "faculty"
	ActorAdmin   ActorKind = "admin"
	ActorSystem  ActorKind = "system"
)

// Actor is a polymorphic reference to whoever caused an event.
type Actor struct {
	Kind  ActorKind
	ID    int64
	Label string
}

// System is the actor for events with no human behind them.
func System() Actor {
	return Actor{Kind: ActorSystem}
}

// RequestContext captures where an event came from.
type RequestContext struct {
	IP         string
	UserAgent  string
	Path       string
	Method     string
	SessionKey string
}

// Target references the entity an event acted on.
type Target struct {
	Type  string
	ID    string
	Label string
}

// Entry is one immutable audit record. Entries are only ever inserted; the
// application exposes no update or delete path for them.
type Entry struct {
	ID          int64
	Actor       Actor
	Action      ActionType
	Description string
	Request     RequestContext
	Target      *Target
	Before      map[string]any
	After       map[string]any
	Risk        RiskLevel
	At          time.Time
}

// SecurityEventType classifies authentication and anomaly events tracked
// separately from the general audit trail.
type SecurityEventType string

const (
	EventFailedLogin        SecurityEventType = "failed_login"
	EventInvalidAPIKey      SecurityEventType = "invalid_api_key"
	EventSuspiciousReferrer SecurityEventType = "suspicious_referrer"
	EventRapidRequests      SecurityEventType = "rapid_requests"
)

// SecurityEvent records one authentication or anomaly event.
type SecurityEvent struct {
	ID       int64
	Type     SecurityEventType
	Actor    Actor
	Severity RiskLevel
	Detail   string
	Request  RequestContext
	At       time.Time
}
