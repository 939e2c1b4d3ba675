// Package session maintains actor sessions: the resolved role, tenant scope
// and materialized effective permission set for each signed-in staff member.
// Sessions live in Redis and are invalidated through per-role and per-staff
// epoch counters, so a role mutation denies stale sessions immediately,
// before any rebuild completes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/shared"
)

// RoleRecord is the role shape the store needs to build or rebuild a
// session.
type RoleRecord struct {
	ID        int64
	TenantID  *int64
	Archetype authz.Archetype
	Level     int
	Active    bool
}

// RoleSource loads role state for session rebuilds.
type RoleSource interface {
	RoleRecord(ctx context.Context, roleID int64) (RoleRecord, error)
	RoleOverrides(ctx context.Context, roleID int64) (authz.Overrides, error)
}

// StaffRecord is the member shape consulted during rebuilds: the current
// role assignment and active flag.
type StaffRecord struct {
	ID     int64
	RoleID int64
	Active bool
}

// StaffSource loads the member's current assignment for session rebuilds.
// Rebuilds must never trust the role cached in the session payload: a
// reassignment between two requests would otherwise resurrect the old role.
type StaffSource interface {
	StaffRecord(ctx context.Context, staffID int64) (StaffRecord, error)
}

// View converts the record to the engine's read shape.
func (r RoleRecord) View() authz.RoleView {
	return authz.RoleView{Archetype: r.Archetype, Active: r.Active}
}

type payload struct {
	StaffID     int64    `json:"staff_id"`
	RoleID      int64    `json:"role_id"`
	TenantID    *int64   `json:"tenant_id,omitempty"`
	Archetype   string   `json:"archetype"`
	Level       int      `json:"level"`
	RoleEpoch   int64    `json:"role_epoch"`
	StaffEpoch  int64    `json:"staff_epoch"`
	Permissions []string `json:"permissions"`
	IssuedAt    int64    `json:"issued_at"`
}

// ActorSession is one cached login session. Has is a plain map lookup; no
// permission is ever recomputed on the hot path.
type ActorSession struct {
	id          string
	actor       shared.Actor
	roleEpoch   int64
	staffEpoch  int64
	permissions map[string]struct{}
	stale       bool
}

// ID returns the session identifier.
func (s *ActorSession) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Actor returns the resolved actor for this session.
func (s *ActorSession) Actor() shared.Actor {
	if s == nil {
		return shared.Actor{}
	}
	return s.actor
}

// Has reports whether the session grants the permission. Stale or nil
// sessions always deny.
func (s *ActorSession) Has(permission string) bool {
	if s == nil || s.stale {
		return false
	}
	_, ok := s.permissions[permission]
	return ok
}

// HasAny reports whether any of the permissions is granted. Empty input
// denies.
func (s *ActorSession) HasAny(permissions ...string) bool {
	for _, p := range permissions {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every permission is granted. Empty input allows.
func (s *ActorSession) HasAll(permissions ...string) bool {
	if s == nil || s.stale {
		return false
	}
	for _, p := range permissions {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Store persists actor sessions in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, ttl: ttl, logger: logger}
}

// Create materializes a new session for the staff member. The caller has
// already verified the role is active; an inactive role here is a
// programming error and denies anyway via the engine.
func (s *Store) Create(ctx context.Context, staffID int64, role RoleRecord, overrides authz.Overrides) (*ActorSession, error) {
	roleEpoch, err := s.epoch(ctx, shared.RoleEpochKey(role.ID))
	if err != nil {
		return nil, err
	}
	staffEpoch, err := s.epoch(ctx, shared.StaffEpochKey(staffID))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	data := payload{
		StaffID:     staffID,
		RoleID:      role.ID,
		TenantID:    role.TenantID,
		Archetype:   string(role.Archetype),
		Level:       role.Level,
		RoleEpoch:   roleEpoch,
		StaffEpoch:  staffEpoch,
		Permissions: authz.EffectivePermissions(role.View(), overrides),
		IssuedAt:    time.Now().Unix(),
	}
	if err := s.write(ctx, id, data); err != nil {
		return nil, err
	}
	return s.fromPayload(id, data), nil
}

// Load fetches a session by ID. Missing or expired sessions report
// shared.ErrUnauthenticated.
func (s *Store) Load(ctx context.Context, id string) (*ActorSession, error) {
	raw, err := s.client.Get(ctx, shared.SessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrUnauthenticated
		}
		return nil, err
	}
	var data payload
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return s.fromPayload(id, data), nil
}

// Validate checks the session's cached epochs against the store. A mismatch
// marks the session stale, which denies every Has call until a rebuild
// completes.
func (s *Store) Validate(ctx context.Context, sess *ActorSession) error {
	if sess == nil {
		return shared.ErrUnauthenticated
	}
	roleEpoch, err := s.epoch(ctx, shared.RoleEpochKey(sess.actor.RoleID))
	if err != nil {
		// Cannot prove freshness; treat as stale rather than authorize
		// against a session of unknown validity.
		sess.stale = true
		return shared.ErrStaleSession
	}
	staffEpoch, err := s.epoch(ctx, shared.StaffEpochKey(sess.actor.StaffID))
	if err != nil {
		sess.stale = true
		return shared.ErrStaleSession
	}
	if roleEpoch != sess.roleEpoch || staffEpoch != sess.staffEpoch {
		sess.stale = true
		return shared.ErrStaleSession
	}
	return nil
}

// Rebuild re-resolves a stale session against the member's current role
// assignment, not the role cached in the payload. A reassignment is picked
// up here; a deactivated member or role tears the session down and
// shared.ErrStaleSession is returned: a forced sign-out. Concurrent rebuilds
// of the same session are collapsed via singleflight.
func (s *Store) Rebuild(ctx context.Context, id string, roles RoleSource, staff StaffSource) (*ActorSession, error) {
	result, err, _ := s.group.Do(id, func() (any, error) {
		raw, err := s.client.Get(ctx, shared.SessionKey(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, shared.ErrUnauthenticated
			}
			return nil, err
		}
		var stale payload
		if err := json.Unmarshal(raw, &stale); err != nil {
			return nil, err
		}

		member, err := staff.StaffRecord(ctx, stale.StaffID)
		if err != nil || !member.Active {
			_ = s.Destroy(ctx, id)
			return nil, shared.ErrStaleSession
		}
		role, err := roles.RoleRecord(ctx, member.RoleID)
		if err != nil || !role.Active {
			_ = s.Destroy(ctx, id)
			return nil, shared.ErrStaleSession
		}
		overrides, err := roles.RoleOverrides(ctx, member.RoleID)
		if err != nil {
			return nil, err
		}

		roleEpoch, err := s.epoch(ctx, shared.RoleEpochKey(role.ID))
		if err != nil {
			return nil, err
		}
		staffEpoch, err := s.epoch(ctx, shared.StaffEpochKey(stale.StaffID))
		if err != nil {
			return nil, err
		}

		fresh := payload{
			StaffID:     stale.StaffID,
			RoleID:      role.ID,
			TenantID:    role.TenantID,
			Archetype:   string(role.Archetype),
			Level:       role.Level,
			RoleEpoch:   roleEpoch,
			StaffEpoch:  staffEpoch,
			Permissions: authz.EffectivePermissions(role.View(), overrides),
			IssuedAt:    time.Now().Unix(),
		}
		if err := s.write(ctx, id, fresh); err != nil {
			return nil, err
		}
		return s.fromPayload(id, fresh), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ActorSession), nil
}

// Destroy removes a session record.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, shared.SessionKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// InvalidateRole bumps the role epoch. Every session holding the role fails
// Validate from this point on; this is the synchronous half of
// invalidation, the sweep job only garbage-collects afterwards.
func (s *Store) InvalidateRole(ctx context.Context, roleID int64) error {
	return s.client.Incr(ctx, shared.RoleEpochKey(roleID)).Err()
}

// InvalidateStaff bumps the staff epoch, invalidating that member's
// sessions after a role reassignment.
func (s *Store) InvalidateStaff(ctx context.Context, staffID int64) error {
	return s.client.Incr(ctx, shared.StaffEpochKey(staffID)).Err()
}

// SweepStaleSessions deletes session records for the role whose epoch no
// longer matches. Returns the number of sessions removed.
func (s *Store) SweepStaleSessions(ctx context.Context, roleID int64) (int, error) {
	current, err := s.epoch(ctx, shared.RoleEpochKey(roleID))
	if err != nil {
		return 0, err
	}

	removed := 0
	iter := s.client.Scan(ctx, 0, shared.SessionKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return removed, err
		}
		var data payload
		if err := json.Unmarshal(raw, &data); err != nil {
			s.logger.Warn("sweep: undecodable session", slog.String("key", key))
			continue
		}
		if data.RoleID != roleID || data.RoleEpoch == current {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return removed, err
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *Store) epoch(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return value, nil
}

func (s *Store) write(ctx context.Context, id string, data payload) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, shared.SessionKey(id), raw, s.ttl).Err()
}

func (s *Store) fromPayload(id string, data payload) *ActorSession {
	perms := make(map[string]struct{}, len(data.Permissions))
	for _, p := range data.Permissions {
		perms[p] = struct{}{}
	}
	return &ActorSession{
		id: id,
		actor: shared.Actor{
			StaffID:   data.StaffID,
			RoleID:    data.RoleID,
			TenantID:  data.TenantID,
			Archetype: data.Archetype,
			Level:     data.Level,
			SessionID: id,
		},
		roleEpoch:   data.RoleEpoch,
		staffEpoch:  data.StaffEpoch,
		permissions: perms,
	}
}
