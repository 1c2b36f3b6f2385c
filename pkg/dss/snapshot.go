package dss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openutm/flightdeck/pkg/kv"
)

// Snapshot key layout and lifetime. The two keys are written together so a
// reader can resolve either direction while the operation is live.
const (
	snapshotKeyPrefix  = "flight_opint."
	reverseKeyPrefix   = "opint_flightref."
	snapshotTTL        = 3 * time.Hour
	snapshotLockPrefix = "lock.opint."
	snapshotLockTTL    = 30 * time.Second
)

// ErrSnapshotNotFound is returned when no snapshot exists for the id.
var ErrSnapshotNotFound = errors.New("operational intent snapshot not found")

// Snapshot is the cached view of an accepted operational intent: the DSS
// reference (including the current OVN) plus the declared details.
type Snapshot struct {
	DeclarationID       string                     `json:"declaration_id"`
	OperationalIntentID string                     `json:"operational_intent_id"`
	Reference           OperationalIntentReference `json:"reference"`
	Details             OperationalIntentDetails   `json:"details"`
}

// reverseRef is the value stored under opint_flightref keys.
type reverseRef struct {
	DeclarationID string `json:"declaration_id"`
}

// SnapshotStore keeps operational intent snapshots in the KV store.
type SnapshotStore struct {
	store kv.Store
}

// NewSnapshotStore returns a snapshot store over the KV backend.
func NewSnapshotStore(store kv.Store) *SnapshotStore {
	return &SnapshotStore{store: store}
}

// Write stores the snapshot and its reverse reference in one critical
// section. Both keys get the same fresh TTL.
func (s *SnapshotStore) Write(ctx context.Context, snapshot *Snapshot) error {
	if snapshot.DeclarationID == "" || snapshot.OperationalIntentID == "" {
		return fmt.Errorf("snapshot requires declaration and operational intent ids")
	}

	lockKey := snapshotLockPrefix + snapshot.DeclarationID
	token, err := s.store.AcquireLock(ctx, lockKey, snapshotLockTTL)
	if err != nil {
		return fmt.Errorf("failed to lock snapshot %s: %w", snapshot.DeclarationID, err)
	}
	defer func() { _ = s.store.ReleaseLock(ctx, lockKey, token) }()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	reverse, err := json.Marshal(reverseRef{DeclarationID: snapshot.DeclarationID})
	if err != nil {
		return fmt.Errorf("failed to marshal reverse reference: %w", err)
	}

	if err := s.store.Set(ctx, snapshotKeyPrefix+snapshot.DeclarationID, string(data), snapshotTTL); err != nil {
		return err
	}
	if err := s.store.Set(ctx, reverseKeyPrefix+snapshot.OperationalIntentID, string(reverse), snapshotTTL); err != nil {
		return err
	}
	return nil
}

// GetByDeclaration returns the snapshot for a declaration id.
func (s *SnapshotStore) GetByDeclaration(ctx context.Context, declarationID string) (*Snapshot, error) {
	raw, err := s.store.Get(ctx, snapshotKeyPrefix+declarationID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// GetByOperationalIntent resolves the reverse reference and returns the
// snapshot for an operational intent id.
func (s *SnapshotStore) GetByOperationalIntent(ctx context.Context, operationalIntentID string) (*Snapshot, error) {
	raw, err := s.store.Get(ctx, reverseKeyPrefix+operationalIntentID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var reverse reverseRef
	if err := json.Unmarshal([]byte(raw), &reverse); err != nil {
		return nil, fmt.Errorf("failed to decode reverse reference: %w", err)
	}
	return s.GetByDeclaration(ctx, reverse.DeclarationID)
}

// Delete removes both keys of the snapshot. Missing snapshots are not an
// error.
func (s *SnapshotStore) Delete(ctx context.Context, declarationID string) error {
	snapshot, err := s.GetByDeclaration(ctx, declarationID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.Delete(ctx,
		snapshotKeyPrefix+declarationID,
		reverseKeyPrefix+snapshot.OperationalIntentID)
}

// ListDeclarationIDs returns the declaration ids of every live snapshot.
func (s *SnapshotStore) ListDeclarationIDs(ctx context.Context) ([]string, error) {
	keys, err := s.store.Scan(ctx, snapshotKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, snapshotKeyPrefix))
	}
	return ids, nil
}

// Refresh resets the TTL on both keys of a live snapshot.
func (s *SnapshotStore) Refresh(ctx context.Context, declarationID string) error {
	snapshot, err := s.GetByDeclaration(ctx, declarationID)
	if err != nil {
		return err
	}
	if err := s.store.Expire(ctx, snapshotKeyPrefix+declarationID, snapshotTTL); err != nil {
		return err
	}
	return s.store.Expire(ctx, reverseKeyPrefix+snapshot.OperationalIntentID, snapshotTTL)
}
