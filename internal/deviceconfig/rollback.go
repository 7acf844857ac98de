package deviceconfig

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
)

// Snapshot is a saved section value for rollback
type Snapshot struct {
	// Values is the section as read from the device
	Values *schema.Section

	// Timestamp when this snapshot was created
	Timestamp time.Time

	// Description of what operation this snapshot was taken before
	Description string
}

// Namespace returns the section the snapshot belongs to.
func (s *Snapshot) Namespace() schema.Namespace {
	return s.Values.Namespace
}

// RollbackManager keeps section snapshots of one session
type RollbackManager struct {
	session *Session

	// snapshots is limited to the last maxSnapshots entries
	snapshots    []*Snapshot
	maxSnapshots int

	mutex sync.RWMutex
}

// NewRollbackManager creates a new rollback manager for a session
func NewRollbackManager(session *Session) *RollbackManager {
	return &RollbackManager{
		session:      session,
		snapshots:    make([]*Snapshot, 0, 10),
		maxSnapshots: 10,
	}
}

// SaveSnapshot reads ns from the device and keeps it as a snapshot
func (rm *RollbackManager) SaveSnapshot(ctx context.Context, ns schema.Namespace, description string) (*Snapshot, error) {
	values, err := rm.session.Read(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for snapshot: %w", ns, err)
	}

	snapshot := &Snapshot{
		Values:      values,
		Timestamp:   time.Now(),
		Description: description,
	}

	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.snapshots = append(rm.snapshots, snapshot)
	if len(rm.snapshots) > rm.maxSnapshots {
		rm.snapshots = rm.snapshots[1:]
	}
	return snapshot, nil
}

// GetLatestSnapshot returns the most recent snapshot, or nil if no snapshots exist
func (rm *RollbackManager) GetLatestSnapshot() *Snapshot {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	if len(rm.snapshots) == 0 {
		return nil
	}
	return rm.snapshots[len(rm.snapshots)-1]
}

// LatestFor returns the most recent snapshot of ns, or nil
func (rm *RollbackManager) LatestFor(ns schema.Namespace) *Snapshot {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	for i := len(rm.snapshots) - 1; i >= 0; i-- {
		if rm.snapshots[i].Namespace() == ns {
			return rm.snapshots[i]
		}
	}
	return nil
}

// GetSnapshots returns all snapshots in chronological order (oldest first)
func (rm *RollbackManager) GetSnapshots() []*Snapshot {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	result := make([]*Snapshot, len(rm.snapshots))
	copy(result, rm.snapshots)
	return result
}

// ClearSnapshots removes all saved snapshots
func (rm *RollbackManager) ClearSnapshots() {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.snapshots = make([]*Snapshot, 0, 10)
}

// RollbackToSnapshot writes the snapshot's writable fields back and
// verifies them
func (rm *RollbackManager) RollbackToSnapshot(ctx context.Context, snapshot *Snapshot, opts *VerificationOptions) *VerificationResult {
	if snapshot == nil {
		return &VerificationResult{Error: fmt.Errorf("snapshot is nil")}
	}

	ns := snapshot.Namespace()
	raw := make(map[string]string)
	for _, f := range schema.SchemaFor(ns).Writable() {
		raw[f.Key] = snapshot.Values.Text(f.Key)
	}

	logging.Info("Rolling back section",
		zap.String("device_id", rm.session.device.ID),
		zap.String("namespace", string(ns)),
		zap.Time("snapshot", snapshot.Timestamp),
	)
	return rm.session.WriteAndVerify(ctx, ns, raw, opts)
}

// RollbackToLatest restores the most recent snapshot
func (rm *RollbackManager) RollbackToLatest(ctx context.Context, opts *VerificationOptions) *VerificationResult {
	snapshot := rm.GetLatestSnapshot()
	if snapshot == nil {
		return &VerificationResult{Error: fmt.Errorf("no snapshots available for rollback")}
	}
	return rm.RollbackToSnapshot(ctx, snapshot, opts)
}

// SafeWrite snapshots ns, writes raw and verifies it. Only a read-back
// mismatch triggers an automatic rollback; a write that failed in transit
// is reported and left to the caller.
func (rm *RollbackManager) SafeWrite(ctx context.Context, ns schema.Namespace, raw map[string]string, opts *VerificationOptions, description string) *SafeUpdateResult {
	result := &SafeUpdateResult{
		Namespace:   ns,
		Description: description,
	}

	snapshot, err := rm.SaveSnapshot(ctx, ns, description)
	if err != nil {
		result.Error = fmt.Errorf("failed to save pre-update snapshot: %w", err)
		return result
	}

	verifyResult := rm.session.WriteAndVerify(ctx, ns, raw, opts)
	result.UpdateResult = verifyResult

	if verifyResult.Success {
		result.Success = true
		return result
	}
	if !IsVerificationError(verifyResult.Error) {
		result.Error = verifyResult.Error
		return result
	}

	result.RollbackAttempted = true
	rollbackResult := rm.RollbackToSnapshot(ctx, snapshot, opts)
	result.RollbackResult = rollbackResult

	if rollbackResult.Success {
		result.RollbackSucceeded = true
		result.Error = fmt.Errorf("update failed (verification: %w), successfully rolled back to previous configuration", verifyResult.Error)
	} else {
		result.Error = fmt.Errorf("update failed (verification: %w) AND rollback failed: %w", verifyResult.Error, rollbackResult.Error)
	}
	return result
}

// SafeUpdateResult contains the results of a safe write
type SafeUpdateResult struct {
	// Success indicates whether the write was verified
	Success bool

	Namespace schema.Namespace

	// Description of the update operation
	Description string

	// UpdateResult contains the result of the write attempt
	UpdateResult *VerificationResult

	// RollbackAttempted indicates whether rollback was attempted
	RollbackAttempted bool

	// RollbackSucceeded is only meaningful if RollbackAttempted is true
	RollbackSucceeded bool

	// RollbackResult is only set if RollbackAttempted is true
	RollbackResult *VerificationResult

	// Error contains any error that occurred
	Error error
}

// String returns a human-readable summary of the safe update result
func (r *SafeUpdateResult) String() string {
	if r.Success {
		return fmt.Sprintf("✅ %s updated: %s (verified in %d attempt(s))",
			r.Namespace, r.Description, r.UpdateResult.Attempts)
	}

	if r.RollbackAttempted {
		if r.RollbackSucceeded {
			return fmt.Sprintf("⚠️  %s update failed but was rolled back: %s\nUpdate error: %v\nRollback: successful after %d attempt(s)",
				r.Namespace, r.Description, r.UpdateResult.Error, r.RollbackResult.Attempts)
		}
		return fmt.Sprintf("❌ %s update failed and rollback failed: %s\nUpdate error: %v\nRollback error: %v",
			r.Namespace, r.Description, r.UpdateResult.Error, r.RollbackResult.Error)
	}

	return fmt.Sprintf("❌ %s update failed: %s\nError: %v",
		r.Namespace, r.Description, r.Error)
}

// DestructiveWarnings returns a warning message if writing raw over
// current could cut the station off, or "" if the write looks safe.
// current may be nil.
func DestructiveWarnings(ns schema.Namespace, current *schema.Section, raw map[string]string) string {
	var warnings []string

	switch ns {
	case schema.LoRaWAN:
		if current == nil || sessionChanged(current, raw) {
			warnings = append(warnings, "⚠️  Changing LoRaWAN session parameters disconnects the station from its network server until the server is updated")
		}
	case schema.System:
		if v, ok := ParseBoolText(raw["initialized"]); ok && !v {
			was := true
			if current != nil {
				if b, ok := current.Bool("initialized"); ok {
					was = b
				}
			}
			if was {
				warnings = append(warnings, "⚠️  Clearing 'initialized' returns the station to its first-run state")
			}
		}
		if n, ok := ParseIntLenient(raw["sleep_time"]); ok && n <= 0 {
			warnings = append(warnings, "⚠️  A sleep time of 0 keeps the radio awake and drains the battery")
		}
	case schema.Sensors:
		if v, ok := ParseBoolText(raw["e"]); ok && !v {
			warnings = append(warnings, "⚠️  The sensor will stop reporting measurements")
		}
	}

	if len(warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("⚠️  POTENTIALLY DESTRUCTIVE CHANGES DETECTED ⚠️\n\n")
	for _, w := range warnings {
		b.WriteString(w + "\n")
	}
	b.WriteString("\nIt is recommended to save a snapshot before proceeding.\n")
	return b.String()
}

func sessionChanged(current *schema.Section, raw map[string]string) bool {
	for _, f := range schema.SchemaFor(schema.LoRaWAN).Writable() {
		if normalizeHex(current.Text(f.Key)) != normalizeHex(raw[f.Key]) {
			return true
		}
	}
	return false
}
