package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// persistedVersion is the schema version for on-disk state files.
const persistedVersion = 1

// PersistedState is the on-disk shape of the current-state file.
type PersistedState struct {
	WorkflowID string                          `json:"workflow_id"`
	CreatedAt  time.Time                       `json:"created_at"`
	UpdatedAt  time.Time                       `json:"updated_at"`
	Phases     map[core.Phase]*core.PhaseState `json:"phases"`
}

// envelope wraps a payload with a checksum so corruption is detected
// on load instead of producing silently wrong bookkeeping.
type envelope struct {
	Version   int             `json:"version"`
	Checksum  string          `json:"checksum"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

// writeJob is one pending file write.
type writeJob struct {
	path string
	data []byte
}

// persister owns all file I/O for a run. Writes flow through a bounded
// queue drained by a single flusher goroutine: callers never wait on
// disk, and a crash can lose at most the queued tail. That loss window
// is a deliberate trade-off of the best-effort recovery design.
type persister struct {
	mu        sync.Mutex
	workflow  string
	dir       string // dir/<workflowID>
	log       *logging.Logger
	createdAt time.Time

	writes    chan writeJob
	done      chan struct{}
	closed    bool
	closeOnce sync.Once
}

func newPersister(workflowID, root string, log *logging.Logger) *persister {
	p := &persister{
		workflow:  workflowID,
		dir:       filepath.Join(root, workflowID),
		log:       log,
		createdAt: time.Now(),
		writes:    make(chan writeJob, 32),
		done:      make(chan struct{}),
	}
	go p.flush()
	return p
}

func (p *persister) statePath() string {
	return filepath.Join(p.dir, "state.json")
}

func (p *persister) checkpointDir() string {
	return filepath.Join(p.dir, "checkpoints")
}

// enqueueState schedules a full overwrite of the current-state file.
// Last write wins when two are queued in quick succession.
func (p *persister) enqueueState(phases map[core.Phase]*core.PhaseState) {
	ps := PersistedState{
		WorkflowID: p.workflow,
		CreatedAt:  p.createdAt,
		UpdatedAt:  time.Now(),
		Phases:     phases,
	}
	data, err := sealEnvelope(ps)
	if err != nil {
		p.log.Error("marshaling state", "error", err.Error())
		return
	}
	p.submit(writeJob{path: p.statePath(), data: data})
}

// enqueueCheckpoint schedules an individual timestamped snapshot file.
func (p *persister) enqueueCheckpoint(cp Checkpoint) {
	data, err := sealEnvelope(cp)
	if err != nil {
		p.log.Error("marshaling checkpoint", "error", err.Error())
		return
	}
	name := fmt.Sprintf("checkpoint_%d.json", cp.Timestamp.UnixNano())
	p.submit(writeJob{path: filepath.Join(p.checkpointDir(), name), data: data})
}

func (p *persister) submit(job writeJob) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// Blocks when the queue is full; backpressure instead of unbounded
	// memory growth.
	p.writes <- job
}

func (p *persister) flush() {
	defer close(p.done)
	for job := range p.writes {
		if err := os.MkdirAll(filepath.Dir(job.path), 0o755); err != nil {
			p.log.Error("creating state directory", "error", err.Error())
			continue
		}
		if err := renameio.WriteFile(job.path, job.data, 0o644); err != nil {
			p.log.Error("writing state file", "path", job.path, "error", err.Error())
		}
	}
}

func (p *persister) close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.writes)
		<-p.done
	})
}

func (p *persister) cleanup() error {
	return os.RemoveAll(p.dir)
}

// sealEnvelope marshals a payload and wraps it with its checksum.
func sealEnvelope(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(raw)
	env := envelope{
		Version:   persistedVersion,
		Checksum:  hex.EncodeToString(hash[:]),
		UpdatedAt: time.Now(),
		Payload:   raw,
	}
	return json.MarshalIndent(env, "", "  ")
}

// openEnvelope verifies the checksum and unmarshals the payload.
func openEnvelope(data []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshaling envelope: %w", err)
	}
	hash := sha256.Sum256(env.Payload)
	if hex.EncodeToString(hash[:]) != env.Checksum {
		return core.ErrState(core.CodeStateCorrupted, "checksum mismatch")
	}
	return json.Unmarshal(env.Payload, out)
}

// LoadState reads the current-state file for a workflow. Returns nil
// and no error when the run has no persisted state.
func LoadState(root, workflowID string) (*PersistedState, error) {
	path := filepath.Join(root, workflowID, "state.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var ps PersistedState
	if err := openEnvelope(data, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

// LoadCheckpoints reads all snapshot files for a workflow, oldest
// first. Unreadable snapshots are skipped with a best-effort policy.
func LoadCheckpoints(root, workflowID string) ([]Checkpoint, error) {
	dir := filepath.Join(root, workflowID, "checkpoints")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var cps []Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var cp Checkpoint
		if err := openEnvelope(data, &cp); err != nil {
			continue
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// ListWorkflows returns IDs of every run with persisted state under
// the root directory.
func ListWorkflows(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, entry.Name(), "state.json")); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

// SummaryOf computes a Summary from persisted state.
func SummaryOf(ps *PersistedState) Summary {
	s := Summary{WorkflowID: ps.WorkflowID, Total: len(ps.Phases)}
	for _, phase := range ps.Phases {
		switch phase.Status {
		case core.PhaseStatusCompleted:
			s.Completed++
		case core.PhaseStatusFailed:
			s.Failed++
		case core.PhaseStatusRunning:
			s.Running++
		case core.PhaseStatusPending:
			s.Pending++
		case core.PhaseStatusCancelled:
			s.Cancelled++
		case core.PhaseStatusPaused:
			s.Paused++
		}
		s.Duration += phase.Duration()
	}
	return s
}
