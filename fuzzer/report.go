package fuzzer

import (
	"encoding/hex"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cellfuzz/txpoolfuzz/config"
	tpfos "github.com/cellfuzz/txpoolfuzz/libs/os"
	"github.com/cellfuzz/txpoolfuzz/store"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// Report summarizes the outcome log of a data directory. Counts cover the
// outcomes of the last snapshot. Outcomes recorded after it, and those a
// later Load archived as replayed, are counted separately; their findings
// are listed with a status.
type Report struct {
	Height        uint64            `yaml:"height"`
	LiveCells     int               `yaml:"live_cells"`
	Outcomes      uint64            `yaml:"outcomes"`
	Unsnapshotted uint64            `yaml:"unsnapshotted,omitempty"`
	Replayed      uint64            `yaml:"replayed,omitempty"`
	Runs          []string          `yaml:"runs"`
	ByOutcome     map[string]uint64 `yaml:"by_outcome"`
	ByStrategy    map[string]uint64 `yaml:"by_strategy"`
	Violations    map[string]uint64 `yaml:"violations,omitempty"`
	Findings      []Finding         `yaml:"findings,omitempty"`
}

// Finding statuses for outcomes outside the last snapshot.
const (
	// the run stopped before a snapshot covered the outcome
	FindingUnsnapshotted = "unsnapshotted"
	// the iteration was rolled back and ran again
	FindingReplayed = "replayed"
)

// Finding is an outcome that recorded at least one finding-severity
// violation. RawTx lets it be replayed against another engine.
type Finding struct {
	Seq        uint64   `yaml:"seq"`
	RunID      string   `yaml:"run_id"`
	Status     string   `yaml:"status,omitempty"`
	Height     uint64   `yaml:"height"`
	TxHash     string   `yaml:"tx_hash"`
	Strategy   string   `yaml:"strategy"`
	Outcome    string   `yaml:"outcome"`
	Violations []string `yaml:"violations"`
	RawTx      string   `yaml:"raw_tx,omitempty"`
}

// BuildReport reads the data directory's last snapshot and its outcome
// logs. The data directory is not modified.
func BuildReport(dataDir string, provider config.DBProvider, withRawTx bool) (*Report, error) {
	if !tpfos.IsDir(dataDir) {
		return nil, ErrNotInitialized{Dir: dataDir}
	}
	db, err := provider(&config.DBContext{ID: config.DefaultDBName, DataDir: dataDir})
	if err != nil {
		return nil, store.ErrStore{Op: "open", Err: err}
	}
	st := store.NewStore(db)
	defer st.Close()

	snap, err := st.ReadSnapshot()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInitialized{Dir: dataDir}
	}
	if err != nil {
		return nil, err
	}

	r := &Report{
		Height:     snap.ChainState.Height(),
		LiveCells:  snap.ChainState.LiveCount(),
		ByOutcome:  make(map[string]uint64),
		ByStrategy: make(map[string]uint64),
		Violations: make(map[string]uint64),
	}
	seenRuns := make(map[string]struct{})
	err = st.IterateOutcomes(0, func(rec *types.RunOutcome) error {
		if rec.Seq >= snap.NextSeq {
			r.Unsnapshotted++
			r.addFinding(rec, FindingUnsnapshotted, withRawTx)
			return nil
		}
		r.Outcomes++
		if _, ok := seenRuns[rec.RunID]; !ok {
			seenRuns[rec.RunID] = struct{}{}
			r.Runs = append(r.Runs, rec.RunID)
		}
		r.ByOutcome[rec.Outcome.Label()]++
		r.ByStrategy[rec.Strategy]++
		for _, v := range rec.Violations {
			r.Violations[v.Kind.String()+"/"+v.Severity.String()]++
		}
		r.addFinding(rec, "", withRawTx)
		return nil
	})
	if err != nil {
		return nil, store.ErrStore{Op: "iterate outcomes", Err: err}
	}
	err = st.IterateReplayedOutcomes(func(rec *types.RunOutcome) error {
		r.Replayed++
		r.addFinding(rec, FindingReplayed, withRawTx)
		return nil
	})
	if err != nil {
		return nil, store.ErrStore{Op: "iterate replayed outcomes", Err: err}
	}
	return r, nil
}

func (r *Report) addFinding(rec *types.RunOutcome, status string, withRawTx bool) {
	if !rec.HasFinding() {
		return
	}
	f := newFinding(rec, withRawTx)
	f.Status = status
	r.Findings = append(r.Findings, f)
}

func newFinding(rec *types.RunOutcome, withRawTx bool) Finding {
	f := Finding{
		Seq:      rec.Seq,
		RunID:    rec.RunID,
		Height:   rec.Height,
		TxHash:   rec.TxHash.String(),
		Strategy: rec.Strategy,
		Outcome:  rec.Outcome.String(),
	}
	for _, v := range rec.Violations {
		if v.Severity == types.SeverityFinding {
			f.Violations = append(f.Violations, v.String())
		}
	}
	if withRawTx {
		f.RawTx = hex.EncodeToString(rec.RawTx)
	}
	return f
}

// WriteYAML writes r as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
