package fuzzer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/libs/log"
	tpfos "github.com/cellfuzz/txpoolfuzz/libs/os"
	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/store"
)

// InitFileName is the copy of the init configuration kept in the data
// directory.
const InitFileName = "init.yaml"

// Init creates dataDir holding the genesis chain state, the initial seed
// state and the genesis configuration. Everything is written into a
// temporary sibling directory that is renamed into place once complete, so
// a failed Init leaves nothing behind.
func Init(cfg *config.InitConfig, dataDir string, logger log.Logger) (err error) {
	if err := cfg.ValidateBasic(); err != nil {
		return config.ErrConfig{Err: err}
	}
	if tpfos.FileExists(dataDir) {
		return ErrDataDirExists{Dir: dataDir}
	}

	cs, err := state.MakeGenesisState(cfg.Genesis)
	if err != nil {
		return config.ErrConfig{Err: config.ErrInSection{Section: "genesis", Err: err}}
	}
	model := seed.New(cfg.Genesis.Seed, cfg.Genesis.Timestamp)

	parent := filepath.Dir(dataDir)
	if err := tpfos.EnsureDir(parent, config.DefaultDirPerm); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dataDir)+".init-")
	if err != nil {
		return fmt.Errorf("creating temporary data directory: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := os.RemoveAll(tmp); rerr != nil {
				logger.Error("Failed to remove temporary data directory", "dir", tmp, "err", rerr)
			}
		}
	}()

	db, err := config.DefaultDBProvider(&config.DBContext{ID: config.DefaultDBName, DataDir: tmp})
	if err != nil {
		return store.ErrStore{Op: "open", Err: err}
	}
	st := store.NewStore(db, store.WithLogger(logger.With("module", "store")))
	if err := st.SaveGenesisConfig(cfg.Genesis); err != nil {
		st.Close()
		return err
	}
	if err := st.Persist(cs, model.State()); err != nil {
		st.Close()
		return err
	}
	if err := st.Close(); err != nil {
		return store.ErrStore{Op: "close", Err: err}
	}

	rendered, err := config.RenderInitConfig(cfg)
	if err != nil {
		return err
	}
	if err := config.WriteConfigFile(filepath.Join(tmp, InitFileName), rendered); err != nil {
		return err
	}

	if err := os.Rename(tmp, dataDir); err != nil {
		return fmt.Errorf("moving data directory into place: %w", err)
	}
	logger.Info("Initialized data directory",
		"dir", dataDir,
		"live_cells", cs.LiveCount(),
		"seed", cfg.Genesis.Seed,
		"genesis", cs.Tip().Hash,
	)
	return nil
}
