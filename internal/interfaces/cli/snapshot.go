package cli

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// SnapshotFile is the on-disk input of apexctl. JSON files parse too, since
// JSON is a subset of YAML.
//
//	statuses:
//	  - {id: 1, name: Open}
//	  - {id: 2, name: Completed}
//	entities:
//	  - entity: {id: ent-1, name: Acme GmbH, jurisdiction: DE}
//	    subscriptions: [...]
//	    tasks: [...]
type SnapshotFile struct {
	Statuses []compliance.StatusDefinition `yaml:"statuses"`

	// CompletedStatusName and CompletedStatusID override the config file.
	CompletedStatusName string `yaml:"completed_status_name,omitempty"`
	CompletedStatusID   int64  `yaml:"completed_status_id,omitempty"`

	Entities []compliance.EntitySnapshot `yaml:"entities"`
}

// loadSnapshot reads path, or stdin when path is "-".
func loadSnapshot(path string, stdin io.Reader) (*SnapshotFile, error) {
	if path == "" {
		return nil, errors.InvalidParam("--file is required")
	}

	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		r = f
	}

	var snap SnapshotFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		if err == io.EOF {
			return nil, errors.InvalidParam("snapshot file is empty")
		}
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to parse snapshot file")
	}
	return &snap, nil
}

// engine resolves the completed status from the snapshot taxonomy.
func (s *SnapshotFile) engine(cliCtx *CLIContext) (*compliance.Engine, error) {
	name := s.CompletedStatusName
	if name == "" {
		name = cliCtx.Config.Compliance.CompletedStatusName
	}
	override := s.CompletedStatusID
	if override == 0 {
		override = cliCtx.Config.Compliance.CompletedStatusID
	}
	completedID, err := compliance.ResolveCompletedID(s.Statuses, name, override)
	if err != nil {
		return nil, err
	}
	return compliance.NewEngine(completedID, cliCtx.Policy)
}

// entity returns the snapshot of one entity.
func (s *SnapshotFile) entity(id string) (compliance.EntitySnapshot, error) {
	for _, e := range s.Entities {
		if e.Entity.ID == id {
			return e, nil
		}
	}
	return compliance.EntitySnapshot{}, errors.Newf(errors.ErrCodeEntityNotFound, "entity %q not found in snapshot", id)
}

// allTasks flattens the tasks of every entity.
func (s *SnapshotFile) allTasks() []compliance.ComplianceTask {
	var tasks []compliance.ComplianceTask
	for _, e := range s.Entities {
		tasks = append(tasks, e.Tasks...)
	}
	return tasks
}
