package scanner

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/hashstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Checkpoint records how far a scan has progressed so that an
// interrupted scan can resume.
type Checkpoint struct {
	Task `yaml:",inline"`
	// Fingerprint is the hash of Task when the checkpoint was created.
	// A checkpoint whose task was edited afterwards is not resumed.
	Fingerprint uint64    `yaml:"fingerprint"`
	LastChecked int       `yaml:"lastChecked"`
	Found       []int     `yaml:"found,omitempty"`
	Checks      int       `yaml:"checks"`
	UpdatedAt   time.Time `yaml:"updatedAt"`
}

// fingerprint hashes the task. The method must not be named Hash:
// hashstructure defers to a Hash method and would recurse.
func (t Task) fingerprint() (uint64, error) {
	return hashstructure.Hash(t, nil)
}

// NewCheckpoint returns a checkpoint for a task nothing of which has
// been scanned yet.
func NewCheckpoint(t Task) (*Checkpoint, error) {
	fp, err := t.fingerprint()
	if err != nil {
		return nil, errors.Wrap(err, "hashing task")
	}
	return &Checkpoint{Task: t, Fingerprint: fp, LastChecked: t.Start - 1}, nil
}

// Matches returns true if the checkpoint belongs to t.
func (c *Checkpoint) Matches(t Task) bool {
	fp, err := t.fingerprint()
	return err == nil && c.Task == t && c.Fingerprint == fp
}

// LoadCheckpoint reads the checkpoint at path. A missing file yields a
// nil Checkpoint and no error.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint %s", path)
	}
	var c Checkpoint
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, errors.Wrapf(err, "parsing checkpoint %s", path)
	}
	return &c, nil
}

// Save writes the checkpoint to path, replacing any previous one
// atomically.
func (c *Checkpoint) Save(path string) error {
	c.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating checkpoint")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "writing checkpoint")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replacing checkpoint")
}
