package verifier

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/operator-framework/alpha-decomposition/pkg/lib/filemonitor"
)

// Extension is the file suffix Watch reacts to.
const Extension = ".adf"

// ReportFunc receives the outcome of verifying one file; err is nil for a
// valid document.
type ReportFunc func(path string, err error)

// Watch verifies every document written to dir until ctx is cancelled.
// It blocks until the underlying watcher has shut down.
func (v *Verifier) Watch(ctx context.Context, dir string, report ReportFunc) error {
	w, err := filemonitor.NewWatch(v.logger, []string{dir}, func(logger logrus.FieldLogger, event fsnotify.Event) {
		report(event.Name, v.VerifyFile(event.Name))
	}, filemonitor.WithExtension(Extension), filemonitor.WithOps(fsnotify.Create, fsnotify.Write))
	if err != nil {
		return err
	}
	w.Run(ctx)
	<-w.Done()
	return nil
}

// VerifyFile parses and verifies the document stored at path.
func (v *Verifier) VerifyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &MalformedDocumentError{Err: err}
	}
	defer f.Close()
	return v.VerifyReader(f)
}
