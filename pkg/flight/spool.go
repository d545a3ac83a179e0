package flight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/geoparquet"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/sirupsen/logrus"
)

// Spool writes record batches to parquet files in a temporary directory
// and reads them back as one frame.
type Spool struct {
	dir   string
	files []string
	rows  int64
}

// NewSpool creates the spool directory under parent, or under the system
// temporary directory when parent is empty.
func NewSpool(parent string) (*Spool, error) {
	dir, err := os.MkdirTemp(parent, "geoexpr_spool_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Add writes rec to a new file.
func (s *Spool) Add(ctx context.Context, rec arrow.RecordBatch) error {
	f, err := frame.FromRecord(rec)
	if err != nil {
		return err
	}
	defer f.Release()

	path := filepath.Join(s.dir, fmt.Sprintf("batch_%d.parquet", len(s.files)+1))
	if err := geoparquet.WriteFile(ctx, path, f); err != nil {
		return fmt.Errorf("failed to spool record batch: %w", err)
	}

	s.files = append(s.files, path)
	s.rows += rec.NumRows()
	log.WithFields(logrus.Fields{"file": path, "rows": rec.NumRows()}).Debug("spooled batch")
	return nil
}

// Len is the number of spooled batches.
func (s *Spool) Len() int { return len(s.files) }

// Rows is the number of spooled rows.
func (s *Spool) Rows() int64 { return s.rows }

// Frame reads every spooled batch back, in the order they were added.
func (s *Spool) Frame(ctx context.Context) (*frame.Frame, error) {
	if len(s.files) == 0 {
		return nil, fmt.Errorf("nothing spooled")
	}

	var recs []arrow.RecordBatch
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	for _, path := range s.files {
		f, _, err := geoparquet.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		recs = append(recs, f.Record())
		f.Release()
	}

	return frame.FromRecords(recs)
}

// Cleanup removes the spool directory and its files.
func (s *Spool) Cleanup() error {
	if s.dir != "" {
		return os.RemoveAll(s.dir)
	}
	return nil
}
