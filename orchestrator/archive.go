package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"marketbrief/common"
	"marketbrief/types"
)

// S3Archiver writes finalized run state as JSON to an S3 bucket, one object
// per run under <prefix>briefs/<run-id>.json.
type S3Archiver struct {
	store  *common.S3
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver over the given bucket. An empty prefix
// stores objects at the bucket root.
func NewS3Archiver(store *common.S3, bucket, prefix string) *S3Archiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archiver{store: store, bucket: bucket, prefix: prefix}
}

// ArchiveRun uploads the run state.
func (a *S3Archiver) ArchiveRun(ctx context.Context, run *types.RunState) error {
	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	key := fmt.Sprintf("%sbriefs/%s.json", a.prefix, run.RunID)
	if err := a.store.PutBytes(ctx, a.bucket, key, payload, "application/json"); err != nil {
		return fmt.Errorf("upload run %s to s3://%s/%s: %w", run.RunID, a.bucket, key, err)
	}
	return nil
}
