package storage

import "fmt"

// NewArchive creates a DocumentArchive based on the configured type.
// Parameters:
//   - archiveType: "s3" for S3-compatible storage, "none" to disable archival.
//   - cfg: S3 configuration, ignored when archival is disabled.
// Returns:
//   - DocumentArchive: initialized archive implementation.
//   - error: non-nil if the archive client cannot be created.
func NewArchive(archiveType string, cfg *S3Config) (DocumentArchive, error) {
	switch archiveType {
	case "", "none":
		return NoopArchive{}, nil
	case "s3":
		return NewS3Archive(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", archiveType)
	}
}
