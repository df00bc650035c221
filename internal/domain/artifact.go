package domain

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactRef addresses one stored artifact by container and object path.
type ArtifactRef struct {
	Bucket string
	Object string
}

// URI renders the gs:// form of the reference.
func (r ArtifactRef) URI() string {
	return fmt.Sprintf("gs://%s/%s", r.Bucket, r.Object)
}

// IsZero reports whether the reference is unset.
func (r ArtifactRef) IsZero() bool { return r.Bucket == "" && r.Object == "" }

// Filename returns the last path element of the object, for display and
// download naming.
func (r ArtifactRef) Filename() string {
	if idx := strings.LastIndex(r.Object, "/"); idx >= 0 {
		return r.Object[idx+1:]
	}
	return r.Object
}

// ParseArtifactURI splits a gs://bucket/object URI into a reference. Any
// other scheme is an error, not a silent pass-through.
func ParseArtifactURI(uri string) (ArtifactRef, error) {
	trimmed := strings.TrimSpace(uri)
	rest, ok := strings.CutPrefix(trimmed, "gs://")
	if !ok {
		return ArtifactRef{}, fmt.Errorf("unsupported storage uri %q", uri)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return ArtifactRef{}, fmt.Errorf("storage uri %q missing bucket or object", uri)
	}
	return ArtifactRef{Bucket: bucket, Object: object}, nil
}

// allowedVideoTypes lists the content types accepted for playback. The
// backend only produces MP4 today; the other two cover the containers the
// same model family has announced.
var allowedVideoTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"video/quicktime": {},
}

// IsAllowedVideoType reports whether ct, possibly carrying parameters such as
// a codecs suffix, names an allow-listed video container.
func IsAllowedVideoType(ct string) bool {
	base := strings.ToLower(strings.TrimSpace(ct))
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	_, ok := allowedVideoTypes[base]
	return ok
}

// Artifact is a downloaded video plus the metadata playback needs.
type Artifact struct {
	Ref         ArtifactRef
	Data        []byte
	ContentType string
	Size        int64
	Modified    time.Time
}

// Validate enforces the non-empty, allow-listed contract before the artifact
// is handed to playback or download.
func (a Artifact) Validate() error {
	if a.Size <= 0 || len(a.Data) == 0 {
		return &InvalidArtifactError{Ref: a.Ref, ContentType: a.ContentType, Size: a.Size, Reason: "empty artifact"}
	}
	if !IsAllowedVideoType(a.ContentType) {
		return &InvalidArtifactError{Ref: a.Ref, ContentType: a.ContentType, Size: a.Size, Reason: "content type not allow-listed"}
	}
	return nil
}

// ObjectInfo describes one stored object in a library listing.
type ObjectInfo struct {
	Ref         ArtifactRef
	Size        int64
	ContentType string
	Updated     time.Time
}

// ListOrder selects the library listing direction.
type ListOrder string

const (
	OrderNewestFirst ListOrder = "newest"
	OrderOldestFirst ListOrder = "oldest"
)
