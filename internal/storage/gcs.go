// Package storage talks to Google Cloud Storage over its JSON API and keeps
// a small filesystem mirror for CLI downloads.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/metrics"
)

const listPageSize = 1000

// TokenSource supplies bearer tokens for outgoing API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GCSOptions configures a GCSClient.
type GCSOptions struct {
	// ProjectID owns buckets created by EnsureBucket. Required.
	ProjectID string
	// Location for newly created buckets, e.g. "us-central1".
	Location string
	// BaseURL overrides the storage API endpoint. Mostly for tests.
	BaseURL string
	// Tokens supplies bearer tokens. Required.
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     zerolog.Logger

	// FetchAttempts bounds how often a freshly written object is looked up
	// before giving up on 404. Defaults to 3.
	FetchAttempts int
	// FetchRetryInterval is the pause between those attempts. Defaults to 2s.
	FetchRetryInterval time.Duration
}

// GCSClient implements bucket management, artifact retrieval and library
// listing against the Cloud Storage JSON API.
type GCSClient struct {
	projectID     string
	location      string
	baseURL       string
	tokens        TokenSource
	client        *http.Client
	logger        zerolog.Logger
	fetchAttempts int
	fetchRetry    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGCSClient validates the options and builds a GCSClient.
func NewGCSClient(opts GCSOptions) (*GCSClient, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("storage: project id is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("storage: token source is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/storage/v1"
	}
	location := opts.Location
	if location == "" {
		location = "us-central1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	attempts := opts.FetchAttempts
	if attempts < 1 {
		attempts = 3
	}
	retry := opts.FetchRetryInterval
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &GCSClient{
		projectID:     opts.ProjectID,
		location:      location,
		baseURL:       strings.TrimRight(baseURL, "/"),
		tokens:        opts.Tokens,
		client:        client,
		logger:        opts.Logger,
		fetchAttempts: attempts,
		fetchRetry:    retry,
		sleep:         sleepContext,
	}, nil
}

// EnsureBucket makes sure the bucket exists, creating it when absent. The
// call is idempotent: an existing bucket is left untouched. A bucket that is
// visible but not accessible, or whose name is taken globally, surfaces as a
// BucketConflictError.
func (c *GCSClient) EnsureBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return fmt.Errorf("storage: bucket name is required")
	}

	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/b/"+url.PathEscape(bucket), nil)
	if err != nil {
		metrics.RecordStorageOp("ensure_bucket", "error")
		return err
	}
	defer resp.Body.Close()
	drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		metrics.RecordStorageOp("ensure_bucket", "ok")
		c.logger.Debug().Str("bucket", bucket).Msg("storage: bucket exists")
		return nil
	case http.StatusNotFound:
		return c.createBucket(ctx, bucket)
	case http.StatusForbidden:
		metrics.RecordStorageOp("ensure_bucket", "conflict")
		return &domain.BucketConflictError{
			Bucket: bucket,
			Reason: "access denied, bucket may belong to another project",
		}
	default:
		metrics.RecordStorageOp("ensure_bucket", "error")
		return fmt.Errorf("storage: get bucket %s: status %d", bucket, resp.StatusCode)
	}
}

func (c *GCSClient) createBucket(ctx context.Context, bucket string) error {
	payload := bucketInsert{
		Name:         bucket,
		Location:     c.location,
		StorageClass: "STANDARD",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("storage: encode bucket insert: %w", err)
	}

	u := fmt.Sprintf("%s/b?project=%s", c.baseURL, url.QueryEscape(c.projectID))
	resp, err := c.do(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		metrics.RecordStorageOp("create_bucket", "error")
		return err
	}
	defer resp.Body.Close()
	drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		metrics.RecordStorageOp("create_bucket", "ok")
		c.logger.Info().Str("bucket", bucket).Str("location", c.location).Msg("storage: bucket created")
		return nil
	case resp.StatusCode == http.StatusConflict:
		metrics.RecordStorageOp("create_bucket", "conflict")
		return &domain.BucketConflictError{
			Bucket: bucket,
			Reason: "name already taken",
		}
	case resp.StatusCode == http.StatusForbidden:
		metrics.RecordStorageOp("create_bucket", "conflict")
		return &domain.BucketConflictError{
			Bucket: bucket,
			Reason: "creation forbidden for this project",
		}
	default:
		metrics.RecordStorageOp("create_bucket", "error")
		return fmt.Errorf("storage: create bucket %s: status %d", bucket, resp.StatusCode)
	}
}

// FetchObject downloads an artifact. A 404 is retried a bounded number of
// times because objects written by the video backend can lag behind the
// operation result; any other failure aborts immediately. The downloaded
// bytes are validated before they are returned.
func (c *GCSClient) FetchObject(ctx context.Context, ref domain.ArtifactRef) (*domain.Artifact, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("storage: artifact ref is required")
	}

	u := fmt.Sprintf("%s/b/%s/o/%s?alt=media",
		c.baseURL, url.PathEscape(ref.Bucket), url.PathEscape(ref.Object))

	for attempt := 1; ; attempt++ {
		artifact, retryable, err := c.fetchOnce(ctx, ref, u)
		if err == nil {
			metrics.RecordStorageOp("fetch", "ok")
			metrics.RecordArtifactSize(artifact.Size)
			return artifact, nil
		}
		if !retryable || attempt >= c.fetchAttempts {
			if retryable {
				metrics.RecordStorageOp("fetch", "not_found")
				return nil, &domain.NotFoundError{Ref: ref, Attempts: attempt}
			}
			metrics.RecordStorageOp("fetch", "error")
			return nil, err
		}
		c.logger.Debug().
			Str("object", ref.URI()).
			Int("attempt", attempt).
			Msg("storage: object not visible yet, retrying")
		if err := c.sleep(ctx, c.fetchRetry); err != nil {
			metrics.RecordStorageOp("fetch", "error")
			return nil, fmt.Errorf("storage: fetch %s: %w", ref.URI(), err)
		}
	}
}

// fetchOnce performs a single download attempt. retryable is true only for
// a 404 response.
func (c *GCSClient) fetchOnce(ctx context.Context, ref domain.ArtifactRef, u string) (*domain.Artifact, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		drain(resp.Body)
		return nil, true, fmt.Errorf("storage: object %s not found", ref.URI())
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, false, fmt.Errorf("storage: fetch %s: status %d", ref.URI(), resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("storage: read %s: %w", ref.URI(), err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	modified := time.Time{}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			modified = t
		}
	}

	artifact := &domain.Artifact{
		Ref:         ref,
		Data:        data,
		ContentType: contentType,
		Size:        int64(len(data)),
		Modified:    modified,
	}
	if err := artifact.Validate(); err != nil {
		return nil, false, err
	}
	return artifact, false, nil
}

// ListRecent returns video objects under the prefix ordered by modification
// time. The listing is all-or-nothing: a failure on any page fails the whole
// call rather than returning a partial library. limit <= 0 means no cap.
func (c *GCSClient) ListRecent(ctx context.Context, bucket, prefix string, limit int, order domain.ListOrder) ([]domain.ObjectInfo, error) {
	var infos []domain.ObjectInfo

	pageToken := ""
	for {
		page, err := c.listPage(ctx, bucket, prefix, pageToken)
		if err != nil {
			metrics.RecordStorageOp("list", "error")
			return nil, &domain.ListError{Bucket: bucket, Prefix: prefix, Err: err}
		}
		for _, item := range page.Items {
			info, ok := item.toObjectInfo(bucket)
			if !ok {
				continue
			}
			infos = append(infos, info)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Updated.Equal(infos[j].Updated) {
			return infos[i].Ref.Object < infos[j].Ref.Object
		}
		if order == domain.OrderOldestFirst {
			return infos[i].Updated.Before(infos[j].Updated)
		}
		return infos[i].Updated.After(infos[j].Updated)
	})

	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	metrics.RecordStorageOp("list", "ok")
	return infos, nil
}

func (c *GCSClient) listPage(ctx context.Context, bucket, prefix, pageToken string) (*objectListPage, error) {
	query := url.Values{}
	query.Set("maxResults", strconv.Itoa(listPageSize))
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	u := fmt.Sprintf("%s/b/%s/o?%s", c.baseURL, url.PathEscape(bucket), query.Encode())
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, fmt.Errorf("list objects: status %d", resp.StatusCode)
	}

	var page objectListPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode object list: %w", err)
	}
	return &page, nil
}

func (c *GCSClient) do(ctx context.Context, method, u string, body io.Reader) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("storage: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: call api: %w", err)
	}
	return resp, nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<20))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type bucketInsert struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	StorageClass string `json:"storageClass"`
}

type objectListPage struct {
	Items         []objectItem `json:"items"`
	NextPageToken string       `json:"nextPageToken"`
}

type objectItem struct {
	Name        string    `json:"name"`
	Bucket      string    `json:"bucket"`
	Size        string    `json:"size"`
	ContentType string    `json:"contentType"`
	Updated     time.Time `json:"updated"`
}

// toObjectInfo converts a listing item, dropping anything that is not an
// allow-listed video.
func (o objectItem) toObjectInfo(bucket string) (domain.ObjectInfo, bool) {
	if !isVideoObject(o) {
		return domain.ObjectInfo{}, false
	}
	size, err := strconv.ParseInt(o.Size, 10, 64)
	if err != nil {
		size = 0
	}
	b := o.Bucket
	if b == "" {
		b = bucket
	}
	return domain.ObjectInfo{
		Ref:         domain.ArtifactRef{Bucket: b, Object: o.Name},
		Size:        size,
		ContentType: o.ContentType,
		Updated:     o.Updated,
	}, true
}

func isVideoObject(o objectItem) bool {
	if domain.IsAllowedVideoType(o.ContentType) {
		return true
	}
	if o.ContentType != "" && o.ContentType != "application/octet-stream" {
		return false
	}
	name := strings.ToLower(o.Name)
	return strings.HasSuffix(name, ".mp4") ||
		strings.HasSuffix(name, ".webm") ||
		strings.HasSuffix(name, ".mov")
}
