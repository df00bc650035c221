package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/pkg/zip"
)

// archiveFetchConcurrency caps parallel bucket reads while building a zip.
const archiveFetchConcurrency = 4

type libraryItem struct {
	Name         string    `json:"name"`
	Object       string    `json:"object"`
	Bucket       string    `json:"bucket"`
	URI          string    `json:"uri"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	Updated      time.Time `json:"updated"`
	DownloadPath string    `json:"download_path"`
}

type libraryResponse struct {
	Items []libraryItem `json:"items"`
	Count int           `json:"count"`
}

func (a *App) libraryQuery(r *http.Request) (prefix string, limit int, order domain.ListOrder) {
	prefix = r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = a.Config.OutputPrefix
	}
	limit = intQuery(r, "limit", a.Config.LibraryDefaultLimit)
	if limit <= 0 {
		limit = a.Config.LibraryDefaultLimit
	}
	if limit > a.Config.LibraryMaxLimit {
		limit = a.Config.LibraryMaxLimit
	}
	order = domain.OrderNewestFirst
	if r.URL.Query().Get("order") == "oldest" {
		order = domain.OrderOldestFirst
	}
	return prefix, limit, order
}

func (a *App) LibraryList(w http.ResponseWriter, r *http.Request) {
	prefix, limit, order := a.libraryQuery(r)
	infos, err := a.Objects.ListRecent(r.Context(), a.Config.Bucket, prefix, limit, order)
	if err != nil {
		a.Logger.Error().Err(err).Str("bucket", a.Config.Bucket).Msg("library list failed")
		a.fail(w, r, http.StatusBadGateway, codeListFailed)
		return
	}
	items := make([]libraryItem, 0, len(infos))
	for _, info := range infos {
		items = append(items, libraryItem{
			Name:         info.Ref.Filename(),
			Object:       info.Ref.Object,
			Bucket:       info.Ref.Bucket,
			URI:          info.Ref.URI(),
			SizeBytes:    info.Size,
			ContentType:  info.ContentType,
			Updated:      info.Updated,
			DownloadPath: "/v1/videos/download/" + info.Ref.Object,
		})
	}
	a.json(w, http.StatusOK, libraryResponse{Items: items, Count: len(items)})
}

func (a *App) LibraryDownload(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "*")
	if object == "" {
		a.fail(w, r, http.StatusBadRequest, codeBadRequest)
		return
	}
	artifact, err := a.Objects.FetchObject(r.Context(), domain.ArtifactRef{Bucket: a.Config.Bucket, Object: object})
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			a.fail(w, r, http.StatusNotFound, codeNotFound)
			return
		}
		a.Logger.Error().Err(err).Str("object", object).Msg("download failed")
		a.fail(w, r, http.StatusBadGateway, codeRetrieveFailed)
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", artifact.Ref.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

// LibraryArchive bundles the most recent videos into one zip download. The
// archive is all-or-nothing: any failed object read fails the request.
func (a *App) LibraryArchive(w http.ResponseWriter, r *http.Request) {
	prefix, limit, order := a.libraryQuery(r)
	infos, err := a.Objects.ListRecent(r.Context(), a.Config.Bucket, prefix, limit, order)
	if err != nil {
		a.Logger.Error().Err(err).Str("bucket", a.Config.Bucket).Msg("archive list failed")
		a.fail(w, r, http.StatusBadGateway, codeListFailed)
		return
	}
	if len(infos) == 0 {
		a.fail(w, r, http.StatusNotFound, codeNotFound)
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(archiveFetchConcurrency)
	assets := make([]zip.Asset, len(infos))
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			artifact, err := a.Objects.FetchObject(ctx, info.Ref)
			if err != nil {
				return err
			}
			// Index prefix keeps names unique and in listing order.
			assets[i] = zip.Asset{
				Filename: fmt.Sprintf("%02d_%s", i+1, artifact.Ref.Filename()),
				MIME:     artifact.ContentType,
				Data:     artifact.Data,
				Modified: artifact.Modified,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Str("bucket", a.Config.Bucket).Msg("archive fetch failed")
		a.fail(w, r, http.StatusBadGateway, codeRetrieveFailed)
		return
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.Logger.Error().Err(err).Msg("archive build failed")
		a.fail(w, r, http.StatusInternalServerError, codeInternal)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=video-library.zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
