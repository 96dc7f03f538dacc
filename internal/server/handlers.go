package server

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rudransh-shrivastava/privosend/internal/blob"
	"github.com/rudransh-shrivastava/privosend/internal/ratelimit"
	"github.com/rudransh-shrivastava/privosend/internal/store"
)

type uploadResponse struct {
	ShareCode string    `json:"shareCode"`
	ExpiresAt time.Time `json:"expiresAt"`
	FileCount int       `json:"fileCount"`
}

type fileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type validateResponse struct {
	SenderName    string     `json:"senderName"`
	Files         []fileInfo `json:"files"`
	TotalSize     int64      `json:"totalSize"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	DownloadCount int        `json:"downloadCount"`
	MaxDownloads  int        `json:"maxDownloads"`
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) handleUpload(c *gin.Context) {
	if !s.opts.UploadLimiter.Allow(ratelimit.ClientIP(c.Request)) {
		abortError(c, http.StatusTooManyRequests, "Too many uploads. Please try again later.")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		abortError(c, http.StatusBadRequest, "Sender name and files are required")
		return
	}

	senderName := strings.TrimSpace(firstValue(form.Value["senderName"]))
	files := form.File["files"]
	if senderName == "" || len(files) == 0 {
		abortError(c, http.StatusBadRequest, "Sender name and files are required")
		return
	}
	if len([]rune(senderName)) > maxSenderName {
		abortError(c, http.StatusBadRequest, fmt.Sprintf("Sender name must be %d characters or less", maxSenderName))
		return
	}

	var valid []*multipart.FileHeader
	for _, fh := range files {
		if fh.Size > maxFileSize {
			s.logger.Warn("Skipping oversized file", "name", fh.Filename, "size", fh.Size)
			continue
		}
		valid = append(valid, fh)
	}
	if len(valid) == 0 {
		abortError(c, http.StatusBadRequest, "No valid files found (max 100MB per file)")
		return
	}

	ctx := c.Request.Context()
	code, err := store.GenerateShareCode()
	if err != nil {
		s.internalError(c, "generate share code", err)
		return
	}

	records := make([]store.FileRecord, 0, len(valid))
	for _, fh := range valid {
		data, err := readFormFile(fh)
		if err != nil {
			s.internalError(c, "read upload", err)
			return
		}
		id, err := store.NewFileID()
		if err != nil {
			s.internalError(c, "generate file id", err)
			return
		}

		rec := store.FileRecord{
			ID:       id,
			Name:     fh.Filename,
			Size:     int64(len(data)),
			MimeType: mimetype.Detect(data).String(),
			BlobKey:  code + "/" + id,
		}
		if err := s.opts.Blobs.Put(ctx, rec.BlobKey, data); err != nil {
			s.deleteBlobs(c, records)
			s.internalError(c, "store upload", err)
			return
		}
		records = append(records, rec)
	}

	session, err := s.opts.Sessions.Create(ctx, code, senderName, records)
	if err != nil {
		s.deleteBlobs(c, records)
		s.internalError(c, "create session", err)
		return
	}

	s.logger.Info("Session created", "code", session.Code, "files", len(session.Files), "bytes", session.TotalSize())
	c.JSON(http.StatusOK, uploadResponse{
		ShareCode: session.Code,
		ExpiresAt: session.ExpiresAt,
		FileCount: len(session.Files),
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	session, ok := s.lookupSession(c)
	if !ok {
		return
	}

	files := make([]fileInfo, len(session.Files))
	for i, f := range session.Files {
		files[i] = fileInfo{Name: f.Name, Size: f.Size}
	}
	c.JSON(http.StatusOK, validateResponse{
		SenderName:    session.SenderName,
		Files:         files,
		TotalSize:     session.TotalSize(),
		ExpiresAt:     session.ExpiresAt,
		DownloadCount: session.DownloadCount,
		MaxDownloads:  session.MaxDownloads,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	if !s.opts.DownloadLimiter.Allow(ratelimit.ClientIP(c.Request)) {
		abortError(c, http.StatusTooManyRequests, "Too many downloads. Please try again later.")
		return
	}

	if _, ok := s.lookupSession(c); !ok {
		return
	}

	ctx := c.Request.Context()
	code, _ := store.NormalizeShareCode(c.Query("code"))
	session, err := s.opts.Sessions.IncrementDownloadCount(ctx, code)
	switch {
	case errors.Is(err, store.ErrLimitExceeded):
		abortError(c, http.StatusTooManyRequests, "Download limit exceeded")
		return
	case errors.Is(err, store.ErrNotFound):
		abortError(c, http.StatusNotFound, "Invalid share code or files have expired")
		return
	case err != nil:
		s.internalError(c, "count download", err)
		return
	}

	archive, err := s.buildArchive(c, session)
	if err != nil {
		s.internalError(c, "build archive", err)
		return
	}

	if session.Exhausted() {
		s.deleteBlobs(c, session.Files)
		if err := s.opts.Sessions.Delete(ctx, session.Code); err != nil {
			s.logger.Warn("Failed to delete exhausted session", "code", session.Code, "error", err)
		}
		s.logger.Info("Session exhausted", "code", session.Code)
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="files-%s.zip"`, session.Code))
	c.Header("Content-Length", strconv.Itoa(len(archive)))
	c.Data(http.StatusOK, "application/zip", archive)
}

// lookupSession resolves ?code= and writes the 400/404 response itself.
func (s *Server) lookupSession(c *gin.Context) (*store.Session, bool) {
	raw := c.Query("code")
	if strings.TrimSpace(raw) == "" {
		abortError(c, http.StatusBadRequest, "Share code is required")
		return nil, false
	}

	code, ok := store.NormalizeShareCode(raw)
	if !ok {
		abortError(c, http.StatusNotFound, "Invalid share code or files have expired")
		return nil, false
	}

	session, err := s.opts.Sessions.Get(c.Request.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, "Invalid share code or files have expired")
		return nil, false
	}
	if err != nil {
		s.internalError(c, "load session", err)
		return nil, false
	}
	return session, true
}

// buildArchive zips every stored file of session. Files whose blob has
// already expired are left out.
func (s *Server) buildArchive(c *gin.Context, session *store.Session) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)

	for _, f := range session.Files {
		data, err := s.opts.Blobs.Get(c.Request.Context(), f.BlobKey)
		if errors.Is(err, blob.ErrNotFound) {
			s.logger.Warn("Blob missing from archive", "code", session.Code, "file", f.ID)
			continue
		}
		if err != nil {
			return nil, err
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     archiveName(f.Name, used),
			Method:   zip.Deflate,
			Modified: session.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// archiveName strips directories and makes repeated names unique.
func archiveName(name string, used map[string]int) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}

	if used[base] == 0 {
		used[base] = 1
		return base
	}

	// used[base] is the next suffix to try. Generated names are recorded too.
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := used[base]; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if used[candidate] == 0 {
			used[base] = n + 1
			used[candidate] = 1
			return candidate
		}
	}
}

func (s *Server) deleteBlobs(c *gin.Context, files []store.FileRecord) {
	for _, f := range files {
		if err := s.opts.Blobs.Delete(c.Request.Context(), f.BlobKey); err != nil {
			s.logger.Warn("Failed to delete blob", "key", f.BlobKey, "error", err)
		}
	}
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error("Request failed", "op", op, "error", err)
	abortError(c, http.StatusInternalServerError, "Internal server error")
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxFileSize+1))
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
