package echoapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

const fileField = "file"

// uploadKind is a size limit and the accepted extensions of one kind of upload.
type uploadKind struct {
	maxSize    int64
	extensions []string
}

var (
	materialExtensions = []string{".pdf", ".mp4", ".avi", ".mov"}
	imageExtensions    = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	workExtensions     = []string{
		".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx", ".odt", ".txt", ".md",
		".zip", ".rar", ".7z", ".tar", ".gz",
		".jpg", ".jpeg", ".png", ".gif",
		".mp3", ".mp4", ".avi", ".mov",
	}
)

func materialUploads(conf core.UploadsConfig) uploadKind {
	return uploadKind{maxSize: conf.MaxMaterialSize, extensions: materialExtensions}
}

func imageUploads(conf core.UploadsConfig) uploadKind {
	return uploadKind{maxSize: conf.MaxImageSize, extensions: imageExtensions}
}

func workUploads(conf core.UploadsConfig) uploadKind {
	return uploadKind{maxSize: conf.MaxWorkSize, extensions: workExtensions}
}

func (k uploadKind) accepts(ext string) bool {
	for _, e := range k.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// formUpload reads the file of a multipart form field. The returned closer must be called once the
// upload is stored. A missing optional file yields a nil upload.
func formUpload(ctx echo.Context, field string, kind uploadKind, required bool) (*core.Upload, io.Closer, error) {
	missing := func() (*core.Upload, io.Closer, error) {
		if required {
			return nil, nil, core.NewValidationError(nil, core.FieldError{Field: field, Error: field + " is required"})
		}
		return nil, nil, nil
	}
	if !isMultipart(ctx) {
		return missing()
	}

	fh, err := ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return missing()
		}
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "malformed multipart form").SetInternal(err)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !kind.accepts(ext) {
		return nil, nil, core.NewValidationError(nil, core.FieldError{
			Field: field,
			Error: fmt.Sprintf("unsupported file type %q; allowed: %s", ext, strings.Join(kind.extensions, ", ")),
		})
	}
	if fh.Size > kind.maxSize {
		return nil, nil, core.NewValidationError(nil, core.FieldError{
			Field: field,
			Error: fmt.Sprintf("file is too large (%s); maximum is %s", humanize.IBytes(uint64(fh.Size)), humanize.IBytes(uint64(kind.maxSize))),
		})
	}

	file, err := fh.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening uploaded file")
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = fh.Header.Get(echo.HeaderContentType)
	}
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return &core.Upload{
		Name:        filepath.Base(fh.Filename),
		ContentType: contentType,
		Size:        fh.Size,
		Content:     file,
	}, file, nil
}

// closeUpload closes an upload opened by formUpload, if any.
func closeUpload(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// sendFile streams rc as an attachment named name, and closes it.
func sendFile(ctx echo.Context, rc io.ReadCloser, name, contentType string) error {
	defer rc.Close()
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	}
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	return ctx.Stream(http.StatusOK, contentType, rc)
}
