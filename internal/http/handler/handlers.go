package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"pdfdrop/internal/config"
	"pdfdrop/internal/http/middleware"
	"pdfdrop/internal/model"
	"pdfdrop/internal/registry"
	"pdfdrop/internal/storage"
	"pdfdrop/internal/token"
)

// presignExpiry is the lifetime of redirect URLs issued for object-store
// backed documents.
const presignExpiry = 15 * time.Minute

// uploadResponse is the payload returned to upload callers: the entry plus
// the URLs they need to build links and QR codes.
type uploadResponse struct {
	model.DocumentEntry
	ViewURL string `json:"view_url"`
	QRURL   string `json:"qr_url"`
}

// listResponse wraps the admin listing.
type listResponse struct {
	Items []model.DocumentEntry `json:"data"`
	Total int                   `json:"total"`
}

func qrURL(base, tok string) string {
	return strings.TrimRight(base, "/") + "/qr/" + tok
}

// isPDF accepts an upload when either the declared content type or the
// filename suffix identifies it as a PDF.
func isPDF(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ct == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// registryError maps registry sentinel errors onto the client-facing
// taxonomy: unknown token, expired link, or a storage failure.
func registryError(c *fiber.Ctx, err error, entry *model.DocumentEntry) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "link invalid")
	case errors.Is(err, registry.ErrExpired):
		msg := "link expired"
		if entry != nil && entry.ExpiresAt != nil {
			msg = fmt.Sprintf("link expired on %s", entry.ExpiresAt.UTC().Format(time.RFC1123))
		}
		return writeError(c, fiber.StatusGone, "LINK_EXPIRED", msg)
	default:
		return writeError(c, fiber.StatusBadGateway, "STORAGE_ERROR", "could not read document")
	}
}

// UploadDocument accepts a single PDF (multipart field "file"), registers it,
// and returns the entry with its resolution URLs.
func UploadDocument(svc registry.Service, cfg *config.AppConfig, metrics *middleware.PrometheusMiddleware) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		if !isPDF(fh.Header.Get("Content-Type"), fh.Filename) {
			return writeError(c, fiber.StatusBadRequest, "NOT_PDF", "only PDF uploads are accepted")
		}
		if cfg.MaxUploadBytes > 0 && fh.Size > cfg.MaxUploadBytes {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "TOO_LARGE",
				fmt.Sprintf("file exceeds the %d byte limit", cfg.MaxUploadBytes))
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		entry, err := svc.Create(c.UserContext(), f, fh.Filename, "application/pdf", fh.Size)
		if err != nil {
			// An upload whose blob could not be stored has failed outright.
			return writeError(c, fiber.StatusBadGateway, "STORAGE_ERROR", "could not store document")
		}
		if metrics != nil {
			metrics.ObserveUpload(entry.SizeBytes)
		}

		return c.Status(fiber.StatusCreated).JSON(uploadResponse{
			DocumentEntry: *entry,
			ViewURL:       svc.ViewURL(entry.Token),
			QRURL:         qrURL(cfg.BaseURL, entry.Token),
		})
	}
}

// ViewDocument resolves a token and serves the PDF: a redirect to a
// presigned URL when the backend supports it, streamed bytes otherwise.
func ViewDocument(svc registry.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Params("token")
		if !token.Valid(tok) {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "link invalid")
		}

		entry, err := svc.Resolve(c.UserContext(), tok)
		if err != nil {
			return registryError(c, err, entry)
		}

		url, err := svc.PresignView(c.UserContext(), tok, presignExpiry)
		if err == nil {
			return c.Redirect(url, fiber.StatusFound)
		}
		if !errors.Is(err, storage.ErrPresignUnsupported) {
			return registryError(c, err, nil)
		}

		rc, entry, err := svc.Open(c.UserContext(), tok)
		if err != nil {
			return registryError(c, err, entry)
		}

		c.Set(fiber.HeaderContentType, entry.MimeType)
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf("inline; filename=%q", entry.OriginalName))
		return c.SendStream(rc, int(entry.SizeBytes))
	}
}

// QRImage serves the stored QR PNG for a token. The download query flag
// switches between inline display and attachment.
func QRImage(svc registry.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Params("token")
		if !token.Valid(tok) {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "link invalid")
		}

		rc, entry, err := svc.OpenQR(c.UserContext(), tok)
		if err != nil {
			return registryError(c, err, entry)
		}

		c.Set(fiber.HeaderContentType, "image/png")
		if c.QueryBool("download") {
			c.Set(fiber.HeaderContentDisposition,
				fmt.Sprintf("attachment; filename=%q", "qr-"+tok+".png"))
		} else {
			c.Set(fiber.HeaderContentDisposition, "inline")
		}
		return c.SendStream(rc)
	}
}

// ListDocuments returns all entries, newest first, for the admin surface.
func ListDocuments(svc registry.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := svc.List(c.UserContext())
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(listResponse{Items: entries, Total: len(entries)})
	}
}

// DeleteDocument revokes a token and best-effort removes its blobs.
func DeleteDocument(svc registry.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Params("token")
		if !token.Valid(tok) {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "link invalid")
		}
		if err := svc.Delete(c.UserContext(), tok); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "link invalid")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// TriggerPurge runs a purge on demand and reports how many entries were removed.
func TriggerPurge(svc registry.Service, metrics *middleware.PrometheusMiddleware) fiber.Handler {
	return func(c *fiber.Ctx) error {
		removed, err := svc.Purge(c.UserContext())
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "purge failed")
		}
		if metrics != nil {
			metrics.ObservePurge(removed)
		}
		return c.JSON(fiber.Map{"removed": removed})
	}
}

// TriggerReindex rebuilds the metadata indices from the remote mirror.
func TriggerReindex(svc registry.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		count, err := svc.Reindex(c.UserContext())
		if err != nil {
			if errors.Is(err, registry.ErrNoMirror) {
				return writeError(c, fiber.StatusConflict, "NO_MIRROR", "reindex requires the object storage backend")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "reindex failed")
		}
		return c.JSON(fiber.Map{"indexed": count})
	}
}

// LivenessProbe returns a fixed ok with no side effects.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendString("ok")
	}
}
