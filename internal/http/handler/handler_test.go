package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pdfdrop/internal/config"
	"pdfdrop/internal/metadata"
	"pdfdrop/internal/model"
	"pdfdrop/internal/registry"
	registryMocks "pdfdrop/internal/registry/mocks"
	"pdfdrop/internal/storage"
	"pdfdrop/internal/token"
)

const pdfBody = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n"

var testToken = strings.Repeat("a", token.Length)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		BaseURL:        "http://localhost:8080",
		MaxUploadBytes: 1 << 20,
	}
}

func multipartPDF(t *testing.T, field, filename, contentType, body string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestUploadDocument(t *testing.T) {
	mockSvc := new(registryMocks.MockService)
	app := fiber.New()
	app.Post("/documents", UploadDocument(mockSvc, testConfig(), nil))

	t.Run("success", func(t *testing.T) {
		entry := &model.DocumentEntry{
			Token:        testToken,
			OriginalName: "invoice.pdf",
			MimeType:     "application/pdf",
			SizeBytes:    int64(len(pdfBody)),
		}
		mockSvc.On("Create", mock.Anything, mock.Anything, "invoice.pdf", "application/pdf", int64(len(pdfBody))).
			Return(entry, nil).Once()
		mockSvc.On("ViewURL", testToken).
			Return("http://localhost:8080/view/" + testToken).Once()

		buf, ct := multipartPDF(t, "file", "invoice.pdf", "application/pdf", pdfBody)
		req := httptest.NewRequest(http.MethodPost, "/documents", buf)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var got uploadResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, testToken, got.Token)
		assert.Equal(t, "http://localhost:8080/view/"+testToken, got.ViewURL)
		assert.Equal(t, "http://localhost:8080/qr/"+testToken, got.QRURL)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(""))
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects non-pdf", func(t *testing.T) {
		buf, ct := multipartPDF(t, "file", "notes.txt", "text/plain", "hello")
		req := httptest.NewRequest(http.MethodPost, "/documents", buf)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "NOT_PDF", body.Error.Code)
	})

	t.Run("rejects oversized", func(t *testing.T) {
		small := testConfig()
		small.MaxUploadBytes = 4
		tinyApp := fiber.New()
		tinyApp.Post("/documents", UploadDocument(mockSvc, small, nil))

		buf, ct := multipartPDF(t, "file", "big.pdf", "application/pdf", pdfBody)
		req := httptest.NewRequest(http.MethodPost, "/documents", buf)
		req.Header.Set("Content-Type", ct)

		resp, _ := tinyApp.Test(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("storage failure surfaces", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, mock.Anything, "down.pdf", "application/pdf", mock.Anything).
			Return(nil, errors.New("backend down")).Once()

		buf, ct := multipartPDF(t, "file", "down.pdf", "application/pdf", pdfBody)
		req := httptest.NewRequest(http.MethodPost, "/documents", buf)
		req.Header.Set("Content-Type", ct)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestViewDocument(t *testing.T) {
	t.Run("streams when presign unsupported", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/view/:token", ViewDocument(mockSvc))

		entry := &model.DocumentEntry{
			Token:        testToken,
			OriginalName: "invoice.pdf",
			MimeType:     "application/pdf",
			SizeBytes:    int64(len(pdfBody)),
		}
		mockSvc.On("Resolve", mock.Anything, testToken).Return(entry, nil)
		mockSvc.On("PresignView", mock.Anything, testToken, presignExpiry).
			Return("", storage.ErrPresignUnsupported)
		mockSvc.On("Open", mock.Anything, testToken).
			Return(io.NopCloser(strings.NewReader(pdfBody)), entry, nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/view/"+testToken, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, pdfBody, string(body))
	})

	t.Run("redirects to presigned url", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/view/:token", ViewDocument(mockSvc))

		entry := &model.DocumentEntry{Token: testToken}
		mockSvc.On("Resolve", mock.Anything, testToken).Return(entry, nil)
		mockSvc.On("PresignView", mock.Anything, testToken, presignExpiry).
			Return("https://minio.example.com/bucket/doc?sig=abc", nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/view/"+testToken, nil))
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://minio.example.com/bucket/doc?sig=abc", resp.Header.Get("Location"))
	})

	t.Run("unknown token", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/view/:token", ViewDocument(mockSvc))

		mockSvc.On("Resolve", mock.Anything, testToken).Return(nil, registry.ErrNotFound)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/view/"+testToken, nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("expired token gets 410 with expiry time", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/view/:token", ViewDocument(mockSvc))

		exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		entry := &model.DocumentEntry{Token: testToken, ExpiresAt: &exp}
		mockSvc.On("Resolve", mock.Anything, testToken).Return(entry, registry.ErrExpired)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/view/"+testToken, nil))
		assert.Equal(t, http.StatusGone, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "LINK_EXPIRED", body.Error.Code)
		assert.Contains(t, body.Error.Message, "2026")
	})

	t.Run("malformed token never reaches the registry", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/view/:token", ViewDocument(mockSvc))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/view/short", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})
}

func TestQRImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}

	t.Run("inline", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/qr/:token", QRImage(mockSvc))

		entry := &model.DocumentEntry{Token: testToken, QRStorageKey: "qr/" + testToken + ".png"}
		mockSvc.On("OpenQR", mock.Anything, testToken).
			Return(io.NopCloser(bytes.NewReader(png)), entry, nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/qr/"+testToken, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Equal(t, "inline", resp.Header.Get("Content-Disposition"))
	})

	t.Run("download flag forces attachment", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Get("/qr/:token", QRImage(mockSvc))

		entry := &model.DocumentEntry{Token: testToken}
		mockSvc.On("OpenQR", mock.Anything, testToken).
			Return(io.NopCloser(bytes.NewReader(png)), entry, nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/qr/"+testToken+"?download=1", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	})
}

func TestDeleteDocument(t *testing.T) {
	mockSvc := new(registryMocks.MockService)
	app := fiber.New()
	app.Delete("/admin/documents/:token", DeleteDocument(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, testToken).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/admin/documents/"+testToken, nil))
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("already deleted", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, testToken).Return(registry.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/admin/documents/"+testToken, nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestTriggerPurge(t *testing.T) {
	mockSvc := new(registryMocks.MockService)
	app := fiber.New()
	app.Post("/admin/purge", TriggerPurge(mockSvc, nil))

	mockSvc.On("Purge", mock.Anything).Return(3, nil)

	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/admin/purge", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body["removed"])
}

func TestTriggerReindex(t *testing.T) {
	t.Run("no mirror", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Post("/admin/reindex", TriggerReindex(mockSvc))

		mockSvc.On("Reindex", mock.Anything).Return(0, registry.ErrNoMirror)

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("success", func(t *testing.T) {
		mockSvc := new(registryMocks.MockService)
		app := fiber.New()
		app.Post("/admin/reindex", TriggerReindex(mockSvc))

		mockSvc.On("Reindex", mock.Anything).Return(7, nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]int
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 7, body["indexed"])
	})
}

// Full upload-view-qr pass over the real registry with the filesystem backend.
func TestUploadViewQRScenario(t *testing.T) {
	be, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	st, err := metadata.NewStore(filepath.Join(t.TempDir(), "metadata.json"))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.TTL = 365 * 24 * time.Hour
	svc := registry.New(be, st, registry.Config{BaseURL: cfg.BaseURL, TTL: cfg.TTL})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, svc, cfg, nil)

	buf, ct := multipartPDF(t, "file", "invoice.pdf", "application/pdf", pdfBody)
	req := httptest.NewRequest(http.MethodPost, "/documents", buf)
	req.Header.Set("Content-Type", ct)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.Token, token.Length)
	require.NotNil(t, created.ExpiresAt)

	viewResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/view/"+created.Token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, viewResp.StatusCode)
	assert.Equal(t, "application/pdf", viewResp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(viewResp.Body)
	assert.Equal(t, pdfBody, string(body))

	qrResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/qr/"+created.Token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, qrResp.StatusCode)
	qrBody, _ := io.ReadAll(qrResp.Body)
	assert.True(t, bytes.HasPrefix(qrBody, []byte{0x89, 'P', 'N', 'G'}))
}
