package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/findperson/internal/api/middleware"
)

const testSubject = "key:0123456789ab"

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp simulates an authenticated caller and renders errors like production
func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalSubject, testSubject)
		return c.Next()
	})
	return app
}

type upload struct {
	contentType string
	data        []byte
}

// multipartBody builds a form with an optional name and any number of images
func multipartBody(t *testing.T, name string, images ...upload) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if name != "" {
		require.NoError(t, writer.WriteField("name", name))
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="ref.jpg"`)
		h.Set("Content-Type", img.contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write(img.data)
	}

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decodeJSON(t, resp, &body)
	return body.Error.Code
}
