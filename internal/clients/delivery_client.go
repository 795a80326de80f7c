/**
 * Delivery client for the ingestion collaborator.
 *
 * The core's contract with the downstream layer is "final bytes + content
 * type + name"; this client owns how many delivery attempts that takes:
 * 1. Multipart POST (file + doc_name + uploaded_on) to the primary insert
 *    endpoint, which stores the bytes directly.
 * 2. Fallback for legacy deployments: form-insert the name on the primary
 *    endpoint, then multipart-attach the bytes on the legacy endpoint.
 */

package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/freightflow/docintake-worker/internal/logging"
)

// DeliveryClient hands finished artifacts to the ingestion endpoints.
type DeliveryClient struct {
	insertURL  string
	attachURL  string
	httpClient *http.Client
	log        *logging.Logger
}

// Delivery is one artifact to hand off.
type Delivery struct {
	ArtifactName string
	ContentType  string
	Data         []byte
	UploadedOn   time.Time
}

// DeliveryResult reports which route accepted the artifact.
type DeliveryResult struct {
	Via      string // "insert" or "attach"
	Response string // truncated endpoint response, for outcome records
}

// NewDeliveryClient creates a delivery client. attachURL may be empty when no
// legacy endpoint exists; the fallback step is then skipped.
func NewDeliveryClient(insertURL, attachURL string) *DeliveryClient {
	return &DeliveryClient{
		insertURL: insertURL,
		attachURL: attachURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: logging.NewLogger("delivery"),
	}
}

// HealthCheck verifies the primary insert endpoint is reachable.
func (c *DeliveryClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.insertURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("insert endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("insert endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// Deliver hands one artifact to the collaborator, trying the primary route
// first and the legacy attach route on failure.
func (c *DeliveryClient) Deliver(ctx context.Context, d *Delivery) (*DeliveryResult, error) {
	if len(d.Data) == 0 {
		return nil, fmt.Errorf("artifact data is required: received empty buffer")
	}
	if d.ArtifactName == "" {
		return nil, fmt.Errorf("artifact name is required")
	}

	body, err := c.postInsertMultipart(ctx, d)
	if err == nil {
		return &DeliveryResult{Via: "insert", Response: body}, nil
	}
	c.log.Warn("primary insert failed, trying legacy attach",
		"artifact", d.ArtifactName, "error", err)

	if c.attachURL == "" {
		return nil, fmt.Errorf("primary insert failed and no legacy attach endpoint configured: %w", err)
	}

	if err := c.postInsertForm(ctx, d); err != nil {
		return nil, fmt.Errorf("legacy form insert failed: %w", err)
	}

	body, err = c.postAttachMultipart(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("legacy attach failed: %w", err)
	}

	return &DeliveryResult{Via: "attach", Response: body}, nil
}

// postInsertMultipart is the preferred route: one multipart request carrying
// both the record fields and the file bytes.
func (c *DeliveryClient) postInsertMultipart(ctx context.Context, d *Delivery) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("doc_name", d.ArtifactName); err != nil {
		return "", fmt.Errorf("failed to write doc_name field: %w", err)
	}
	if err := w.WriteField("uploaded_on", d.UploadedOn.Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("failed to write uploaded_on field: %w", err)
	}
	if err := writeFilePart(w, "file", d.ArtifactName, d.ContentType, d.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return c.post(ctx, c.insertURL, w.FormDataContentType(), &buf)
}

// postInsertForm creates the bare record on the primary endpoint so the
// legacy attach step has a row to bind the bytes to.
func (c *DeliveryClient) postInsertForm(ctx context.Context, d *Delivery) error {
	// Client names may carry form-reserved characters ("&", "+"), and the
	// RFC3339 timestamp its zone offset; both must survive the encoding.
	form := url.Values{
		"doc_name":    {d.ArtifactName},
		"uploaded_on": {d.UploadedOn.Format(time.RFC3339)},
	}

	_, err := c.post(ctx, c.insertURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	return err
}

func (c *DeliveryClient) postAttachMultipart(ctx context.Context, d *Delivery) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("file_name", d.ArtifactName); err != nil {
		return "", fmt.Errorf("failed to write file_name field: %w", err)
	}
	if err := writeFilePart(w, "file", d.ArtifactName, d.ContentType, d.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return c.post(ctx, c.attachURL, w.FormDataContentType(), &buf)
}

func (c *DeliveryClient) post(ctx context.Context, url, contentType string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return string(respBody), nil
}

// writeFilePart adds the file to the multipart body with its real content
// type instead of the default application/octet-stream.
func writeFilePart(w *multipart.Writer, field, filename, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write file part: %w", err)
	}

	return nil
}
