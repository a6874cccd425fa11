package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"waste-patrol-service/internal/domain/detection"
)

// DetectorClient calls the image detection service's /process-waste
// endpoint with a multipart "image" field.
type DetectorClient struct {
	baseURL string
	client  *http.Client
}

func NewDetectorClient(baseURL string, timeout time.Duration) *DetectorClient {
	return &DetectorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *DetectorClient) Detect(ctx context.Context, image []byte, contentType string) (detection.Raw, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return detection.Raw{}, err
	}
	if _, err := part.Write(image); err != nil {
		return detection.Raw{}, err
	}
	if err := mw.Close(); err != nil {
		return detection.Raw{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-waste", &body)
	if err != nil {
		return detection.Raw{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return detection.Raw{}, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return detection.Raw{}, fmt.Errorf("detector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var raw detection.Raw
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return detection.Raw{}, fmt.Errorf("decode detector response: %w", err)
	}
	return raw, nil
}
