package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client talks to the cloud-drop API of a running server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Upload is the result of a successful upload.
type Upload = uploadResponse

// SessionInfo describes a shared session without its contents.
type SessionInfo = validateResponse

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// HTTPBase converts a relay URL such as ws://host:8080 into its http base.
func HTTPBase(relayURL string) string {
	switch {
	case strings.HasPrefix(relayURL, "wss://"):
		return "https://" + strings.TrimPrefix(relayURL, "wss://")
	case strings.HasPrefix(relayURL, "ws://"):
		return "http://" + strings.TrimPrefix(relayURL, "ws://")
	default:
		return relayURL
	}
}

// Upload streams paths as one multipart request.
func (c *Client) Upload(ctx context.Context, senderName string, paths []string) (*Upload, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, senderName, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Upload
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, senderName string, paths []string) error {
	if err := mw.WriteField("senderName", senderName); err != nil {
		return err
	}
	for _, path := range paths {
		if err := writeFormFile(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFormFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func (c *Client) Validate(ctx context.Context, code string) (*SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/validate?code="+url.QueryEscape(code), nil)
	if err != nil {
		return nil, err
	}
	var out SessionInfo
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download writes the session archive to w.
func (c *Client) Download(ctx context.Context, code string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/download?code="+url.QueryEscape(code), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, responseError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-200 API response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &StatusError{Status: resp.StatusCode, Message: body.Error}
}
