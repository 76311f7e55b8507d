package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"feedbackpipe/internal/services"
)

const (
	statusResumeIncomplete = 308
	maxResponseBody        = 1 << 20
)

// HTTPDoer is the transport used for every protocol request.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type fileMetadata struct {
	Name         string   `json:"name"`
	Parents      []string `json:"parents,omitempty"`
	MimeType     string   `json:"mimeType"`
	CreatedTime  string   `json:"createdTime"`
	ModifiedTime string   `json:"modifiedTime"`
}

// outcome is the server's view of a session after a chunk or probe.
type outcome struct {
	complete  bool
	remoteID  string
	confirmed int64
}

// initiate opens a resumable session and returns its URI.
func (e *Engine) initiate(ctx context.Context, req Request, total int64) (string, error) {
	now := e.now().UTC().Format(time.RFC3339)
	meta := fileMetadata{
		Name:         req.Destination.Name,
		MimeType:     req.MimeType,
		CreatedTime:  now,
		ModifiedTime: now,
	}
	if folder := strings.TrimSpace(req.Destination.FolderID); folder != "" {
		meta.Parents = []string{folder}
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: encode metadata: %w", ErrInitiate, err)
	}

	token, err := req.Credential.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInitiate, services.Wrap(services.ErrConfiguration, "upload", "credential", "bearer token unavailable", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.initiateTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrInitiate, err)
	}
	token.SetAuthHeader(httpReq)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	httpReq.Header.Set("X-Upload-Content-Type", req.MimeType)
	httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(total, 10))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInitiate, transportError("initiate", err))
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrInitiate, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return "", fmt.Errorf("%w: response has no Location header", ErrInitiate)
	}
	return location, nil
}

// putChunk sends data[start:end) and interprets the answer.
func (e *Engine) putChunk(ctx context.Context, sessionURI, mimeType string, data []byte, start, end, total int64) (outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, bytes.NewReader(data[start:end]))
	if err != nil {
		return outcome{}, fmt.Errorf("build chunk request: %w", err)
	}
	httpReq.ContentLength = end - start
	httpReq.Header.Set("Content-Range", ContentRange(start, end, total))
	httpReq.Header.Set("Content-Type", mimeType)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return outcome{}, transportError("chunk", err)
	}
	defer drain(resp)
	return interpret(resp, total)
}

// probe asks the server how many bytes it holds.
func (e *Engine) probe(ctx context.Context, sessionURI string, total int64) (outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.initiateTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, http.NoBody)
	if err != nil {
		return outcome{}, fmt.Errorf("build probe request: %w", err)
	}
	httpReq.ContentLength = 0
	httpReq.Header.Set("Content-Range", "bytes */"+strconv.FormatInt(total, 10))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return outcome{}, transportError("probe", err)
	}
	defer drain(resp)
	out, err := interpret(resp, total)
	if err != nil {
		return outcome{}, err
	}
	if !out.complete && resp.Header.Get("Range") == "" {
		out.confirmed = 0
	}
	return out, nil
}

// interpret maps a chunk or probe response to an outcome. A 308 without a
// Range header is reported with confirmed = -1 so the caller can probe.
func interpret(resp *http.Response, total int64) (outcome, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload); err != nil {
			return outcome{}, protocolError("decode completion body: " + err.Error())
		}
		if strings.TrimSpace(payload.ID) == "" {
			return outcome{}, protocolError("completion body has no id")
		}
		return outcome{complete: true, remoteID: payload.ID, confirmed: total}, nil
	case statusResumeIncomplete:
		header := resp.Header.Get("Range")
		if header == "" {
			return outcome{confirmed: -1}, nil
		}
		confirmed, err := ParseRange(header)
		if err != nil {
			return outcome{}, protocolError(err.Error())
		}
		if confirmed > total {
			return outcome{}, protocolError(fmt.Sprintf("server confirmed %d of %d bytes", confirmed, total))
		}
		return outcome{confirmed: confirmed}, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if text := strings.TrimSpace(string(snippet)); text != "" {
			msg += ": " + text
		}
		return outcome{}, services.Wrap(services.ErrTransient, "upload", "response", msg, nil)
	}
}

// ContentRange renders the header for the half-open slice [start, end).
func ContentRange(start, end, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end-1, total)
}

// ParseRange reads a "bytes=0-N" header and returns N+1, the number of bytes
// the server holds.
func ParseRange(header string) (int64, error) {
	value, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, fmt.Errorf("range header %q lacks bytes= prefix", header)
	}
	first, last, ok := strings.Cut(value, "-")
	if !ok {
		return 0, fmt.Errorf("range header %q is not a span", header)
	}
	if first != "0" {
		return 0, fmt.Errorf("range header %q does not start at 0", header)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < 0 {
		return 0, fmt.Errorf("range header %q has invalid end", header)
	}
	return end + 1, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "upload", op, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "upload", op, "request failed", err)
}

func protocolError(msg string) error {
	return services.Wrap(services.ErrTransient, "upload", "response", msg, ErrProtocol)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	_ = resp.Body.Close()
}

// StaticToken adapts a fixed bearer token to a credential source.
func StaticToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}
