package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"droidpilot/internal/faults"
	"droidpilot/internal/logging"

	"github.com/bytedance/sonic"
)

const defaultTimeout = 30 * time.Second

type HTTPOptions struct {
	BaseURL         string
	Timeout         time.Duration
	WaitToStabilize bool
	// Width and Height override the logical size; zero means the screenshot
	// bounds.
	Width  int
	Height int
	Client *http.Client
	Logger *slog.Logger
}

// HTTPDevice is a Device backed by the device server's JSON API.
type HTTPDevice struct {
	baseURL string
	client  *http.Client
	wait    bool
	width   int
	height  int
	logger  *slog.Logger
}

func NewHTTPDevice(opts HTTPOptions) (*HTTPDevice, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, faults.Validation("device.base_url", "must not be empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, faults.Validation("device.base_url", "%v", err)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPDevice{
		baseURL: base,
		client:  client,
		wait:    opts.WaitToStabilize,
		width:   opts.Width,
		height:  opts.Height,
		logger:  logging.OrDiscard(opts.Logger),
	}, nil
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

type screenshotResponse struct {
	Pixels [][][]int `json:"pixels"`
}

func (d *HTTPDevice) Observe(ctx context.Context) (Observation, error) {
	q := url.Values{"wait_to_stabilize": {strconv.FormatBool(d.wait)}}
	var resp screenshotResponse
	if err := d.do(ctx, "observe", http.MethodGet, "/screenshot", q, nil, &resp); err != nil {
		return Observation{}, err
	}
	img, err := decodePixels(resp.Pixels)
	if err != nil {
		return Observation{}, fmt.Errorf("decode screenshot: %w", err)
	}
	w, h := d.width, d.height
	if w <= 0 || h <= 0 {
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	return Observation{Screenshot: img, Width: w, Height: h}, nil
}

func (d *HTTPDevice) Dispatch(ctx context.Context, action map[string]any) error {
	if len(action) == 0 {
		return faults.Validation("action", "must not be empty")
	}
	var resp statusResponse
	if err := d.do(ctx, "dispatch", http.MethodPost, "/execute_action", nil, action, &resp); err != nil {
		return err
	}
	if resp.Status != "" && resp.Status != "success" {
		return fmt.Errorf("execute_action: %s", firstNonEmpty(resp.Message, resp.Detail, resp.Status))
	}
	d.logger.Debug("device action executed", "action_type", action["action_type"], "message", resp.Message)
	return nil
}

func (d *HTTPDevice) NavigateBack(ctx context.Context) error {
	return d.Dispatch(ctx, map[string]any{"action_type": "navigate_back"})
}

func (d *HTTPDevice) NavigateHome(ctx context.Context) error {
	return d.Dispatch(ctx, map[string]any{"action_type": "navigate_home"})
}

func (d *HTTPDevice) LaunchApp(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return faults.Validation("app_name", "must not be empty")
	}
	return d.Dispatch(ctx, map[string]any{"action_type": "open_app", "app_name": name})
}

func (d *HTTPDevice) Reset(ctx context.Context, goHome bool) error {
	q := url.Values{"go_home": {strconv.FormatBool(goHome)}}
	return d.do(ctx, "reset", http.MethodPost, "/reset", q, nil, nil)
}

// Health returns a TransientDeviceError unless the server reports success.
func (d *HTTPDevice) Health(ctx context.Context) error {
	var resp statusResponse
	if err := d.do(ctx, "health", http.MethodGet, "/health", nil, nil, &resp); err != nil {
		var te *faults.TransientDeviceError
		if errors.As(err, &te) {
			return err
		}
		return faults.Transient("health", err)
	}
	if resp.Status != "success" {
		return faults.Transient("health", fmt.Errorf("status %q", resp.Status))
	}
	return nil
}

// Reconnect drops idle connections and checks health.
func (d *HTTPDevice) Reconnect(ctx context.Context) error {
	d.client.CloseIdleConnections()
	d.logger.Info("device reconnect", "base_url", d.baseURL)
	return d.Health(ctx)
}

func (d *HTTPDevice) Close(ctx context.Context) error {
	return d.do(ctx, "close", http.MethodPost, "/close", nil, nil, nil)
}

func (d *HTTPDevice) do(ctx context.Context, op, method, path string, q url.Values, body any, out any) error {
	u := d.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return faults.Transient(op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.Transient(op, err)
	}

	if resp.StatusCode >= 300 {
		httpErr := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return faults.Transient(op, httpErr)
		}
		if op == "health" {
			return faults.Transient(op, httpErr)
		}
		return httpErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// decodePixels converts rows of [r,g,b] or [r,g,b,a] triples to an image.
func decodePixels(rows [][][]int) (*image.RGBA, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("empty pixel array")
	}
	h, w := len(rows), len(rows[0])
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("row %d has %d pixels, want %d", y, len(row), w)
		}
		for x, px := range row {
			if len(px) < 3 {
				return nil, fmt.Errorf("pixel (%d,%d) has %d channels", x, y, len(px))
			}
			a := uint8(255)
			if len(px) > 3 {
				a = clampByte(px[3])
			}
			img.SetRGBA(x, y, color.RGBA{R: clampByte(px[0]), G: clampByte(px[1]), B: clampByte(px[2]), A: a})
		}
	}
	return img, nil
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
