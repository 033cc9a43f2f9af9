package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Request timeouts.
const (
	defaultRequestTimeout  = 10 * time.Second
	DefaultLongPollTimeout = 90 * time.Second
)

// Hub object model service names used for actions.
const (
	serviceExhaustAir = "exhaustAirDeviceService_haube"
	serviceSupplyAir  = "supplyAirDeviceService_haube"
	serviceLighting   = "lightingDeviceService"

	// exhoodSuffix distinguishes the hood's services from same-named ones.
	exhoodSuffix = "_haube"
)

// Event fields carrying values.
const (
	eventValueChange = "notification.OMValueChange"
	fieldFan         = "exhaustAirFromField"
	fieldFlap        = "supplyAirFromField"
	fieldWindow      = "maxSupplyAir"
)

// ClientConfig configures the hub client.
type ClientConfig struct {
	// URL is the hub address, e.g. "http://127.0.0.1" or "127.0.0.1:8080".
	URL string

	// Device names in the hub object model.
	ExhoodDevice string
	LightDevice  string
	WindowDevice string

	// RequestTimeout bounds bootstrap and action requests.
	RequestTimeout time.Duration

	// LongPollTimeout bounds one long-poll request.
	LongPollTimeout time.Duration

	// HTTPClient is optional.
	HTTPClient *http.Client
}

// Client implements Adapter over the hub HTTP API.
//
// Thread Safety: safe for concurrent use; actions and polling may run on
// different goroutines.
type Client struct {
	baseURL         string
	cfg             ClientConfig
	httpClient      *http.Client
	requestTimeout  time.Duration
	longPollTimeout time.Duration

	mu        sync.RWMutex
	sessionID string

	// services maps service id to its registered name.
	services map[string]string
}

// NewClient creates a hub client. No request is made until Bootstrap.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, fmt.Errorf("hub url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	if _, err := url.Parse(raw); err != nil {
		return nil, fmt.Errorf("parsing hub url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	reqTimeout := cfg.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = defaultRequestTimeout
	}
	pollTimeout := cfg.LongPollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultLongPollTimeout
	}

	return &Client{
		baseURL:         strings.TrimRight(raw, "/"),
		cfg:             cfg,
		httpClient:      httpClient,
		requestTimeout:  reqTimeout,
		longPollTimeout: pollTimeout,
		services:        make(map[string]string),
	}, nil
}

type objectModelResponse struct {
	AjaxSessionID string       `json:"ajaxSessionId"`
	ObjectModel   *objectModel `json:"objectModel"`
}

type objectModel struct {
	Devices  map[string]omDevice  `json:"devices"`
	Services map[string]omService `json:"services"`
}

type omDevice struct {
	Name       string   `json:"name"`
	ServiceIDs []string `json:"serviceIds"`
}

type omService struct {
	Name string `json:"name"`
}

type actionResponse struct {
	Success bool `json:"success"`
}

// Bootstrap fetches the object model, stores the session id and registers
// the services of the configured devices.
func (c *Client) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp objectModelResponse
	if err := c.getJSON(ctx, url.Values{"action": {"getObjectModelAndAjaxSessionId"}}, &resp); err != nil {
		return fmt.Errorf("fetching object model: %w", err)
	}
	if resp.AjaxSessionID == "" {
		return fmt.Errorf("%w: object model without session id", ErrBadResponse)
	}

	services := make(map[string]string)
	if resp.ObjectModel != nil {
		for _, dev := range resp.ObjectModel.Devices {
			if !c.wantedDevice(dev.Name) {
				continue
			}
			for _, id := range dev.ServiceIDs {
				svc, ok := resp.ObjectModel.Services[id]
				if !ok {
					continue
				}
				name := svc.Name
				if dev.Name == c.cfg.ExhoodDevice {
					name += exhoodSuffix
				}
				services[id] = name
			}
		}
	}

	c.mu.Lock()
	c.sessionID = resp.AjaxSessionID
	c.services = services
	c.mu.Unlock()
	return nil
}

func (c *Client) wantedDevice(name string) bool {
	return name != "" && (name == c.cfg.ExhoodDevice || name == c.cfg.LightDevice || name == c.cfg.WindowDevice)
}

// SessionID returns the current ajax session id.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Services returns a copy of the registered service map (id to name).
func (c *Client) Services() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.services))
	for k, v := range c.services {
		out[k] = v
	}
	return out
}

// LongPoll waits for the next event batch. A poll that reaches the
// long-poll timeout while parent is still live returns ErrPollIdle.
func (c *Client) LongPoll(parent context.Context) (EventBatch, error) {
	session := c.SessionID()
	if session == "" {
		return EventBatch{}, ErrNotBootstrapped
	}

	ctx, cancel := context.WithTimeout(parent, c.longPollTimeout)
	defer cancel()

	var batch EventBatch
	err := c.getJSON(ctx, url.Values{
		"action":        {"waitForEvents"},
		"ajaxSessionId": {session},
	}, &batch)
	if err != nil {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return EventBatch{}, fmt.Errorf("%w: %w", ErrPollIdle, err)
		}
		return EventBatch{}, fmt.Errorf("waiting for events: %w", err)
	}
	return batch, nil
}

// DecodeEvent collects the fan, flap and window values of registered
// services from value change events. Later events override earlier ones.
func (c *Client) DecodeEvent(batch EventBatch) (PollResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result PollResult
	for _, ev := range batch.Events {
		if ev.EventName != eventValueChange {
			continue
		}
		for _, id := range sortedKeys(ev.ChangedObjects) {
			if _, ok := c.services[id]; !ok {
				continue
			}
			fields := ev.ChangedObjects[id]
			for name, dst := range map[string]**int{fieldFan: &result.Fan, fieldFlap: &result.Flap, fieldWindow: &result.Window} {
				raw, ok := fields[name]
				if !ok {
					continue
				}
				v, err := decodeNumber(raw)
				if err != nil {
					return PollResult{}, fmt.Errorf("%w: field %s of service %s: %w", ErrBadResponse, name, id, err)
				}
				*dst = &v
			}
		}
	}
	return result, nil
}

// decodeNumber accepts a JSON number, a numeric string or a boolean.
func decodeNumber(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(math.Round(f)), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, err
		}
		return int(math.Round(f)), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %s", raw)
}

// SetExhaustAir sets the hood fan level.
func (c *Client) SetExhaustAir(ctx context.Context, level int) error {
	return c.call(ctx, serviceExhaustAir, "setExhaustAir", strconv.Itoa(level))
}

// SetSupplyAir sets the hood flap level.
func (c *Client) SetSupplyAir(ctx context.Context, level int) error {
	return c.call(ctx, serviceSupplyAir, "setSupplyAir", strconv.Itoa(level))
}

// SetLightIntensity sets the light intensity in percent.
func (c *Client) SetLightIntensity(ctx context.Context, level int) error {
	return c.call(ctx, serviceLighting, "setIntensity", strconv.FormatFloat(float64(level), 'f', 6, 64))
}

// call invokes method on the service registered under serviceName.
func (c *Client) call(ctx context.Context, serviceName, method, value string) error {
	c.mu.RLock()
	session := c.sessionID
	id, ok := c.serviceID(serviceName)
	c.mu.RUnlock()

	if session == "" {
		return ErrNotBootstrapped
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, serviceName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp actionResponse
	err := c.getJSON(ctx, url.Values{
		"event":         {"objectmodel.MethodCall"},
		"arg[]":         {id, method, value},
		"ajaxSessionId": {session},
		"action":        {"sendEvent"},
	}, &resp)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s %s", ErrActionRejected, method, value)
	}
	return nil
}

// serviceID finds the id registered under name. The lowest id wins.
// Caller must hold c.mu.
func (c *Client) serviceID(name string) (string, bool) {
	for _, id := range sortedKeys(c.services) {
		if c.services[id] == name {
			return id, true
		}
	}
	return "", false
}

func (c *Client) getJSON(ctx context.Context, query url.Values, dest any) error {
	endpoint := c.baseURL + "/json/?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", query.Get("action"), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", query.Get("action"), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrBadResponse, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
