package dtapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	telemetry "coldstorage/internal/telemetry/domain"
)

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://api.disruptive-technologies.com/v2"

const (
	defaultReconnects     = 5
	defaultReconnectDelay = time.Second
	temperatureType       = "temperature"
)

// Client is a minimal sensor cloud REST client authenticated with a service
// account key id and secret.
type Client struct {
	baseURL        string
	projectID      string
	keyID          string
	secret         string
	client         *http.Client
	streamClient   *http.Client
	logger         *log.Logger
	reconnects     int
	reconnectDelay time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the client used for request/response calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithStreamClient overrides the client used for the long-lived stream.
func WithStreamClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.streamClient = client
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReconnects sets how many consecutive stream failures are tolerated.
func WithReconnects(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.reconnects = n
		}
	}
}

// WithReconnectDelay sets the pause before reconnecting the stream.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.reconnectDelay = d
		}
	}
}

// NewClient constructs a client for one project.
func NewClient(baseURL, projectID, keyID, secret string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if projectID == "" {
		return nil, errors.New("dtapi: empty project id")
	}
	if keyID == "" || secret == "" {
		return nil, errors.New("dtapi: missing service account credentials")
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		projectID:      projectID,
		keyID:          keyID,
		secret:         secret,
		client:         &http.Client{Timeout: 10 * time.Second},
		streamClient:   &http.Client{},
		logger:         log.Default(),
		reconnects:     defaultReconnects,
		reconnectDelay: defaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Device is a sensor registered in the project.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type devicesPage struct {
	Devices []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"devices"`
	NextPageToken string `json:"nextPageToken"`
}

type eventsPage struct {
	Events        []json.RawMessage `json:"events"`
	NextPageToken string            `json:"nextPageToken"`
}

// ListTemperatureDevices returns every temperature sensor in the project.
func (c *Client) ListTemperatureDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	pageToken := ""
	for {
		query := url.Values{}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page devicesPage
		if err := c.doJSON(ctx, c.projectPath("/devices"), query, &page); err != nil {
			return nil, err
		}
		for _, d := range page.Devices {
			if d.Type != temperatureType {
				continue
			}
			devices = append(devices, Device{ID: telemetry.DeviceIDFromName(d.Name), Name: d.Name, Type: d.Type})
		}
		if page.NextPageToken == "" {
			return devices, nil
		}
		pageToken = page.NextPageToken
	}
}

// History returns the temperature events of one device between start and
// end. Events that cannot be parsed are logged and dropped.
func (c *Client) History(ctx context.Context, deviceID string, start, end time.Time) ([]telemetry.Event, error) {
	if deviceID == "" {
		return nil, errors.New("dtapi: empty device id")
	}
	var events []telemetry.Event
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("eventTypes", temperatureType)
		if !start.IsZero() {
			query.Set("startTime", start.UTC().Format(time.RFC3339))
		}
		if !end.IsZero() {
			query.Set("endTime", end.UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page eventsPage
		if err := c.doJSON(ctx, c.projectPath("/devices/"+url.PathEscape(deviceID)+"/events"), query, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Events {
			evt, err := telemetry.ParseEvent(raw)
			if err != nil {
				if !errors.Is(err, telemetry.ErrNotTemperature) {
					c.logger.Printf("dtapi: history %s decode error: %v", deviceID, err)
				}
				continue
			}
			events = append(events, evt)
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// ProjectHistory collects the history of every device and sorts it by time.
func (c *Client) ProjectHistory(ctx context.Context, devices []Device, start, end time.Time) ([]telemetry.Event, error) {
	var all []telemetry.Event
	for _, d := range devices {
		events, err := c.History(ctx, d.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("dtapi: history %s: %w", d.ID, err)
		}
		all = append(all, events...)
	}
	telemetry.SortEvents(all)
	return all, nil
}

func (c *Client) projectPath(suffix string) string {
	return "/projects/" + url.PathEscape(c.projectID) + suffix
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.secret)
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("dtapi: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
