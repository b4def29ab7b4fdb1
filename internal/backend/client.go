// Package backend talks to the wibi API: it fetches the per-website
// widget configuration and builds the tracking requests that the
// delivery queue sends.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"wibi/internal/delivery"
	"wibi/internal/sessions"
	"wibi/internal/visitors"
)

// API endpoint paths.
const (
	OptionsPath           = "/wibi-options"
	PageViewPath          = "/api/track/page-view"
	InteractionPath       = "/api/track/interaction"
	SourceAttributionPath = "/api/track/source-attribution"
	GTMIDPath             = "/api/public/gtm-id"
	ErrorPath             = "/api/track/error"
	ConsentPath           = "/api/track/consent"
)

var gtmIDPattern = regexp.MustCompile(`^GTM-[A-Z0-9]+$`)

// ConfigFetchError reports a failed widget configuration fetch. The
// widget cannot render without its configuration, so callers treat this
// as fatal.
type ConfigFetchError struct {
	WebsiteID  string
	StatusCode int
	Err        error
}

func (e *ConfigFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching widget config for website %s: %v", e.WebsiteID, e.Err)
	}
	return fmt.Sprintf("fetching widget config for website %s: status %d", e.WebsiteID, e.StatusCode)
}

func (e *ConfigFetchError) Unwrap() error { return e.Err }

// CustomButton is an operator-defined extra contact button.
type CustomButton struct {
	Label     string `json:"label"`
	URL       string `json:"url"`
	LogoCode  string `json:"logo_code,omitempty"`
	ColorCode string `json:"colorCode,omitempty"`
	NewTab    bool   `json:"new_tab,omitempty"`
}

// BusinessHoursConfig bounds when the call button is offered. Days use
// time.Weekday numbering.
type BusinessHoursConfig struct {
	Enabled   bool `json:"enabled"`
	StartDay  int  `json:"startDay"`
	EndDay    int  `json:"endDay"`
	StartHour int  `json:"startHour"`
	EndHour   int  `json:"endHour"`
	EndMinute int  `json:"endMinute"`
}

// WidgetConfig is the per-website configuration served by the backend.
// Field names follow the wire format.
type WidgetConfig struct {
	Position  string `json:"position,omitempty"`
	Label     string `json:"label,omitempty"`
	ColorCode string `json:"color_code,omitempty"`

	PhoneShow bool   `json:"phone_show"`
	PNumber   string `json:"pnumber,omitempty"`
	PhoneText string `json:"phoneText,omitempty"`

	WhatsAppShow    bool   `json:"whatsapp_show"`
	WNumber         string `json:"wnumber,omitempty"`
	WhatsAppMessage string `json:"whatsapp_message,omitempty"`

	EmailShow bool   `json:"email_show"`
	Email     string `json:"email,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`

	MessengerShow bool   `json:"messenger_show"`
	MessengerURL  string `json:"messenger_url,omitempty"`

	TextShow   bool   `json:"text_show"`
	PNumberSMS string `json:"pnumber_sms,omitempty"`
	SMSBody    string `json:"sms_body,omitempty"`

	TelegramShow bool   `json:"telegram_show"`
	TelegramNum  string `json:"telegram_num,omitempty"`

	ViberShow bool   `json:"viber_show"`
	ViberNum  string `json:"viber_num,omitempty"`

	SkypeShow      bool   `json:"skype_show"`
	SkypeNameEmail string `json:"skype_nameemail,omitempty"`

	LineShow bool   `json:"line_show"`
	Line     string `json:"line,omitempty"`

	BookingShow    bool   `json:"book_a_technician_show"`
	BookingFormURL string `json:"booking_form_url,omitempty"`

	BrandingShow  bool                 `json:"branding_show"`
	CustomButtons []CustomButton       `json:"custom_buttons,omitempty"`
	BusinessHours *BusinessHoursConfig `json:"businessHours,omitempty"`
}

// ClientData rides along on the config fetch so the backend sees the
// environment it is serving.
type ClientData struct {
	ScreenResolution string `json:"screenResolution"`
	BotDetection     any    `json:"botDetection,omitempty"`
}

// Client is the API client. Tracking payloads are not sent directly;
// they are handed to the delivery queue as prepared requests.
type Client struct {
	baseURL    string
	websiteID  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, websiteID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		websiteID:  websiteID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// FetchWidgetConfig retrieves the widget configuration, identifying the
// visit via query parameters.
func (c *Client) FetchWidgetConfig(ctx context.Context, pageURL, visitorToken string, source any, clientData ClientData) (*WidgetConfig, error) {
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return nil, &ConfigFetchError{WebsiteID: c.websiteID, Err: fmt.Errorf("encoding source: %w", err)}
	}
	clientJSON, err := json.Marshal(clientData)
	if err != nil {
		return nil, &ConfigFetchError{WebsiteID: c.websiteID, Err: fmt.Errorf("encoding client data: %w", err)}
	}

	query := url.Values{}
	query.Set("id", c.websiteID)
	query.Set("pg", pageURL)
	query.Set("utk", visitorToken)
	query.Set("source", string(sourceJSON))
	query.Set("clientData", string(clientJSON))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+OptionsPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &ConfigFetchError{WebsiteID: c.websiteID, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConfigFetchError{WebsiteID: c.websiteID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &ConfigFetchError{WebsiteID: c.websiteID, StatusCode: resp.StatusCode}
	}

	var config WidgetConfig
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, &ConfigFetchError{WebsiteID: c.websiteID, Err: fmt.Errorf("decoding config: %w", err)}
	}

	c.logger.Debug("widget config loaded", slog.String("website_id", c.websiteID))
	return &config, nil
}

// FetchGTMContainerID asks the backend for the Google Tag Manager
// container configured for the page's hostname. A missing or malformed
// container ID returns empty with no error; the integration is optional.
func (c *Client) FetchGTMContainerID(ctx context.Context, hostname string) (string, error) {
	endpoint := c.baseURL + GTMIDPath + "?url=" + url.QueryEscape(hostname)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching gtm container id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", nil
	}

	var payload struct {
		GTMContainerID string `json:"gtm_container_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding gtm response: %w", err)
	}

	if !gtmIDPattern.MatchString(payload.GTMContainerID) {
		if payload.GTMContainerID != "" {
			c.logger.Warn("rejecting malformed gtm container id",
				slog.String("gtm_container_id", payload.GTMContainerID))
		}
		return "", nil
	}
	return payload.GTMContainerID, nil
}

// ReportError posts a client-side error to the backend. Failures are
// logged and swallowed; error reporting must never cascade.
func (c *Client) ReportError(ctx context.Context, message, stack, pageURL string) {
	payload := map[string]any{
		"websiteId": c.websiteID,
		"message":   message,
		"stack":     stack,
		"url":       pageURL,
		"timestamp": time.Now().UnixMilli(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ErrorPath, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("error report failed", slog.Any("error", err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
}

// PageViewRequest builds the page-view tracking request.
func (c *Client) PageViewRequest(pageURL, referrer string, visitor visitors.Data, session *sessions.Session) delivery.Request {
	payload := map[string]any{
		"websiteId": c.websiteID,
		"url":       pageURL,
		"referrer":  referrer,
		"visitor":   visitor,
		"timestamp": time.Now().UnixMilli(),
	}
	if session != nil {
		payload["sessionId"] = session.ID
		payload["pageViews"] = session.PageViews
	}
	return c.trackingRequest(PageViewPath, payload)
}

// InteractionRequest builds the request for a widget interaction.
func (c *Client) InteractionRequest(action, pageURL, visitorToken string, session *sessions.Session, detail map[string]any) delivery.Request {
	payload := map[string]any{
		"websiteId": c.websiteID,
		"action":    action,
		"url":       pageURL,
		"utk":       visitorToken,
		"detail":    detail,
		"timestamp": time.Now().UnixMilli(),
	}
	if session != nil {
		payload["sessionId"] = session.ID
	}
	return c.trackingRequest(InteractionPath, payload)
}

// SourceAttributionRequest builds the request reporting the visit's
// classified traffic source.
func (c *Client) SourceAttributionRequest(visitorToken, pageURL string, source any) delivery.Request {
	payload := map[string]any{
		"websiteId": c.websiteID,
		"utk":       visitorToken,
		"url":       pageURL,
		"source":    source,
		"timestamp": time.Now().UnixMilli(),
	}
	return c.trackingRequest(SourceAttributionPath, payload)
}

// ConsentRequest builds the request syncing the visitor's consent
// record to the backend.
func (c *Client) ConsentRequest(visitorToken string, record any) delivery.Request {
	payload := map[string]any{
		"websiteId": c.websiteID,
		"utk":       visitorToken,
		"consent":   record,
		"timestamp": time.Now().UnixMilli(),
	}
	return c.trackingRequest(ConsentPath, payload)
}

func (c *Client) trackingRequest(path string, payload map[string]any) delivery.Request {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("encoding tracking payload", slog.String("path", path), slog.Any("error", err))
		body = []byte("{}")
	}
	return delivery.Request{
		URL:       c.baseURL + path,
		Method:    http.MethodPost,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
	}
}
