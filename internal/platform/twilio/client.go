package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/coursesync-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursesync-backend/internal/platform/envutil"
	"github.com/yungbote/coursesync-backend/internal/platform/httpx"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

type Client interface {
	SendSMS(ctx context.Context, to string, body string) (*Message, error)
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
}

type Config struct {
	AccountSID          string
	AuthToken           string
	BaseURL             string
	FromNumber          string
	MessagingServiceSID string
	StatusCallbackURL   string
	Timeout             time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		AccountSID:          envutil.String("TWILIO_ACCOUNT_SID", ""),
		AuthToken:           envutil.String("TWILIO_AUTH_TOKEN", ""),
		BaseURL:             envutil.String("TWILIO_BASE_URL", ""),
		FromNumber:          envutil.String("TWILIO_PHONE_NUMBER", ""),
		MessagingServiceSID: envutil.String("TWILIO_MESSAGING_SERVICE_SID", ""),
		StatusCallbackURL:   envutil.String("TWILIO_STATUS_CALLBACK_URL", ""),
		Timeout:             envutil.Seconds("TWILIO_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:          envutil.Int("TWILIO_MAX_RETRIES", 3),
	}
}

// Configured reports whether cfg carries enough to send messages.
func (cfg Config) Configured() bool {
	return strings.TrimSpace(cfg.AccountSID) != "" &&
		strings.TrimSpace(cfg.AuthToken) != "" &&
		(strings.TrimSpace(cfg.FromNumber) != "" || strings.TrimSpace(cfg.MessagingServiceSID) != "")
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("missing TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("missing TWILIO_AUTH_TOKEN")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	return &client{
		log:        log.With("client", "TwilioClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type SendMessageRequest struct {
	To                  string
	From                string
	MessagingServiceSID string
	Body                string
	StatusCallbackURL   string
}

type Message struct {
	SID          string  `json:"sid,omitempty"`
	AccountSID   string  `json:"account_sid,omitempty"`
	To           string  `json:"to,omitempty"`
	From         string  `json:"from,omitempty"`
	Body         string  `json:"body,omitempty"`
	Status       string  `json:"status,omitempty"`
	NumSegments  string  `json:"num_segments,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	DateCreated  string  `json:"date_created,omitempty"`
}

func (c *client) SendSMS(ctx context.Context, to string, body string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageRequest{To: to, Body: body})
}

func (c *client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	req.To = strings.TrimSpace(req.To)
	req.Body = strings.TrimSpace(req.Body)
	if req.To == "" {
		return nil, fmt.Errorf("twilio: To required")
	}
	if req.Body == "" {
		return nil, fmt.Errorf("twilio: Body required")
	}
	if strings.TrimSpace(req.From) == "" {
		req.From = c.cfg.FromNumber
	}
	if strings.TrimSpace(req.MessagingServiceSID) == "" {
		req.MessagingServiceSID = c.cfg.MessagingServiceSID
	}
	if strings.TrimSpace(req.StatusCallbackURL) == "" {
		req.StatusCallbackURL = c.cfg.StatusCallbackURL
	}
	if req.From == "" && req.MessagingServiceSID == "" {
		return nil, fmt.Errorf("twilio: sender required (From or MessagingServiceSID)")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("Body", req.Body)
	if req.From != "" {
		form.Set("From", req.From)
	}
	if req.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", req.MessagingServiceSID)
	}
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
	return c.postForm(ctx, endpoint, form)
}

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "twilio: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		if e.APIError.Code != 0 {
			return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.APIError.Message, e.APIError.Code)
		}
		return fmt.Sprintf("twilio http %d: %s", e.StatusCode, e.APIError.Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) postForm(ctx context.Context, endpoint string, form url.Values) (*Message, error) {
	ctx = ctxutil.Default(ctx)
	backoff := c.cfg.RetryBackoff

	for attempt := 0; ; attempt++ {
		msg, resp, err := c.postFormOnce(ctx, endpoint, form)
		if err == nil {
			return msg, nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.cfg.MaxRetries {
			return nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Twilio request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func (c *client) postFormOnce(ctx context.Context, endpoint string, form url.Values) (*Message, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && strings.TrimSpace(ae.Message) != "" {
			he.APIError = &ae
		}
		return nil, resp, he
	}

	var out Message
	if len(raw) == 0 {
		return &out, resp, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp, fmt.Errorf("twilio decode error: %w", err)
	}
	return &out, resp, nil
}
