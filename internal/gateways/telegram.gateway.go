package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const defaultAPIBaseURL = "https://api.telegram.org"

type Config struct {
	Token      string
	BaseURL    string        // defaults to the official Bot API host
	Timeout    time.Duration // per-request deadline
	GlobalRate int           // process-wide sendMessage ceiling, messages/second
	MaxConns   int
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// TelegramClient delivers broadcast messages through the Bot API. One attempt
// per call, no retries: the caller records the outcome per recipient and a
// failed chat simply stays failed. A process-wide limiter keeps the sum of
// all concurrent jobs under the Bot API's global ceiling (~30 msg/s),
// independent of the per-job pacing done by the dispatcher.
type TelegramClient struct {
	config  *Config
	client  *fasthttp.Client
	limiter *rate.Limiter
	baseURL string
	timeout time.Duration
}

func NewTelegramClient(config *Config) (*TelegramClient, error) {
	if config == nil || config.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	globalRate := config.GlobalRate
	if globalRate <= 0 {
		globalRate = 30
	}
	maxConns := config.MaxConns
	if maxConns <= 0 {
		maxConns = 64
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     maxConns,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 60 * time.Second,
	}

	logger.Info("Telegram client initialized", "base_url", baseURL, "timeout", timeout, "global_rate", globalRate)

	return &TelegramClient{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(globalRate), 1),
		baseURL: baseURL,
		timeout: timeout,
	}, nil
}

// Deliver sends one message to one chat. Transport errors, non-2xx responses
// and ok=false API replies all map to a failed outcome with the reason text.
func (c *TelegramClient) Deliver(ctx context.Context, chatID int64, text string) model.DeliveryOutcome {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.DeliveryOutcome{OK: false, Reason: "delivery aborted: " + err.Error()}
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return model.DeliveryOutcome{OK: false, Reason: "failed to encode request: " + err.Error()}
	}

	response, err := c.doRequest(ctx, "/sendMessage", body)
	if err != nil {
		return model.DeliveryOutcome{OK: false, Reason: err.Error()}
	}

	var resp apiResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return model.DeliveryOutcome{OK: false, Reason: "failed to decode response: " + err.Error()}
	}
	if !resp.OK {
		reason := resp.Description
		if reason == "" {
			reason = fmt.Sprintf("telegram error %d", resp.ErrorCode)
		}
		return model.DeliveryOutcome{OK: false, Reason: reason}
	}

	return model.DeliveryOutcome{OK: true}
}

// doRequest performs one Bot API call with the configured deadline.
func (c *TelegramClient) doRequest(ctx context.Context, method string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/bot%s%s", c.baseURL, c.config.Token, method))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	// The Bot API reports errors in the JSON body even on non-2xx codes, so
	// the body is returned regardless and the caller inspects ok/description.
	return append([]byte(nil), resp.Body()...), nil
}
