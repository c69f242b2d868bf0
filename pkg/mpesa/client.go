package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wafulah/dukapesa-backend/pkg/config"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
)

const (
	tokenPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	transactionType = "CustomerPayBillOnline"
	timestampLayout = "20060102150405"
)

var errLoggerRequired = errors.New("mpesa logger is required")

// Client talks to the Daraja-style STK push gateway. It caches the OAuth
// bearer token until shortly before its advertised expiry and never touches
// application state beyond its outbound HTTP calls.
type Client struct {
	httpClient *http.Client
	cfg        config.MpesaConfig
	logg       *logger.Logger
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient validates the gateway credentials and builds a client. Missing
// credentials fail here, at startup, rather than per request.
func NewClient(cfg config.MpesaConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	missing := []string{}
	required := map[string]string{
		"base url":        cfg.BaseURL,
		"consumer key":    cfg.ConsumerKey,
		"consumer secret": cfg.ConsumerSecret,
		"shortcode":       cfg.Shortcode,
		"passkey":         cfg.Passkey,
		"callback url":    cfg.CallbackURL,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("mpesa config incomplete: missing %s", strings.Join(missing, ", "))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		logg:       logg,
		now:        time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// GetAccessToken returns the cached bearer token, refreshing it via the
// basic-auth client-credentials exchange when expired.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	skew := c.cfg.TokenSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	if c.token != "" && c.now().Add(skew).Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &AuthError{Reason: err.Error()}
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &AuthError{Reason: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", &AuthError{Reason: fmt.Sprintf("decode token response: %v", err)}
	}
	if token.AccessToken == "" {
		return "", &AuthError{Reason: "token response missing access_token"}
	}

	ttlSeconds, err := strconv.Atoi(strings.TrimSpace(token.ExpiresIn))
	if err != nil || ttlSeconds <= 0 {
		ttlSeconds = 3600
	}

	c.token = token.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	return c.token, nil
}

// StkPushInput carries one push-payment request.
type StkPushInput struct {
	AmountCents      int
	Phone            string
	AccountReference string
	Description      string
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// RequestPayment issues the signed STK push and returns the gateway-assigned
// correlation id on acceptance.
func (c *Client) RequestPayment(ctx context.Context, input StkPushInput) (string, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := c.now().Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))

	payload := stkPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            amountUnits(input.AmountCents),
		PartyA:            input.Phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       input.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  input.AccountReference,
		TransactionDesc:   input.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal stk push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build stk push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		raw, _ := io.ReadAll(resp.Body)
		return "", &UnavailableError{Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}

	var result stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &UnavailableError{Status: resp.StatusCode, Err: fmt.Errorf("decode stk push response: %w", err)}
	}

	if result.ResponseCode == "0" && result.CheckoutRequestID != "" {
		ctx = c.logg.WithFields(ctx, map[string]any{
			"checkout_request_id": result.CheckoutRequestID,
			"account_reference":   input.AccountReference,
		})
		c.logg.Info(ctx, "stk push accepted")
		return result.CheckoutRequestID, nil
	}

	code := result.ResponseCode
	message := result.CustomerMessage
	if code == "" {
		code = result.ErrorCode
	}
	if message == "" {
		message = result.ErrorMessage
	}
	if message == "" {
		message = result.ResponseDescription
	}
	return "", &RejectedError{Code: code, Message: message}
}

// amountUnits converts cents to whole currency units, rounding up so the
// gateway never collects less than the order total.
func amountUnits(cents int) int64 {
	return decimal.NewFromInt(int64(cents)).
		Div(decimal.NewFromInt(100)).
		Ceil().
		IntPart()
}
