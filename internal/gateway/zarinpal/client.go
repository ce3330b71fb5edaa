// Package zarinpal implements the gateway.Client contract against the
// ZarinPal v4 payment API.
package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/digishop/internal/gateway"
)

const (
	// DefaultBaseURL points at the provider sandbox; production deployments
	// override it via configuration.
	DefaultBaseURL = "https://sandbox.zarinpal.com"

	requestPath  = "/pg/v4/payment/request.json"
	verifyPath   = "/pg/v4/payment/verify.json"
	startPayPath = "/pg/StartPay/"

	// Prices are held in Toman throughout the system; the provider bills in
	// Rial. The factor is applied uniformly on both request and verify.
	rialFactor = 10

	codeOK             = 100
	codeVerifiedBefore = 101

	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20
)

// Config configures a Client.
type Config struct {
	MerchantID string
	BaseURL    string
	Timeout    time.Duration
}

// Client is the ZarinPal adapter.
type Client struct {
	merchantID string
	baseURL    string
	http       *http.Client
}

var _ gateway.Client = (*Client)(nil)

// New creates a Client. Zero Config fields fall back to the sandbox URL and
// the default per-call timeout.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		merchantID: cfg.MerchantID,
		baseURL:    base,
		http:       &http.Client{Timeout: timeout},
	}
}

type requestPayload struct {
	MerchantID  string   `json:"merchant_id"`
	Amount      int64    `json:"amount"`
	CallbackURL string   `json:"callback_url"`
	Description string   `json:"description"`
	Metadata    metadata `json:"metadata"`
}

type metadata struct {
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

type verifyPayload struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// RequestPayment creates a payment transaction and returns the authority
// token plus the URL the buyer must be redirected to.
func (c *Client) RequestPayment(ctx context.Context, amount decimal.Decimal, description, callbackURL string, contact gateway.Contact) (*gateway.Initiation, error) {
	body, err := c.post(ctx, requestPath, requestPayload{
		MerchantID:  c.merchantID,
		Amount:      toRial(amount),
		CallbackURL: callbackURL,
		Description: description,
		Metadata:    metadata{Email: contact.Email, Mobile: contact.Mobile},
	})
	if err != nil {
		return nil, err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return nil, &gateway.Error{Code: gateway.CodeInvalidResponse, Err: err}
	}
	if !env.hasData || env.code != codeOK || env.authority == "" {
		return nil, &gateway.Error{Code: env.errorCode()}
	}

	return &gateway.Initiation{
		Authority:   env.authority,
		RedirectURL: c.baseURL + startPayPath + env.authority,
	}, nil
}

// VerifyPayment confirms a transaction after the provider callback. The
// provider reports code 100 for a fresh verification and 101 when the same
// authority was verified before; both are success, the latter flagged so
// callers do not repeat side effects.
func (c *Client) VerifyPayment(ctx context.Context, amount decimal.Decimal, authority string) (*gateway.Receipt, error) {
	body, err := c.post(ctx, verifyPath, verifyPayload{
		MerchantID: c.merchantID,
		Amount:     toRial(amount),
		Authority:  authority,
	})
	if err != nil {
		return nil, err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return nil, &gateway.Error{Code: gateway.CodeInvalidResponse, Err: err}
	}
	if env.hasData {
		switch env.code {
		case codeOK:
			return &gateway.Receipt{RefID: env.refID}, nil
		case codeVerifiedBefore:
			return &gateway.Receipt{RefID: env.refID, AlreadyVerified: true}, nil
		}
	}
	return nil, &gateway.Error{Code: env.errorCode()}
}

// post sends a JSON payload and returns the raw response body. Transport
// failures are mapped to gateway error codes: timeouts, refused connections
// and unreadable bodies never escape as provider-specific errors.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &gateway.Error{Code: transportCode(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &gateway.Error{Code: transportCode(err), Err: err}
	}
	return body, nil
}

func transportCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return gateway.CodeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return gateway.CodeTimeout
	}
	return gateway.CodeConnectionError
}

func toRial(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(rialFactor)).IntPart()
}

// envelope is the decoded provider response. The provider is loose with
// types: "data" and "errors" are objects on one path and empty arrays on
// the other, and "ref_id" arrives as a number. Anything that does not match
// is skipped rather than failing the decode.
type envelope struct {
	hasData   bool
	code      int
	authority string
	refID     string
	errCode   string
}

func (e *envelope) errorCode() string {
	if e.errCode != "" {
		return e.errCode
	}
	return "unknown"
}

func parseEnvelope(body []byte) (*envelope, error) {
	var env envelope
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "data":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			env.hasData = true
			return d.Obj(func(d *jx.Decoder, k string) error {
				switch k {
				case "code":
					n, err := d.Int()
					env.code = n
					return err
				case "authority":
					s, err := d.Str()
					env.authority = s
					return err
				case "ref_id":
					return decodeScalar(d, &env.refID)
				default:
					return d.Skip()
				}
			})
		case "errors":
			switch d.Next() {
			case jx.Object:
				return d.Obj(func(d *jx.Decoder, k string) error {
					if k != "code" {
						return d.Skip()
					}
					return decodeScalar(d, &env.errCode)
				})
			case jx.Array:
				// Error lists carry no usable code; keep the raw text.
				raw, err := d.Raw()
				if err != nil {
					return err
				}
				env.errCode = raw.String()
				return nil
			default:
				return d.Skip()
			}
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &env, nil
}

// decodeScalar reads a number or string into dst, skipping other types.
func decodeScalar(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		v, err := n.Int64()
		if err != nil {
			return err
		}
		*dst = strconv.FormatInt(v, 10)
		return nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		*dst = s
		return nil
	default:
		return d.Skip()
	}
}
