package dehttp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bitly/go-simplejson"
	jsoniter "github.com/json-iterator/go"
)

const (
	// BaseAPIMainURL 生产环境
	BaseAPIMainURL = "https://api.india.delta.exchange"
	// BaseAPITestnetURL 测试网
	BaseAPITestnetURL = "https://cdn-ind.testnet.deltaex.org"
)

// Redefining the standard package
var Json = jsoniter.ConfigCompatibleWithStandardLibrary

func currentTimestamp() int64 {
	return time.Now().Unix()
}

func NewJSON(data []byte) (j *simplejson.Json, err error) {
	j, err = simplejson.NewJson(data)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// NewClient initialize an API client instance with API key and secret key.
func NewClient(ops ...Option) *Client {
	opts := &options{
		httpClient: http.DefaultClient,
		baseURL:    BaseAPIMainURL,
	}
	for _, o := range ops {
		o(opts)
	}
	if opts.proxyUrl != "" {
		proxy, err := url.Parse(opts.proxyUrl)
		if err != nil {
			panic(err)
		}
		tr := &http.Transport{
			Proxy: http.ProxyURL(proxy),
		}
		opts.httpClient.Transport = tr
	}
	return &Client{
		userAgent: "GoTop",
		baseURL:   opts.baseURL,
		opts:      opts,
	}
}

// APIError define API error when response status is 4xx or 5xx
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"context"`
}

// Error return error code and message
func (e APIError) Error() string {
	return fmt.Sprintf("<APIError> code=%s, msg=%s", e.Code, e.Message)
}

// IsAPIError check if e is an API error
func IsAPIError(e error) bool {
	_, ok := e.(*APIError)
	return ok
}

type doFunc func(req *http.Request) (*http.Response, error)

// Client define API client
type Client struct {
	baseURL   string
	opts      *options
	userAgent string
	do        doFunc
}

// parseRequest 组装完整 URL 与请求头。签名串为
// method + timestamp + path + query + body, 时间戳单位秒。
func (c *Client) parseRequest(r *Request, opts ...RequestOption) (err error) {
	// set request options from user
	for _, opt := range opts {
		opt(r)
	}
	err = r.validate()
	if err != nil {
		return err
	}

	fullURL := fmt.Sprintf("%s%s", c.baseURL, r.Endpoint)
	queryString := r.query.Encode()
	if queryString != "" {
		queryString = "?" + queryString
	}

	body := &bytes.Buffer{}
	bodyString := ""
	if r.bodyJSON != nil {
		data, err := Json.Marshal(r.bodyJSON)
		if err != nil {
			return err
		}
		bodyString = string(data)
		body = bytes.NewBuffer(data)
	}

	header := http.Header{}
	if r.header != nil {
		header = r.header.Clone()
	}
	header.Set("User-Agent", c.userAgent)
	if bodyString != "" {
		header.Set("Content-Type", "application/json")
	}

	if r.SecType == SecTypeSigned {
		ts := strconv.FormatInt(currentTimestamp()-c.opts.timeOffset, 10)
		raw := fmt.Sprintf("%s%s%s%s%s", r.Method, ts, r.Endpoint, queryString, bodyString)
		mac := hmac.New(sha256.New, []byte(c.opts.secretKey))
		if _, err = mac.Write([]byte(raw)); err != nil {
			return err
		}
		header.Set("api-key", c.opts.apiKey)
		header.Set("timestamp", ts)
		header.Set("signature", fmt.Sprintf("%x", mac.Sum(nil)))
	}

	r.fullURL = fullURL + queryString
	r.header = header
	r.body = body
	return nil
}

func (c *Client) CallAPI(ctx context.Context, r *Request, opts ...RequestOption) (data []byte, err error) {
	err = c.parseRequest(r, opts...)
	if err != nil {
		return []byte{}, err
	}
	req, err := http.NewRequest(r.Method, r.fullURL, r.body)
	if err != nil {
		return []byte{}, err
	}
	req = req.WithContext(ctx)
	req.Header = r.header
	f := c.do
	if f == nil {
		f = c.opts.httpClient.Do
	}
	res, err := f(req)
	if err != nil {
		return []byte{}, err
	}
	data, err = io.ReadAll(res.Body)
	if err != nil {
		return []byte{}, err
	}
	defer func() {
		cerr := res.Body.Close()
		// Only overwrite the retured error if the original error was nil and an
		// error occurred while closing the body.
		if err == nil && cerr != nil {
			err = cerr
		}
	}()

	if res.StatusCode >= http.StatusBadRequest {
		apiErr := new(APIError)
		if j, e := NewJSON(data); e == nil {
			apiErr.Code = j.GetPath("error", "code").MustString()
			apiErr.Message = j.GetPath("error", "context").MustString()
		}
		if apiErr.Code == "" {
			apiErr.Message = string(data)
		}
		return nil, apiErr
	}
	return data, nil
}

// SetApiEndpoint set api Endpoint
func (c *Client) SetApiEndpoint(url string) {
	c.baseURL = url
}

// APIKey 返回客户端配置的 api key
func (c *Client) APIKey() string {
	return c.opts.apiKey
}

// TimeOffset 本地与服务器时钟偏移, 单位秒
func (c *Client) TimeOffset() int64 {
	return c.opts.timeOffset
}

// Sign 以客户端密钥对给定串做 HMAC-SHA256, 返回十六进制摘要
func (c *Client) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.opts.secretKey))
	mac.Write([]byte(payload))
	return fmt.Sprintf("%x", mac.Sum(nil))
}
