package gateway

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/metrics"
	"github.com/iliyamo/homewatch/internal/model"
)

const (
	pushService = "expo-push"
	// pushChunkSize is the Expo limit of messages per request.
	pushChunkSize = 100
)

var uuidToken = regexp.MustCompile(`^[a-zA-Z0-9]{8}-[a-zA-Z0-9]{4}-[a-zA-Z0-9]{4}-[a-zA-Z0-9]{4}-[a-zA-Z0-9]{12}$`)

// IsExpoPushToken reports whether token looks like an Expo push token.
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return uuidToken.MatchString(token)
}

type expoMessage struct {
	To    string         `json:"to"`
	Sound string         `json:"sound"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

type expoTicket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Push sends messages through the Expo push API.  Failures are logged and
// counted; Send never returns an error.
type Push struct {
	http *resty.Client
	url  string
	log  *zap.Logger
}

// NewPush builds the client.  accessToken is optional.
func NewPush(url, accessToken string, timeout time.Duration, log *zap.Logger) *Push {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(retryOnServerError).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if accessToken != "" {
		client.SetAuthToken(accessToken)
	}
	return &Push{http: client, url: url, log: log}
}

// Send delivers msg to every valid token in chunks.
func (p *Push) Send(ctx context.Context, tokens []string, msg model.PushMessage) {
	data := msg.Data
	if data == nil {
		data = map[string]any{}
	}
	var batch []expoMessage
	for _, t := range tokens {
		if !IsExpoPushToken(t) {
			p.log.Warn("skipping invalid push token", zap.String("token", t))
			metrics.PushMessagesTotal.WithLabelValues("invalid_token").Inc()
			continue
		}
		batch = append(batch, expoMessage{To: t, Sound: "default", Title: msg.Title, Body: msg.Body, Data: data})
	}

	for start := 0; start < len(batch); start += pushChunkSize {
		end := min(start+pushChunkSize, len(batch))
		p.sendChunk(ctx, batch[start:end])
	}
}

func (p *Push) sendChunk(ctx context.Context, chunk []expoMessage) {
	started := time.Now()
	defer observe(pushService, "send", started)

	var out expoResponse
	resp, err := p.http.R().SetContext(ctx).SetBody(chunk).SetResult(&out).Post(p.url)
	if err == nil && resp.IsError() {
		err = &StatusError{Service: pushService, Code: resp.StatusCode(), Body: resp.String()}
	}
	if err != nil {
		p.log.Error("push send failed", zap.Int("messages", len(chunk)), zap.Error(err))
		metrics.PushMessagesTotal.WithLabelValues("error").Add(float64(len(chunk)))
		return
	}

	for i, t := range out.Data {
		if t.Status == "ok" {
			metrics.PushMessagesTotal.WithLabelValues("ok").Inc()
			continue
		}
		metrics.PushMessagesTotal.WithLabelValues("error").Inc()
		to := ""
		if i < len(chunk) {
			to = chunk[i].To
		}
		p.log.Warn("push ticket rejected",
			zap.String("token", to),
			zap.String("message", t.Message),
			zap.Any("details", t.Details))
	}
}
