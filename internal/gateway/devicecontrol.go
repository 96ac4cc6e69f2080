package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/metrics"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

const deviceControlService = "device-control"

// DeviceControlConfig configures DeviceControl.
type DeviceControlConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
	// BreakerFailures is the number of consecutive server faults that open
	// the breaker.  Zero means 5.
	BreakerFailures uint32
}

// DeviceControl talks to the service that drives the ESP32 boards.
//
//	POST /devices/{mac}/modes/{mode}/start   {"userId": "..."}
//	POST /devices/{mac}/modes/{mode}/stop    {"userId": "..."}
//	POST /devices/{mac}/camera/activate      {"userId": "..."} -> {"ok": bool}
type DeviceControl struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	log     *zap.Logger
}

// NewDeviceControl builds the client.
func NewDeviceControl(cfg DeviceControlConfig, log *zap.Logger) *DeviceControl {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryOnServerError).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &DeviceControl{
		http:    client,
		breaker: newBreaker(deviceControlService, cfg.BreakerFailures, log),
		log:     log,
	}
}

type userBody struct {
	UserID string `json:"userId"`
}

type activateResult struct {
	OK bool `json:"ok"`
}

// Start starts mode on the device with the given MAC.
func (d *DeviceControl) Start(ctx context.Context, mac, userID string, mode model.DetectionMode) error {
	_, err := d.call(ctx, "start", "/devices/{mac}/modes/{mode}/start", mac, mode, userID, nil)
	return err
}

// Stop stops mode on the device with the given MAC.
func (d *DeviceControl) Stop(ctx context.Context, mac, userID string, mode model.DetectionMode) error {
	_, err := d.call(ctx, "stop", "/devices/{mac}/modes/{mode}/stop", mac, mode, userID, nil)
	return err
}

// ActivateCamera asks the device to bring up its camera and returns the
// device's confirmation flag.
func (d *DeviceControl) ActivateCamera(ctx context.Context, mac, userID string) (bool, error) {
	var out activateResult
	if _, err := d.call(ctx, "activate_camera", "/devices/{mac}/camera/activate", mac, "", userID, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (d *DeviceControl) call(ctx context.Context, op, path, mac string, mode model.DetectionMode, userID string, result any) (*resty.Response, error) {
	started := time.Now()
	defer observe(deviceControlService, op, started)

	resp, err := d.breaker.Execute(func() (*resty.Response, error) {
		req := d.http.R().
			SetContext(ctx).
			SetPathParam("mac", mac).
			SetBody(userBody{UserID: userID})
		if mode != "" {
			req.SetPathParam("mode", strings.ToLower(string(mode)))
		}
		if result != nil {
			req.SetResult(result)
		}
		resp, err := req.Post(path)
		if err != nil {
			return resp, err
		}
		if resp.IsError() {
			return resp, &StatusError{Service: deviceControlService, Code: resp.StatusCode(), Body: resp.String()}
		}
		return resp, nil
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		d.log.Warn("device-control call failed",
			zap.String("operation", op),
			zap.String("mac", mac),
			zap.String("mode", string(mode)),
			zap.Error(err))
		err = fmt.Errorf("%s %s: %v: %w", op, mac, err, repository.ErrGatewayFailure)
	}
	metrics.DeviceControlCallsTotal.WithLabelValues(op, outcome).Inc()
	return resp, err
}
