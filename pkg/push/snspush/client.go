// Package snspush delivers mobile push notifications through AWS SNS platform endpoints.
package snspush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// API is the subset of the SNS client used here; tests substitute a fake.
type API interface {
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Message is a rendered mobile notification.
type Message struct {
	Title     string
	Body      string
	Data      map[string]string
	Sound     string
	ChannelID string
	Badge     int
}

// Client maps device tokens to SNS endpoints and publishes to them.
type Client struct {
	api     API
	appARN  string
	sandbox bool

	mu        sync.RWMutex
	endpoints map[string]string // device token -> endpoint ARN
}

// New builds a client from the default AWS credential chain.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.PlatformApplicationARN == "" {
		return nil, fmt.Errorf("platform application arn is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var snsOpts []func(*sns.Options)
	if cfg.Endpoint != "" {
		snsOpts = append(snsOpts, func(o *sns.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	c := NewWithAPI(sns.NewFromConfig(awsCfg, snsOpts...), cfg.PlatformApplicationARN)
	c.sandbox = cfg.APNSSandbox
	return c, nil
}

// NewWithAPI wires a client around an existing SNS implementation.
func NewWithAPI(api API, platformApplicationARN string) *Client {
	return &Client{
		api:       api,
		appARN:    platformApplicationARN,
		endpoints: make(map[string]string),
	}
}

// Send publishes msg to the device identified by token and returns the SNS message id.
func (c *Client) Send(ctx context.Context, token string, msg Message) (string, error) {
	endpointARN, err := c.endpointFor(ctx, token)
	if err != nil {
		return "", err
	}

	payload, err := c.buildPayload(msg)
	if err != nil {
		return "", err
	}

	out, err := c.api.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpointARN),
		MessageStructure: aws.String("json"),
		Message:          aws.String(payload),
	})
	if err != nil {
		var (
			disabled *types.EndpointDisabledException
			notFound *types.NotFoundException
		)
		if errors.As(err, &disabled) || errors.As(err, &notFound) {
			c.forget(token)
		}
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (c *Client) endpointFor(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	arn, ok := c.endpoints[token]
	c.mu.RUnlock()
	if ok {
		return arn, nil
	}

	out, err := c.api.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(c.appARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("sns create endpoint: %w", err)
	}
	arn = aws.ToString(out.EndpointArn)

	c.mu.Lock()
	c.endpoints[token] = arn
	c.mu.Unlock()
	return arn, nil
}

func (c *Client) forget(token string) {
	c.mu.Lock()
	delete(c.endpoints, token)
	c.mu.Unlock()
}

type gcmPayload struct {
	Notification struct {
		Title     string `json:"title"`
		Body      string `json:"body"`
		Sound     string `json:"sound,omitempty"`
		ChannelID string `json:"android_channel_id,omitempty"`
	} `json:"notification"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority"`
}

type apnsPayload struct {
	APS struct {
		Alert struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"alert"`
		Sound string `json:"sound,omitempty"`
		Badge int    `json:"badge,omitempty"`
	} `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

// buildPayload renders the per-platform JSON envelope SNS expects with MessageStructure=json.
func (c *Client) buildPayload(msg Message) (string, error) {
	var gcm gcmPayload
	gcm.Notification.Title = msg.Title
	gcm.Notification.Body = msg.Body
	gcm.Notification.Sound = msg.Sound
	gcm.Notification.ChannelID = msg.ChannelID
	gcm.Data = msg.Data
	gcm.Priority = "high"

	var apns apnsPayload
	apns.APS.Alert.Title = msg.Title
	apns.APS.Alert.Body = msg.Body
	apns.APS.Sound = msg.Sound
	apns.APS.Badge = msg.Badge
	apns.Data = msg.Data

	gcmJSON, err := json.Marshal(gcm)
	if err != nil {
		return "", fmt.Errorf("marshal gcm payload: %w", err)
	}
	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", fmt.Errorf("marshal apns payload: %w", err)
	}

	apnsKey := "APNS"
	if c.sandbox {
		apnsKey = "APNS_SANDBOX"
	}
	envelope := map[string]string{
		"default": msg.Title + ": " + msg.Body,
		"GCM":     string(gcmJSON),
		apnsKey:   string(apnsJSON),
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal sns envelope: %w", err)
	}
	return string(b), nil
}
