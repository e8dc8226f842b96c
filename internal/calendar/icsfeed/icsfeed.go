// Package icsfeed implements calendar.Client as self-hosted ICS feeds on S3.
//
// Each calendar is stored as two objects under the configured prefix: a JSON
// document holding its metadata and events, and the rendered .ics feed that
// subscribers poll. Every mutation rewrites both.
package icsfeed

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

var _ calendar.Client = (*Client)(nil)

const productID = "-//wastecal//waste collection schedule//LT"

// S3API is the subset of the S3 client used by Client.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObjectAcl(ctx context.Context, input *s3.PutObjectAclInput, opts ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

type storedEvent struct {
	ID          string                 `json:"id"`
	Summary     string                 `json:"summary"`
	Description string                 `json:"description,omitempty"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	Reminders   []types.ReminderConfig `json:"reminders,omitempty"`
	Created     time.Time              `json:"created"`
}

type document struct {
	ID          string        `json:"id"`
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	TimeZone    string        `json:"timeZone,omitempty"`
	Public      bool          `json:"public"`
	Events      []storedEvent `json:"events"`
}

// Client stores calendars as ICS feeds in an S3 bucket.
type Client struct {
	client   S3API
	bucket   string
	prefix   string
	baseURL  string
	timeZone string
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) Option {
	return func(cl *Client) { cl.client = c }
}

// New creates an ICS feed client.
func New(ctx context.Context, cfg *types.ICSFeedConfig, timeZone string, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("icsfeed: bucket required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("icsfeed: baseUrl required")
	}
	c := &Client{
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeZone: timeZone,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		c.client = s3.NewFromConfig(awsCfg)
	}
	return c, nil
}

func (c *Client) key(calendarID, ext string) string {
	if c.prefix == "" {
		return calendarID + ext
	}
	return c.prefix + "/" + calendarID + ext
}

func newID(prefix string) string {
	var b [10]byte
	_, _ = rand.Read(b[:])
	return prefix + hex.EncodeToString(b[:])
}

func (c *Client) load(ctx context.Context, calendarID string) (*document, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(calendarID, ".json")),
	})
	if err != nil {
		return nil, classify("get "+calendarID, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", calendarID, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", calendarID, err)
	}
	return &doc, nil
}

func (c *Client) save(ctx context.Context, doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", doc.ID, err)
	}
	if _, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.key(doc.ID, ".json")),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return classify("put "+doc.ID, err)
	}

	in := &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(c.key(doc.ID, ".ics")),
		Body:         strings.NewReader(render(doc, c.now())),
		ContentType:  aws.String("text/calendar; charset=utf-8"),
		CacheControl: aws.String("max-age=300"),
	}
	if doc.Public {
		in.ACL = s3types.ObjectCannedACLPublicRead
	}
	if _, err := c.client.PutObject(ctx, in); err != nil {
		return classify("put feed "+doc.ID, err)
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, calendarID string, fn func(doc *document) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.load(ctx, calendarID)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return c.save(ctx, doc)
}

// Create writes an empty feed.
func (c *Client) Create(ctx context.Context, cal calendar.Calendar) (string, error) {
	tz := cal.TimeZone
	if tz == "" {
		tz = c.timeZone
	}
	doc := &document{
		ID:          newID("wc_"),
		Summary:     cal.Summary,
		Description: cal.Description,
		TimeZone:    tz,
		Events:      []storedEvent{},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.save(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Get reads calendar metadata.
func (c *Client) Get(ctx context.Context, calendarID string) (*calendar.Calendar, error) {
	doc, err := c.load(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return &calendar.Calendar{ID: doc.ID, Summary: doc.Summary, Description: doc.Description, TimeZone: doc.TimeZone}, nil
}

// EnsurePublic marks the feed public-read.
func (c *Client) EnsurePublic(ctx context.Context, calendarID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.load(ctx, calendarID)
	if err != nil {
		return err
	}
	if !doc.Public {
		doc.Public = true
		if err := c.save(ctx, doc); err != nil {
			return err
		}
		return nil
	}
	if _, err := c.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(calendarID, ".ics")),
		ACL:    s3types.ObjectCannedACLPublicRead,
	}); err != nil {
		return classify("acl "+calendarID, err)
	}
	return nil
}

// InsertEvent appends an event and re-renders the feed.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	id := newID("ev_")
	err := c.mutate(ctx, calendarID, func(doc *document) error {
		doc.Events = append(doc.Events, storedEvent{
			ID:          id,
			Summary:     ev.Summary,
			Description: ev.Description,
			Start:       ev.Start,
			End:         ev.End,
			Reminders:   ev.Reminders,
			Created:     c.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteEvent removes an event and re-renders the feed.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return c.mutate(ctx, calendarID, func(doc *document) error {
		for i, e := range doc.Events {
			if e.ID == eventID {
				doc.Events = append(doc.Events[:i], doc.Events[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("event %s: %w", eventID, calendar.ErrNotFound)
	})
}

// Delete removes both objects of a calendar.
func (c *Client) Delete(ctx context.Context, calendarID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.load(ctx, calendarID); err != nil {
		return err
	}
	for _, ext := range []string{".ics", ".json"} {
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(calendarID, ext)),
		}); err != nil {
			return classify("delete "+calendarID, err)
		}
	}
	return nil
}

// List returns every calendar stored under the prefix.
func (c *Client) List(ctx context.Context) ([]calendar.Calendar, error) {
	prefix := ""
	if c.prefix != "" {
		prefix = c.prefix + "/"
	}
	var (
		out   []calendar.Calendar
		token *string
	)
	for {
		page, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify("list", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
			cal, err := c.Get(ctx, id)
			if err != nil {
				if errors.Is(err, calendar.ErrNotFound) {
					continue
				}
				return nil, err
			}
			out = append(out, *cal)
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

// SubscriptionLink returns the public feed URL.
func (c *Client) SubscriptionLink(calendarID string) string {
	return c.baseURL + "/" + calendarID + ".ics"
}

// Feed renders the current feed of a calendar, for serving it directly.
func (c *Client) Feed(ctx context.Context, calendarID string) ([]byte, error) {
	doc, err := c.load(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return []byte(render(doc, c.now())), nil
}

func render(doc *document, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(doc.Summary)
	if doc.Description != "" {
		cal.SetXWRCalDesc(doc.Description)
	}
	if doc.TimeZone != "" {
		cal.SetXWRTimezone(doc.TimeZone)
	}

	events := append([]storedEvent(nil), doc.Events...)
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	for _, e := range events {
		ev := cal.AddEvent(e.ID + "@wastecal")
		ev.SetDtStampTime(now.UTC())
		ev.SetStartAt(e.Start.UTC())
		ev.SetEndAt(e.End.UTC())
		ev.SetSummary(e.Summary)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		for _, r := range e.Reminders {
			alarm := ev.AddAlarm()
			alarm.SetAction(ics.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", r.Minutes))
		}
	}
	return cal.Serialize()
}

func classify(op string, err error) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%s: %w", op, calendar.ErrNotFound)
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, calendar.ErrNotFound)
		case "SlowDown", "TooManyRequests", "RequestLimitExceeded":
			return fmt.Errorf("%s: %w: %v", op, calendar.ErrRateLimited, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
