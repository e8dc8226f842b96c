// Package google implements calendar.Client on the Google Calendar v3 API
// using a service account.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

var _ calendar.Client = (*Client)(nil)

const subscribeBase = "https://calendar.google.com/calendar/render?cid="

// Public read is granted to the "default" scope, i.e. anyone with the link.
const (
	aclScopeDefault = "default"
	aclRoleReader   = "reader"
)

// API is the subset of the Calendar service used by Client.
type API interface {
	InsertCalendar(ctx context.Context, cal *gcal.Calendar) (*gcal.Calendar, error)
	GetCalendar(ctx context.Context, calendarID string) (*gcal.Calendar, error)
	DeleteCalendar(ctx context.Context, calendarID string) error
	ListACL(ctx context.Context, calendarID string) ([]*gcal.AclRule, error)
	InsertACL(ctx context.Context, calendarID string, rule *gcal.AclRule) error
	InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error)
}

// SecretsAPI is the subset of the Secrets Manager client used to fetch
// service-account credentials.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Client is a Google Calendar backed calendar.Client.
type Client struct {
	api      API
	timeZone string
}

// Option configures a Client.
type Option func(*options)

type options struct {
	api     API
	secrets SecretsAPI
}

// WithAPI sets a custom Calendar API (useful for testing).
func WithAPI(a API) Option {
	return func(o *options) { o.api = a }
}

// WithSecretsClient sets a custom Secrets Manager client.
func WithSecretsClient(c SecretsAPI) Option {
	return func(o *options) { o.secrets = c }
}

// New creates a Client. Credentials come from cfg.CredentialsSecret when set,
// otherwise from cfg.CredentialsFile.
func New(ctx context.Context, cfg *types.GoogleCalendarConfig, timeZone string, opts ...Option) (*Client, error) {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.api == nil {
		creds, err := loadCredentials(ctx, cfg, o.secrets)
		if err != nil {
			return nil, err
		}
		svc, err := gcal.NewService(ctx, option.WithCredentialsJSON(creds), option.WithScopes(gcal.CalendarScope))
		if err != nil {
			return nil, fmt.Errorf("creating Google Calendar service: %w", err)
		}
		o.api = &serviceAPI{svc: svc}
	}
	return &Client{api: o.api, timeZone: timeZone}, nil
}

func loadCredentials(ctx context.Context, cfg *types.GoogleCalendarConfig, secrets SecretsAPI) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("google calendar: credentials not configured")
	}
	if cfg.CredentialsSecret != "" {
		if secrets == nil {
			var loadOpts []func(*awsconfig.LoadOptions) error
			if cfg.SecretRegion != "" {
				loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.SecretRegion))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
			if err != nil {
				return nil, fmt.Errorf("loading AWS config: %w", err)
			}
			secrets = secretsmanager.NewFromConfig(awsCfg)
		}
		out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(cfg.CredentialsSecret),
		})
		if err != nil {
			return nil, fmt.Errorf("reading secret %s: %w", cfg.CredentialsSecret, err)
		}
		if out.SecretString != nil && *out.SecretString != "" {
			return []byte(*out.SecretString), nil
		}
		if len(out.SecretBinary) > 0 {
			return out.SecretBinary, nil
		}
		return nil, fmt.Errorf("secret %s is empty", cfg.CredentialsSecret)
	}
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("google calendar: credentialsFile or credentialsSecret required")
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("credentials file %s is empty", cfg.CredentialsFile)
	}
	return data, nil
}

// Create creates a secondary calendar.
func (c *Client) Create(ctx context.Context, cal calendar.Calendar) (string, error) {
	tz := cal.TimeZone
	if tz == "" {
		tz = c.timeZone
	}
	out, err := c.api.InsertCalendar(ctx, &gcal.Calendar{
		Summary:     cal.Summary,
		Description: cal.Description,
		TimeZone:    tz,
	})
	if err != nil {
		return "", classify("insert calendar", err)
	}
	return out.Id, nil
}

// Get fetches calendar metadata; a deleted calendar yields calendar.ErrNotFound.
func (c *Client) Get(ctx context.Context, calendarID string) (*calendar.Calendar, error) {
	out, err := c.api.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, classify("get calendar "+calendarID, err)
	}
	return &calendar.Calendar{
		ID:          out.Id,
		Summary:     out.Summary,
		Description: out.Description,
		TimeZone:    out.TimeZone,
	}, nil
}

// EnsurePublic adds a default-scope reader rule unless one already exists.
func (c *Client) EnsurePublic(ctx context.Context, calendarID string) error {
	rules, err := c.api.ListACL(ctx, calendarID)
	if err != nil {
		return classify("list acl "+calendarID, err)
	}
	for _, r := range rules {
		if r.Scope != nil && r.Scope.Type == aclScopeDefault && r.Role == aclRoleReader {
			return nil
		}
	}
	err = c.api.InsertACL(ctx, calendarID, &gcal.AclRule{
		Role:  aclRoleReader,
		Scope: &gcal.AclRuleScope{Type: aclScopeDefault},
	})
	if err != nil {
		return classify("insert acl "+calendarID, err)
	}
	return nil
}

// InsertEvent inserts a timed event and returns its id.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       c.dateTime(ev.Start),
		End:         c.dateTime(ev.End),
	}
	if len(ev.Reminders) > 0 {
		rem := &gcal.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}
		for _, r := range ev.Reminders {
			rem.Overrides = append(rem.Overrides, &gcal.EventReminder{Method: r.Method, Minutes: r.Minutes})
		}
		body.Reminders = rem
	}
	out, err := c.api.InsertEvent(ctx, calendarID, body)
	if err != nil {
		return "", classify("insert event on "+calendarID, err)
	}
	return out.Id, nil
}

func (c *Client) dateTime(t time.Time) *gcal.EventDateTime {
	tz := c.timeZone
	if loc := t.Location(); loc != nil && loc != time.UTC && loc != time.Local {
		tz = loc.String()
	}
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}

// DeleteEvent deletes an event. A 410 Gone (already deleted) maps to
// calendar.ErrNotFound.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.api.DeleteEvent(ctx, calendarID, eventID); err != nil {
		return classify("delete event "+eventID, err)
	}
	return nil
}

// Delete deletes a secondary calendar.
func (c *Client) Delete(ctx context.Context, calendarID string) error {
	if err := c.api.DeleteCalendar(ctx, calendarID); err != nil {
		return classify("delete calendar "+calendarID, err)
	}
	return nil
}

// List returns every calendar on the service account's calendar list.
func (c *Client) List(ctx context.Context) ([]calendar.Calendar, error) {
	entries, err := c.api.ListCalendars(ctx)
	if err != nil {
		return nil, classify("list calendars", err)
	}
	out := make([]calendar.Calendar, 0, len(entries))
	for _, e := range entries {
		out = append(out, calendar.Calendar{
			ID:          e.Id,
			Summary:     e.Summary,
			Description: e.Description,
			TimeZone:    e.TimeZone,
			Primary:     e.Primary,
		})
	}
	return out, nil
}

// SubscriptionLink returns the Google Calendar "add by id" URL.
func (c *Client) SubscriptionLink(calendarID string) string {
	return subscribeBase + url.QueryEscape(calendarID)
}

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch gerr.Code {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%s: %w", op, calendar.ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %v", op, calendar.ErrRateLimited, err)
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
				return fmt.Errorf("%s: %w: %v", op, calendar.ErrRateLimited, err)
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
