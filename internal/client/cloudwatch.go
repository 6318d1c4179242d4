package client

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/Nao-Mk2/aws-log-browser/internal/model"
)

// PageSize is the page size requested from the catalog listings.
const PageSize = 50

// LogsAPI is the subset of the CloudWatch Logs client used here.
type LogsAPI interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	DescribeLogStreams(ctx context.Context, params *cloudwatchlogs.DescribeLogStreamsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// AuthOptions selects the region and credentials source.
type AuthOptions struct {
	Region  string
	Profile string
}

// NewCloudWatchOptions builds config load options. A profile (flag, then
// AWS_PROFILE) takes precedence over static keys from the environment.
func NewCloudWatchOptions(o AuthOptions) []func(*config.LoadOptions) error {
	var cfgOpts []func(*config.LoadOptions) error
	if o.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(o.Region))
	}
	profile := o.Profile
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile != "" {
		cfgOpts = append(cfgOpts, config.WithSharedConfigProfile(profile))
		return cfgOpts
	}
	key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if key != "" && secret != "" {
		provider := credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("AWS_SESSION_TOKEN"))
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(provider))
	}
	return cfgOpts
}

// NewCloudWatchClient loads AWS configuration and returns a CloudWatch Logs client.
func NewCloudWatchClient(ctx context.Context, opts ...func(*config.LoadOptions) error) (*cloudwatchlogs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return cloudwatchlogs.NewFromConfig(cfg), nil
}

// Backend serves paged catalog listings and event searches from CloudWatch Logs.
type Backend struct {
	api         LogsAPI
	groupPrefix string
}

// NewBackend wraps api. A non-empty groupPrefix restricts the group catalog.
func NewBackend(api LogsAPI, groupPrefix string) *Backend {
	return &Backend{api: api, groupPrefix: groupPrefix}
}

// ListGroups returns one page of log groups.
func (b *Backend) ListGroups(ctx context.Context, token *string) (model.Page[model.LogGroup], error) {
	in := &cloudwatchlogs.DescribeLogGroupsInput{
		Limit:     aws.Int32(PageSize),
		NextToken: token,
	}
	if b.groupPrefix != "" {
		in.LogGroupNamePrefix = aws.String(b.groupPrefix)
	}
	out, err := b.api.DescribeLogGroups(ctx, in)
	if err != nil {
		return model.Page[model.LogGroup]{}, err
	}
	items := make([]model.LogGroup, 0, len(out.LogGroups))
	for _, g := range out.LogGroups {
		items = append(items, model.LogGroup{
			Name:          aws.ToString(g.LogGroupName),
			CreationTime:  fromMillis(g.CreationTime),
			RetentionDays: g.RetentionInDays,
			StoredBytes:   g.StoredBytes,
		})
	}
	return model.Page[model.LogGroup]{Items: items, NextToken: out.NextToken}, nil
}

// ListStreams returns one page of group's streams, most recently written first.
func (b *Backend) ListStreams(ctx context.Context, group string, token *string) (model.Page[model.LogStream], error) {
	out, err := b.api.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(group),
		OrderBy:      types.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(PageSize),
		NextToken:    token,
	})
	if err != nil {
		return model.Page[model.LogStream]{}, err
	}
	items := make([]model.LogStream, 0, len(out.LogStreams))
	for _, s := range out.LogStreams {
		items = append(items, model.LogStream{
			Name:              aws.ToString(s.LogStreamName),
			CreationTime:      fromMillis(s.CreationTime),
			LastEventTime:     model.FromMillis(s.LastEventTimestamp),
			LastIngestionTime: model.FromMillis(s.LastIngestionTime),
			StoredBytes:       s.StoredBytes,
		})
	}
	return model.Page[model.LogStream]{Items: items, NextToken: out.NextToken}, nil
}

// Search issues a single FilterLogEvents request. Time bounds are omitted
// when absent and events are returned in backend order.
func (b *Backend) Search(ctx context.Context, c model.SearchCriteria) ([]model.LogEvent, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c = c.Normalized()
	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(c.GroupName),
		StartTime:    c.StartMillis(),
		EndTime:      c.EndMillis(),
		Limit:        aws.Int32(int32(c.Limit)),
	}
	if c.FilterPattern != "" {
		in.FilterPattern = aws.String(c.FilterPattern)
	}
	if c.StreamName != "" {
		in.LogStreamNames = []string{c.StreamName}
	}
	out, err := b.api.FilterLogEvents(ctx, in)
	if err != nil {
		return nil, err
	}
	return ToLogEvents(out.Events), nil
}

// ToLogEvents converts SDK events into model events.
func ToLogEvents(events []types.FilteredLogEvent) []model.LogEvent {
	res := make([]model.LogEvent, 0, len(events))
	for _, e := range events {
		res = append(res, model.LogEvent{
			Timestamp:     fromMillis(e.Timestamp),
			Message:       aws.ToString(e.Message),
			StreamName:    aws.ToString(e.LogStreamName),
			EventID:       aws.ToString(e.EventId),
			IngestionTime: fromMillis(e.IngestionTime),
		})
	}
	return res
}

func fromMillis(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}
