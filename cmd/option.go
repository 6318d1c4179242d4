package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/Nao-Mk2/aws-log-browser/internal/client"
	appconfig "github.com/Nao-Mk2/aws-log-browser/internal/config"
)

// Commands understood by the CLI. The first positional argument selects one.
const (
	CommandServe   = "serve"
	CommandGroups  = "groups"
	CommandStreams = "streams"
	CommandSearch  = "search"
)

// Options holds CLI options after parsing flags and env defaults.
type Options struct {
	Command string
	Args    []string

	ConfigPath    string
	Listen        string
	StoreDriver   string
	StorePath     string
	GroupPrefix   string
	GroupsCSV     string
	Region        string
	Profile       string
	Stream        string
	FilterPattern string
	Limit         int
	Concurrency   int
	Extract       string
	NextFilter    string
	PrettyJSON    bool
	StartRFC3339  string
	EndRFC3339    string
}

// Validate checks relationships and required flags.
// Returns an error message and exit code; if search has no log group,
// it returns ("", 2) and the caller should invoke usage().
func (o *Options) Validate() (string, int) {
	switch o.Command {
	case CommandServe, CommandGroups:
	case CommandStreams:
		if o.StreamsGroup() == "" {
			return "error: streams requires a log group (argument or --groups)", 2
		}
	case CommandSearch:
		if len(ParseGroupsCSV(o.GroupsCSV)) == 0 {
			// Caller prints usage() which exits(2)
			return "", 2
		}
	default:
		return fmt.Sprintf("error: unknown command %q", o.Command), 2
	}
	if o.Limit < 0 {
		return "error: --limit must not be negative", 2
	}
	if o.NextFilter != "" && o.Extract == "" {
		return "error: --next-filter requires --extract", 2
	}
	if CountFlagOccurrences("--extract") > 1 {
		return "error: --extract specified multiple times", 2
	}
	return "", 0
}

// StreamsGroup is the group listed by the streams command: the positional
// argument, else the first of --groups.
func (o *Options) StreamsGroup() string {
	if len(o.Args) > 0 {
		return o.Args[0]
	}
	if groups := ParseGroupsCSV(o.GroupsCSV); len(groups) > 0 {
		return groups[0]
	}
	return ""
}

// ParseExtractSpec parses "name=path" into (name, path).
// Exported so main package can reuse.
func (o *Options) ParseExtractSpec() (string, string, error) {
	i := strings.Index(o.Extract, "=")
	if i <= 0 || i == len(o.Extract)-1 {
		return "", "", fmt.Errorf("invalid --extract format; expected name=path")
	}
	name := strings.TrimSpace(o.Extract[:i])
	path := strings.TrimSpace(o.Extract[i+1:])
	if name == "" || path == "" {
		return "", "", fmt.Errorf("invalid --extract format; empty name or path")
	}
	return name, path, nil
}

// BuildCloudWatchOptions returns the AWS config load options for the flags.
func (o *Options) BuildCloudWatchOptions() []func(*config.LoadOptions) error {
	return client.NewCloudWatchOptions(client.AuthOptions{Region: o.Region, Profile: o.Profile})
}

// Apply overlays explicitly set flags onto a loaded config file.
func (o *Options) Apply(cfg *appconfig.Config) {
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.Region != "" {
		cfg.AWS.Region = o.Region
	}
	if p := ResolveProfile(o.Profile); p != "" {
		cfg.AWS.Profile = p
	}
	if o.GroupPrefix != "" {
		cfg.AWS.GroupPrefix = o.GroupPrefix
	}
	if o.StoreDriver != "" {
		cfg.Store.Driver = o.StoreDriver
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.Limit > 0 {
		cfg.SearchLimit = o.Limit
	}
	// keep the auth flags in step with the merged config
	o.Region = cfg.AWS.Region
	o.Profile = cfg.AWS.Profile
}

// CollectOptions parses flags with environment-backed defaults and returns Options.
func CollectOptions() *Options {
	var groupsCSV string
	var region string
	var profileFlag string
	var configPath string
	var listen string
	var storeDriver string
	var storePath string
	var groupPrefix string
	var stream string
	var filterPattern string
	var limit int
	var concurrency int
	var extractFlag string
	var nextFilterFlag string
	var prettyJSON bool
	var startStr string
	var endStr string

	if v := os.Getenv("LOG_GROUP_NAMES"); v != "" {
		groupsCSV = v
	}

	flag.StringVar(&configPath, "config", os.Getenv("LOG_BROWSER_CONFIG"), "YAML config file (optional)")
	flag.StringVar(&listen, "listen", "", "HTTP listen address for serve (overrides config)")
	flag.StringVar(&storeDriver, "store", "", "Export store driver: bolt or sqlite (overrides config)")
	flag.StringVar(&storePath, "store-path", "", "Export store file path (overrides config)")
	flag.StringVar(&groupPrefix, "group-prefix", "", "Only list log groups with this name prefix")
	flag.StringVar(&groupsCSV, "groups", groupsCSV, "Comma-separated CloudWatch log group names")
	flag.StringVar(&region, "region", os.Getenv("AWS_REGION"), "AWS region (optional; falls back to AWS defaults)")
	flag.StringVar(&profileFlag, "profile", "", "AWS shared config profile (or set AWS_PROFILE)")
	flag.StringVar(&stream, "stream", "", "Restrict search to one log stream")
	flag.StringVar(&filterPattern, "filter-pattern", "", "CloudWatch Logs filter pattern")
	flag.IntVar(&limit, "limit", 0, "Maximum events per search (default 100, max 10000)")
	flag.IntVar(&concurrency, "concurrency", 4, "Max concurrent group searches (min 1)")
	flag.StringVar(&extractFlag, "extract", "", "JMESPath extract in name=path form (single occurrence)")
	flag.StringVar(&nextFilterFlag, "next-filter", "", "JMESPath to build second filter; requires --extract")
	flag.BoolVar(&prettyJSON, "pretty", false, "Pretty-print JSON output")
	flag.StringVar(&startStr, "start", "", "Start time RFC3339 (e.g., 2025-08-30T15:04:05Z)")
	flag.StringVar(&endStr, "end", "", "End time RFC3339 (e.g., 2025-08-31T15:04:05Z)")
	flag.Parse()

	command := CommandServe
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	return &Options{
		Command:       command,
		Args:          args,
		ConfigPath:    configPath,
		Listen:        listen,
		StoreDriver:   storeDriver,
		StorePath:     storePath,
		GroupPrefix:   groupPrefix,
		GroupsCSV:     groupsCSV,
		Region:        region,
		Profile:       profileFlag,
		Stream:        stream,
		FilterPattern: filterPattern,
		Limit:         limit,
		Concurrency:   concurrency,
		Extract:       extractFlag,
		NextFilter:    nextFilterFlag,
		PrettyJSON:    prettyJSON,
		StartRFC3339:  startStr,
		EndRFC3339:    endStr,
	}
}

// ParseGroupsCSV turns a comma-separated groups string into slice, trimming empties.
func ParseGroupsCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	var groups []string
	for _, g := range strings.Split(csv, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// ResolveProfile returns the profile from flag or AWS_PROFILE env, or empty.
func ResolveProfile(flagProfile string) string {
	if flagProfile != "" {
		return flagProfile
	}
	return os.Getenv("AWS_PROFILE")
}

// DefaultWindow is the search span used when no bound is given.
const DefaultWindow = 24 * time.Hour

// ResolveTimeWindow computes the [start,end] from optional RFC3339 strings.
// Rules:
// - both empty: last 24h ending at now
// - only start: end = now
// - only end: start = end - 24h
// - both set: validate start <= end
func ResolveTimeWindow(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	if startStr == "" && endStr == "" {
		return now.Add(-DefaultWindow), now, nil
	}
	var start time.Time
	var end time.Time
	var err error
	if startStr != "" {
		start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if startStr != "" && endStr == "" {
		end = now
	} else if startStr == "" && endStr != "" {
		start = end.Add(-DefaultWindow)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, ErrStartAfterEnd
	}
	return start, end, nil
}

// ErrStartAfterEnd represents an invalid time window where start > end.
var ErrStartAfterEnd = &timeRangeError{"start is after end"}

type timeRangeError struct{ s string }

func (e *timeRangeError) Error() string { return e.s }

// CountFlagOccurrences counts how many times a long flag (e.g., "--extract") appears
// considering both "--flag value" and "--flag=value" forms.
func CountFlagOccurrences(flagName string) int {
	count := 0
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == flagName {
			count++
			// Skip value if present and not another flag
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		if strings.HasPrefix(a, flagName+"=") {
			count++
			continue
		}
	}
	return count
}
