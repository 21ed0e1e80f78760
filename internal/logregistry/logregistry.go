// Package logregistry fetches and filters the Google v3 log list into the
// set of currently-active CT logs (C4). The registry is consulted once per
// process start; dynamic rediscovery is a non-goal (§4.4).
package logregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"itko.dev/internal/model"
)

// DefaultLogListURL is the Google v3 log list, configurable via the
// LOG_LIST_URL environment variable (§6).
const DefaultLogListURL = "https://www.gstatic.com/ct/log_list/v3/log_list.json"

// logList mirrors only the fields of the v3 schema this engine consumes.
// Modeled by hand rather than via loglist3.LogList: that upstream type's
// schema has since renamed "frozen" to "readonly" and nests state under
// richer sub-objects, while §4.4 names the literal usable/frozen
// vocabulary this engine must reproduce.
type logList struct {
	Operators []struct {
		Logs []struct {
			Description      string    `json:"description"`
			URL              string    `json:"url"`
			State            logStates `json:"state"`
			TemporalInterval *temporal `json:"temporal_interval"`
		} `json:"logs"`
	} `json:"operators"`
}

type logStates struct {
	Usable    *struct{} `json:"usable"`
	Frozen    *struct{} `json:"frozen"`
	Pending   *struct{} `json:"pending"`
	Qualified *struct{} `json:"qualified"`
	Retired   *struct{} `json:"retired"`
	Rejected  *struct{} `json:"rejected"`
}

type temporal struct {
	StartInclusive time.Time `json:"start_inclusive"`
	EndExclusive   time.Time `json:"end_exclusive"`
}

// Registry fetches the log list once and filters it to active logs.
type Registry struct {
	url  string
	http *http.Client
}

// New returns a Registry that fetches the list from url.
func New(url string) *Registry {
	return &Registry{url: url, http: http.DefaultClient}
}

// Discover fetches the log list and returns the LogDescriptors selected
// per §4.4: state is exactly one of usable/frozen, and now falls within
// [start_inclusive, end_exclusive).
func (r *Registry) Discover(ctx context.Context) ([]model.LogDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build log list request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch log list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch log list: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read log list response: %w", err)
	}

	var list logList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parse log list: %w", err)
	}

	return filterActive(list, time.Now().UTC()), nil
}

func filterActive(list logList, now time.Time) []model.LogDescriptor {
	var out []model.LogDescriptor
	for _, op := range list.Operators {
		for _, l := range op.Logs {
			state, ok := activeState(l.State)
			if !ok {
				continue
			}
			if l.TemporalInterval == nil {
				continue
			}
			if !inInterval(now, l.TemporalInterval.StartInclusive, l.TemporalInterval.EndExclusive) {
				continue
			}

			out = append(out, model.LogDescriptor{
				Name:  sanitizeName(l.Description),
				URL:   strings.TrimSuffix(l.URL, "/"),
				State: state,
				Start: l.TemporalInterval.StartInclusive,
				End:   l.TemporalInterval.EndExclusive,
			})
		}
	}
	return out
}

// activeState reports whether exactly one of usable/frozen is set, per
// §4.4 condition 1 (pending/qualified/readonly/retired/rejected logs are
// excluded).
func activeState(s logStates) (model.LogState, bool) {
	switch {
	case s.Usable != nil && s.Frozen == nil:
		return model.StateUsable, true
	case s.Frozen != nil && s.Usable == nil:
		return model.StateFrozen, true
	default:
		return 0, false
	}
}

func inInterval(now, start, end time.Time) bool {
	return (now.Equal(start) || now.After(start)) && now.Before(end)
}

var whitespaceRun = regexp.MustCompile(`\s+`)
var pathSeparators = strings.NewReplacer("/", "", "\\", "")

// sanitizeName derives a unique, filesystem-safe name from a log's human
// description: whitespace runs collapsed to a single underscore, path
// separators stripped (§4.4).
func sanitizeName(description string) string {
	s := pathSeparators.Replace(description)
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	return s
}
