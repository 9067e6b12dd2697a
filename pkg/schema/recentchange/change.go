// Package recentchange defines typed records for the recentchange stream published by Wikimedia EventStreams.
//
// Field documentation follows the MediaWiki database manual, e.g. https://www.mediawiki.org/wiki/Manual:Recentchanges_table.
package recentchange

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/transientvariable/eventstreams/pkg/schema"

	"github.com/transientvariable/anchor"
)

// Enumeration of the recent change types carried by the stream.
const (
	TypeCategorize = "categorize"
	TypeEdit       = "edit"
	TypeLog        = "log"
	TypeNew        = "new"
)

var (
	_ schema.Event = (*EditEvent)(nil)
	_ schema.Event = (*LogEvent)(nil)
)

// Meta is the event envelope added by the event platform.
type Meta struct {
	URI       string `json:"uri"`
	RequestID string `json:"request_id"`
	ID        string `json:"id"`
	DT        string `json:"dt"`
	Domain    string `json:"domain"`
	Stream    string `json:"stream"`
	Topic     string `json:"topic"`
	Partition int64  `json:"partition"`
	Offset    int64  `json:"offset"`
}

// Length is the length in bytes of the new revision, and potentially the old revision.
type Length struct {
	Old *int64 `json:"old,omitempty"`
	New int64  `json:"new"`
}

// Revision is the revision ID of the new revision, and potentially the old revision.
type Revision struct {
	Old *int64 `json:"old,omitempty"`
	New int64  `json:"new"`
}

// Change holds the fields shared by every recent change.
type Change struct {
	Schema string `json:"$schema"`
	Meta   Meta   `json:"meta"`

	// ID is the recent change ID (rc_id).
	ID   int64  `json:"id"`
	Type string `json:"type"`

	// Namespace is the namespace ID of the page.
	Namespace int64 `json:"namespace"`

	// Title is the prefixed title, including the namespace name.
	Title string `json:"title"`

	// Comment is the edit summary (comment_text).
	Comment string `json:"comment"`

	// ParsedComment is the HTML-parsed version of Comment.
	ParsedComment string `json:"parsedcomment"`

	// Timestamp is a unix timestamp in seconds.
	Timestamp int64 `json:"timestamp"`

	// User is the actor name.
	User string `json:"user"`

	// Bot reports whether the change was flagged as made by a bot (rc_bot).
	Bot bool `json:"bot"`

	// ServerURL is the URL of the wiki with protocol, e.g. https://www.wikidata.org.
	ServerURL string `json:"server_url"`

	// ServerName is the domain of the wiki with no protocol, e.g. www.wikidata.org or en.wikipedia.org.
	ServerName string `json:"server_name"`

	// ServerScriptPath is the base URL path of the wiki ($wgScriptPath).
	ServerScriptPath string `json:"server_script_path"`

	// Wiki is the internal database name, usually $wgDBname.
	Wiki string `json:"wiki"`
}

// EventID returns the ID assigned to the event by the event platform.
func (c *Change) EventID() string {
	return c.Meta.ID
}

// EventType returns the recent change type, e.g. TypeEdit.
func (c *Change) EventType() string {
	return c.Type
}

// Domain returns the server name of the wiki the change belongs to.
func (c *Change) Domain() string {
	return c.ServerName
}

// Time returns Timestamp as a time.Time.
func (c *Change) Time() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

// Metadata returns the event envelope as a map.
func (c *Change) Metadata() map[string]any {
	return map[string]any{
		"uri":        c.Meta.URI,
		"request_id": c.Meta.RequestID,
		"id":         c.Meta.ID,
		"dt":         c.Meta.DT,
		"domain":     c.Meta.Domain,
		"stream":     c.Meta.Stream,
		"topic":      c.Meta.Topic,
		"partition":  c.Meta.Partition,
		"offset":     c.Meta.Offset,
	}
}

// APIURL returns the URL to the wiki's api.php (Action API) endpoint.
func (c *Change) APIURL() string {
	return c.endpoint("api")
}

func (c *Change) endpoint(name string) string {
	return fmt.Sprintf("%s%s/%s.php", c.ServerURL, c.ServerScriptPath, name)
}

// EditEvent represents an edit or a page creation.
type EditEvent struct {
	Change
	Minor     *bool    `json:"minor,omitempty"`
	Patrolled *bool    `json:"patrolled,omitempty"`
	Length    Length   `json:"length"`
	Revision  Revision `json:"revision"`
}

// IsMinor reports whether the edit is marked as minor.
func (e *EditEvent) IsMinor() bool {
	return e.Minor != nil && *e.Minor
}

// IsPatrolled reports whether the edit has been marked as patrolled.
func (e *EditEvent) IsPatrolled() bool {
	return e.Patrolled != nil && *e.Patrolled
}

// DiffURL returns the URL to the diff for this edit, formatted for human readability.
func (e *EditEvent) DiffURL() string {
	return fmt.Sprintf("%s?title=%s&diff=%d", e.endpoint("index"), titleForURL(e.Title), e.Revision.New)
}

// ShortDiffURL returns the URL to the diff for this edit, as short as possible.
func (e *EditEvent) ShortDiffURL() string {
	return fmt.Sprintf("%s?diff=%d", e.ServerURL, e.Revision.New)
}

// String returns a string representation of the EditEvent.
func (e *EditEvent) String() string {
	return string(anchor.ToJSONFormatted(e))
}

// LogEvent represents a log entry.
type LogEvent struct {
	Change
	LogID            int64  `json:"log_id"`
	LogType          string `json:"log_type"`
	LogAction        string `json:"log_action"`
	LogParams        any    `json:"log_params"`
	LogActionComment string `json:"log_action_comment"`
}

// String returns a string representation of the LogEvent.
func (e *LogEvent) String() string {
	return string(anchor.ToJSONFormatted(e))
}

func titleForURL(title string) string {
	return url.QueryEscape(strings.ReplaceAll(title, " ", "_"))
}
