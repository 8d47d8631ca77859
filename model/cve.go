// Package model defines the record shapes shared across the feed ingestors,
// the document store and the query surfaces.
package model

import "time"

// Description is one language-tagged description entry on a CVE record.
type Description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// CVERecord is the common shape every feed is normalized into. The three
// stores share this struct; the backup-feed-only fields stay empty for the
// NVD families. Timestamps are pointers on purpose: an unparseable date from
// a feed becomes nil, never a raw string.
type CVERecord struct {
	ID               string                 `json:"id"`
	SourceIdentifier string                 `json:"sourceIdentifier"`
	Published        *time.Time             `json:"published"`
	LastModified     *time.Time             `json:"lastModified"`
	VulnStatus       string                 `json:"vulnStatus"`
	Descriptions     []Description          `json:"descriptions"`
	Metrics          map[string]interface{} `json:"metrics"`
	Weaknesses       []interface{}          `json:"weaknesses"`
	Configurations   []interface{}          `json:"configurations"`
	References       []string               `json:"references"`

	// Backup feed only
	Severity            string        `json:"severity,omitempty"`
	PublicDate          *time.Time    `json:"public_date,omitempty"`
	Advisories          []interface{} `json:"advisories,omitempty"`
	Bugzilla            string        `json:"bugzilla,omitempty"`
	BugzillaDescription string        `json:"bugzilla_description,omitempty"`
	CVSS3Score          float64       `json:"cvss3_score,omitempty"`
	CVSS3ScoringVector  string        `json:"cvss3_scoring_vector,omitempty"`
	CVSSScore           float64       `json:"cvss_score,omitempty"`
	CVSSScoringVector   string        `json:"cvss_scoring_vector,omitempty"`
	PackageState        []interface{} `json:"package_state,omitempty"`
	ResourceURL         string        `json:"resource_url,omitempty"`
}

// Asset is the user-maintained asset record. The engine only ever reads it;
// the CRUD surface for assets lives outside this service.
type Asset struct {
	Key  string `json:"_key"`
	Text string `json:"text"`
	Date string `json:"date"`
	Name string `json:"name"`
}
