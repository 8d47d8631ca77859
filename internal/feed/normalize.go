package feed

import (
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/vulnfed/vulnfed-backend/model"
	"github.com/vulnfed/vulnfed-backend/util"
)

// ParseDate parses a feed timestamp permissively. Anything unparseable comes
// back as nil; a raw date string never reaches the store.
func ParseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// nvdEnvelope is the NVD API 2.0 response wrapper. Vulnerabilities is a
// pointer so a response missing the array entirely fails the shape check
// instead of looking like an empty page.
type nvdEnvelope struct {
	ResultsPerPage  int        `json:"resultsPerPage"`
	StartIndex      int        `json:"startIndex"`
	TotalResults    int        `json:"totalResults"`
	Vulnerabilities *[]nvdItem `json:"vulnerabilities"`
}

type nvdItem struct {
	CVE nvdCVE `json:"cve"`
}

type nvdCVE struct {
	ID               string                 `json:"id"`
	SourceIdentifier string                 `json:"sourceIdentifier"`
	Published        string                 `json:"published"`
	LastModified     string                 `json:"lastModified"`
	VulnStatus       string                 `json:"vulnStatus"`
	Descriptions     []model.Description    `json:"descriptions"`
	Metrics          map[string]interface{} `json:"metrics"`
	Weaknesses       []interface{}          `json:"weaknesses"`
	Configurations   []interface{}          `json:"configurations"`
	References       []nvdReference         `json:"references"`
}

type nvdReference struct {
	URL string `json:"url"`
}

// normalizeNVDItem maps one NVD envelope item into the common record shape.
func normalizeNVDItem(item nvdItem) model.CVERecord {
	cve := item.CVE

	refs := make([]string, 0, len(cve.References))
	for _, ref := range cve.References {
		refs = append(refs, ref.URL)
	}

	return model.CVERecord{
		ID:               cve.ID,
		SourceIdentifier: cve.SourceIdentifier,
		Published:        ParseDate(cve.Published),
		LastModified:     ParseDate(cve.LastModified),
		VulnStatus:       cve.VulnStatus,
		Descriptions:     orEmptyDescriptions(cve.Descriptions),
		Metrics:          orEmptyMap(cve.Metrics),
		Weaknesses:       orEmptySlice(cve.Weaknesses),
		Configurations:   orEmptySlice(cve.Configurations),
		References:       refs,
	}
}

// backupItem is the Red Hat security data API list shape. The score fields
// arrive as numbers or strings depending on the record, so they stay untyped
// until coercion.
type backupItem struct {
	CVE                 string                 `json:"CVE"`
	Source              string                 `json:"source"`
	ThreatSeverity      string                 `json:"threat_severity"`
	Severity            string                 `json:"severity"`
	Status              string                 `json:"status"`
	PublicDate          string                 `json:"public_date"`
	ModifiedDate        string                 `json:"modified_date"`
	Details             string                 `json:"details"`
	CVSS3               map[string]interface{} `json:"cvss3"`
	Reference           string                 `json:"reference"`
	Advisories          []interface{}          `json:"advisories"`
	Bugzilla            string                 `json:"bugzilla"`
	BugzillaDescription string                 `json:"bugzilla_description"`
	CVSS3Score          interface{}            `json:"cvss3_score"`
	CVSS3ScoringVector  string                 `json:"cvss3_scoring_vector"`
	CVSSScore           interface{}            `json:"cvss_score"`
	CVSSScoringVector   string                 `json:"cvss_scoring_vector"`
	PackageState        []interface{}          `json:"package_state"`
	ResourceURL         string                 `json:"resource_url"`
}

// normalizeBackupItem maps one Red Hat item into the common record shape.
// The feed has no multi-language description array, so one is synthesized
// from the free-text details. Missing numeric scores are recovered from the
// scoring vector when one is present, and a missing severity is rated from
// the recovered score.
func normalizeBackupItem(item backupItem) model.CVERecord {
	var descriptions []model.Description
	if util.IsNotEmpty(item.Details) {
		descriptions = []model.Description{{Lang: "en", Value: item.Details}}
	} else {
		descriptions = []model.Description{}
	}

	metrics := map[string]interface{}{}
	if item.CVSS3 != nil {
		metrics["cvssV3"] = item.CVSS3
	}

	references := []string{}
	if util.IsNotEmpty(item.Reference) {
		references = append(references, item.Reference)
	}

	cvss3Score := toFloat(item.CVSS3Score)
	if cvss3Score == 0 {
		cvss3Score = util.CalculateCVSSScore(item.CVSS3ScoringVector)
	}

	severity := item.ThreatSeverity
	if util.IsEmpty(severity) {
		severity = item.Severity
	}
	if util.IsEmpty(severity) && cvss3Score > 0 {
		severity = util.GetSeverityRating(cvss3Score)
	}

	publicDate := ParseDate(item.PublicDate)

	return model.CVERecord{
		ID:               item.CVE,
		SourceIdentifier: item.Source,
		Published:        publicDate,
		LastModified:     ParseDate(item.ModifiedDate),
		VulnStatus:       item.Status,
		Descriptions:     descriptions,
		Metrics:          metrics,
		Weaknesses:       []interface{}{},
		Configurations:   []interface{}{},
		References:       references,

		Severity:            severity,
		PublicDate:          publicDate,
		Advisories:          orEmptySlice(item.Advisories),
		Bugzilla:            item.Bugzilla,
		BugzillaDescription: item.BugzillaDescription,
		CVSS3Score:          cvss3Score,
		CVSS3ScoringVector:  item.CVSS3ScoringVector,
		CVSSScore:           toFloat(item.CVSSScore),
		CVSSScoringVector:   item.CVSSScoringVector,
		PackageState:        orEmptySlice(item.PackageState),
		ResourceURL:         item.ResourceURL,
	}
}

func orEmptyDescriptions(d []model.Description) []model.Description {
	if d == nil {
		return []model.Description{}
	}
	return d
}

func orEmptySlice(s []interface{}) []interface{} {
	if s == nil {
		return []interface{}{}
	}
	return s
}

func orEmptyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// toFloat coerces the string-or-number score fields the Red Hat API serves.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return 0
}
