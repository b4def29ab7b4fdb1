// Package attribution classifies the traffic source of a page load from
// its URL query parameters and referrer. Resolution is deterministic and
// priority ordered: UTM parameters beat paid-search click identifiers,
// which beat referrer classification, which beats the direct-traffic
// default. The first match wins; results are never merged.
package attribution

import (
	"net/url"
	"strings"
)

// Source classifications.
const (
	SourceDirect   = "DIRECT_TRAFFIC"
	SourceOrganic  = "ORGANIC_SEARCH"
	SourceSocial   = "SOCIAL_MEDIA"
	SourceEmail    = "EMAIL"
	SourceReferral = "REFERRAL"
)

// Attribution models: how the classification was derived.
const (
	ModelUTMCampaign = "utm_campaign"
	ModelPaidSearch  = "paid_search"
	ModelReferrer    = "referrer"
	ModelLastClick   = "last_click"
)

// Result is the classified traffic source for one page load.
type Result struct {
	Source       string `json:"source"`
	SourceDetail string `json:"sourceDetail"`
	Medium       string `json:"medium"`
	Campaign     string `json:"campaign,omitempty"`
	Content      string `json:"content,omitempty"`
	Term         string `json:"term,omitempty"`
	Model        string `json:"attribution_model"`
}

// paidParam maps an ad-platform click identifier to its fixed classification.
type paidParam struct {
	param  string
	source string
	medium string
	detail string
}

// Evaluation order matters: the first present identifier wins.
var paidParams = []paidParam{
	{param: "gclid", source: "GOOGLE_ADS", medium: "cpc", detail: "google"},
	{param: "fbclid", source: "FACEBOOK_ADS", medium: "social", detail: "facebook"},
	{param: "msclkid", source: "BING_ADS", medium: "cpc", detail: "bing"},
	{param: "ttclid", source: "TIKTOK_ADS", medium: "social", detail: "tiktok"},
	{param: "twclid", source: "TWITTER_ADS", medium: "social", detail: "twitter"},
}

// domainRule matches a referrer hostname by substring against a
// registrable-domain fragment.
type domainRule struct {
	fragment string
	source   string
	medium   string
	detail   string
}

// Referrer tables are walked in order; the first table entry whose
// fragment occurs in the hostname wins.
var searchEngines = []domainRule{
	{fragment: "google.", source: SourceOrganic, medium: "organic", detail: "google"},
	{fragment: "bing.", source: SourceOrganic, medium: "organic", detail: "bing"},
	{fragment: "yahoo.", source: SourceOrganic, medium: "organic", detail: "yahoo"},
	{fragment: "duckduckgo.", source: SourceOrganic, medium: "organic", detail: "duckduckgo"},
	{fragment: "baidu.", source: SourceOrganic, medium: "organic", detail: "baidu"},
	{fragment: "yandex.", source: SourceOrganic, medium: "organic", detail: "yandex"},
}

var socialNetworks = []domainRule{
	{fragment: "facebook.", source: SourceSocial, medium: "social", detail: "facebook"},
	{fragment: "twitter.", source: SourceSocial, medium: "social", detail: "twitter"},
	{fragment: "linkedin.", source: SourceSocial, medium: "social", detail: "linkedin"},
	{fragment: "instagram.", source: SourceSocial, medium: "social", detail: "instagram"},
	{fragment: "pinterest.", source: SourceSocial, medium: "social", detail: "pinterest"},
	{fragment: "youtube.", source: SourceSocial, medium: "social", detail: "youtube"},
	{fragment: "tiktok.", source: SourceSocial, medium: "social", detail: "tiktok"},
	{fragment: "reddit.", source: SourceSocial, medium: "social", detail: "reddit"},
	{fragment: "t.co", source: SourceSocial, medium: "social", detail: "twitter"},
	{fragment: "fb.me", source: SourceSocial, medium: "social", detail: "facebook"},
}

var emailClients = []domainRule{
	{fragment: "mail.google.", source: SourceEmail, medium: "email", detail: "gmail"},
	{fragment: "outlook.", source: SourceEmail, medium: "email", detail: "outlook"},
	{fragment: "mail.yahoo.", source: SourceEmail, medium: "email", detail: "yahoo_mail"},
}

// Detect classifies a page load. query holds the page URL's parsed query
// string, referrer the raw document referrer (may be empty or malformed)
// and pageHostname the hostname of the tracked page, used as the detail
// for direct traffic.
func Detect(query url.Values, referrer, pageHostname string) Result {
	direct := Result{
		Source:       SourceDirect,
		SourceDetail: pageHostname,
		Medium:       "none",
		Model:        ModelLastClick,
	}

	if hasUTMParameters(query) {
		return parseUTMParameters(query, direct)
	}

	if paid, ok := detectPaidSearch(query); ok {
		return paid
	}

	if referrer != "" {
		if res, ok := classifyReferrer(referrer); ok {
			return res
		}
	}

	return direct
}

func hasUTMParameters(query url.Values) bool {
	return query.Has("utm_source") || query.Has("utm_medium") || query.Has("utm_campaign")
}

func parseUTMParameters(query url.Values, base Result) Result {
	res := base
	if source := query.Get("utm_source"); source != "" {
		res.Source = strings.ToUpper(source)
		res.SourceDetail = source
	}
	if medium := query.Get("utm_medium"); medium != "" {
		res.Medium = medium
	}
	res.Campaign = query.Get("utm_campaign")
	res.Content = query.Get("utm_content")
	res.Term = query.Get("utm_term")
	res.Model = ModelUTMCampaign
	return res
}

func detectPaidSearch(query url.Values) (Result, bool) {
	for _, paid := range paidParams {
		if !query.Has(paid.param) {
			continue
		}
		campaign := query.Get("utm_campaign")
		if campaign == "" {
			campaign = "auto_tagged"
		}
		return Result{
			Source:       paid.source,
			SourceDetail: paid.detail,
			Medium:       paid.medium,
			Campaign:     campaign,
			Model:        ModelPaidSearch,
		}, true
	}
	return Result{}, false
}

// classifyReferrer matches the referrer hostname against the ordered
// domain tables. A malformed referrer URL reports no match so the
// resolver falls through to the direct-traffic default.
func classifyReferrer(referrer string) (Result, bool) {
	parsed, err := url.Parse(referrer)
	if err != nil {
		return Result{}, false
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return Result{}, false
	}

	for _, table := range [][]domainRule{searchEngines, socialNetworks, emailClients} {
		for _, rule := range table {
			if strings.Contains(hostname, rule.fragment) {
				return Result{
					Source:       rule.source,
					SourceDetail: rule.detail,
					Medium:       rule.medium,
					Model:        ModelReferrer,
				}, true
			}
		}
	}

	return Result{
		Source:       SourceReferral,
		SourceDetail: hostname,
		Medium:       "referral",
		Model:        ModelReferrer,
	}, true
}

// DetectFromURL is a convenience wrapper parsing the raw page URL first.
// An unparseable page URL degrades to an empty query and hostname.
func DetectFromURL(pageURL, referrer string) Result {
	query := url.Values{}
	hostname := ""
	if parsed, err := url.Parse(pageURL); err == nil {
		query = parsed.Query()
		hostname = parsed.Hostname()
	}
	return Detect(query, referrer, hostname)
}
