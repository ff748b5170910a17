package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to CDP resource types. Keys mirror
// models.ResourceTypes.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains is a set of well-known ad and tracking domains to block
// when BlockAds is enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":                {},
	"googlesyndication.com":          {},
	"googleadservices.com":           {},
	"google-analytics.com":           {},
	"googletagmanager.com":           {},
	"googletagservices.com":          {},
	"facebook.net":                   {},
	"connect.facebook.net":           {},
	"facebook.com":                   {},
	"fbcdn.net":                      {},
	"adnxs.com":                      {},
	"adsrvr.org":                     {},
	"amazon-adsystem.com":            {},
	"criteo.com":                     {},
	"criteo.net":                     {},
	"outbrain.com":                   {},
	"taboola.com":                    {},
	"moatads.com":                    {},
	"pubmatic.com":                   {},
	"rubiconproject.com":             {},
	"scorecardresearch.com":          {},
	"quantserve.com":                 {},
	"hotjar.com":                     {},
	"mixpanel.com":                   {},
	"segment.io":                     {},
	"segment.com":                    {},
	"analytics.twitter.com":          {},
	"ads-twitter.com":                {},
	"static.ads-twitter.com":         {},
	"chartbeat.com":                  {},
	"chartbeat.net":                  {},
	"optimizely.com":                 {},
	"zedo.com":                       {},
	"media.net":                      {},
	"contextweb.com":                 {},
	"bidswitch.net":                  {},
	"openx.net":                      {},
	"casalemedia.com":                {},
	"demdex.net":                     {},
	"krxd.net":                       {},
	"bluekai.com":                    {},
	"exelator.com":                   {},
	"turn.com":                       {},
	"mathtag.com":                    {},
	"serving-sys.com":                {},
	"eyeota.net":                     {},
	"agkn.com":                       {},
	"rlcdn.com":                      {},
	"sharethis.com":                  {},
	"addthis.com":                    {},
	"consensu.org":                   {},
}

// isAdDomain reports whether host or one of its parent domains is listed.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// blockRules decides which requests of a session are aborted.
type blockRules struct {
	types map[proto.NetworkResourceType]struct{}
	ads   bool
}

func newBlockRules(names []string, blockAds bool) blockRules {
	r := blockRules{types: make(map[proto.NetworkResourceType]struct{}, len(names)), ads: blockAds}
	for _, name := range names {
		if rt, ok := resourceTypes[name]; ok {
			r.types[rt] = struct{}{}
		}
	}
	return r
}

func (r blockRules) empty() bool {
	return len(r.types) == 0 && !r.ads
}

func (r blockRules) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := r.types[rt]; ok {
		return true
	}
	if r.ads {
		if u, err := url.Parse(rawURL); err == nil && isAdDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor that aborts the requests
// matched by the block rules. The document request itself is never
// blocked so navigation still succeeds.
//
// Returns nil if there is nothing to block; otherwise the caller stops the
// returned router when the session ends.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	rules := newBlockRules(blockedTypes, blockAds)
	if rules.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		rt := h.Request.Type()
		if rt != proto.NetworkResourceTypeDocument && rules.blocks(rt, h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}
