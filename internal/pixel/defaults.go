package pixel

import "tracking-cog/internal/domain/entity"

// builtins is the vendor table shipped with the binary. A registry file can
// override or extend any entry.
var builtins = []entity.PixelDescriptor{
	{
		Name:    "google analytics ua",
		Aliases: []string{"google analytics", "universal analytics", "ga"},
		BaseURLs: []string{
			"https://www.google-analytics.com/collect",
			"https://www.google-analytics.com/r/collect",
			"https://www.google-analytics.com/j/collect",
		},
		ScriptURLs: []string{
			"https://www.google-analytics.com/analytics.js",
			"https://www.google-analytics.com/ga.js",
			"https://www.googletagmanager.com/gtag/js",
		},
	},
	{
		Name:    "google analytics ga4",
		Aliases: []string{"ga4", "google analytics 4"},
		BaseURLs: []string{
			"https://www.google-analytics.com/g/collect",
			"https://analytics.google.com/g/collect",
			"https://*.google-analytics.com/g/collect",
		},
		FixedParams: map[string]string{"v": "2"},
		ScriptURLs: []string{
			"https://www.googletagmanager.com/gtag/js",
			"https://www.googletagmanager.com/gtm.js",
		},
	},
	{
		Name:    "google ads",
		Aliases: []string{"adwords", "google ads conversion"},
		BaseURLs: []string{
			"https://www.googleadservices.com/pagead/conversion",
			"https://googleads.g.doubleclick.net/pagead/viewthroughconversion",
			"https://www.google.com/pagead/1p-conversion",
		},
		ScriptURLs: []string{
			"https://www.googletagmanager.com/gtag/js",
			"https://www.googleadservices.com/pagead/conversion.js",
		},
	},
	{
		Name:    "floodlight",
		Aliases: []string{"google floodlight", "campaign manager", "doubleclick floodlight"},
		BaseURLs: []string{
			"https://*.fls.doubleclick.net/activity",
			"https://ad.doubleclick.net/activity",
		},
		ParamStyle: entity.ParamStyleMatrix,
		ScriptURLs: []string{"https://www.googletagmanager.com/gtag/js"},
	},
	{
		Name:         "linkedin insight",
		Aliases:      []string{"linkedin", "linkedin insight tag"},
		BaseURLs:     []string{"https://px.ads.linkedin.com/", "https://dc.ads.linkedin.com/"},
		PathContains: "/collect",
		ScriptURLs:   []string{"https://snap.licdn.com/li.lms-analytics/insight.min.js"},
	},
	{
		Name:     "pardot",
		Aliases:  []string{"salesforce pardot", "account engagement"},
		BaseURLs: []string{"https://pi.pardot.com/analytics", "https://go.pardot.com/analytics"},
		ScriptURLs: []string{
			"https://pi.pardot.com/pd.js",
			"https://cdn.pardot.com/pd.js",
		},
	},
	{
		Name:         "marketo",
		Aliases:      []string{"marketo munchkin", "munchkin"},
		BaseURLs:     []string{"https://*.mktoresp.com/webevents/"},
		PathContains: "/webevents/",
		ScriptURLs:   []string{"https://munchkin.marketo.net/"},
	},
	{
		Name:       "facebook pixel",
		Aliases:    []string{"facebook", "meta pixel", "meta"},
		BaseURLs:   []string{"https://www.facebook.com/tr"},
		ScriptURLs: []string{"https://connect.facebook.net/"},
	},
	{
		Name:       "bing ads",
		Aliases:    []string{"bing", "microsoft ads", "uet"},
		BaseURLs:   []string{"https://bat.bing.com/action/"},
		ScriptURLs: []string{"https://bat.bing.com/bat.js"},
	},
	{
		Name:     "hubspot",
		Aliases:  []string{"hubspot tracking"},
		BaseURLs: []string{"https://track.hubspot.com/__pt", "https://*.hs-analytics.net/"},
		ScriptURLs: []string{
			"https://js.hs-scripts.com/",
			"https://js.hs-analytics.net/",
		},
	},
	{
		Name:       "twitter",
		Aliases:    []string{"twitter ads", "x ads"},
		BaseURLs:   []string{"https://analytics.twitter.com/i/adsct", "https://t.co/i/adsct"},
		ScriptURLs: []string{"https://static.ads-twitter.com/uwt.js"},
	},
}
