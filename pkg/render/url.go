package render

import (
	"net/url"
	"strings"

	"github.com/yourusername/report-generator/pkg/model"
)

// Values of the search_type parameter
const (
	searchTypeReport = "reports"
	searchTypeCache  = "ui"
)

// LoginURL is the internal-user login page of the web app
func LoginURL(web string) string {
	return trimBase(web) + "/login?login_as_internal_user=true"
}

// OrgURL selects org as the active organization
func OrgURL(web, org string) string {
	return trimBase(web) + "/?org_identifier=" + url.QueryEscape(org)
}

// SessionDashboardURL is the URL the browser renders. Relative ranges pass
// the period so the app resolves "now" itself.
func SessionDashboardURL(job Job) string {
	searchType := searchTypeReport
	if job.Format == model.FormatCache {
		searchType = searchTypeCache
	}
	return dashboardURL(job, "&search_type="+searchType+"&"+job.Window.SessionQuery)
}

// EmailDashboardURL is the link put in the email. It always carries
// concrete bounds.
func EmailDashboardURL(job Job) string {
	return dashboardURL(job, "&"+job.Window.EmailQuery)
}

func dashboardURL(job Job, rangeQuery string) string {
	var b strings.Builder
	b.WriteString(trimBase(job.WebURL))
	b.WriteString("/dashboards/view?org_identifier=")
	b.WriteString(url.QueryEscape(job.OrgID))
	b.WriteString("&dashboard=")
	b.WriteString(url.QueryEscape(job.Dashboard.Dashboard))
	b.WriteString("&folder=")
	b.WriteString(url.QueryEscape(job.Dashboard.Folder))
	b.WriteString("&tab=")
	b.WriteString(url.QueryEscape(job.Dashboard.FirstTab()))
	b.WriteString("&refresh=Off")
	b.WriteString(rangeQuery)
	b.WriteString("&timezone=")
	b.WriteString(url.QueryEscape(job.Timezone))
	b.WriteString("&var-Dynamic+filters=%255B%255D&print=true")
	for _, v := range job.Dashboard.Variables {
		b.WriteString("&var-")
		b.WriteString(url.QueryEscape(v.Key))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(v.Value))
	}
	return b.String()
}

func trimBase(web string) string {
	return strings.TrimRight(web, "/")
}
