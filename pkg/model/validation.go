package model

import (
	"fmt"
	"strings"

	"github.com/gorhill/cronexpr"
)

// EffectiveFormat returns the format actually rendered for the first
// dashboard. A report without recipients only warms the cache.
func (r *Report) EffectiveFormat() ArtifactFormat {
	if len(r.Dashboards) == 0 {
		return FormatCache
	}
	if len(r.EmailDetails.Recipients) == 0 {
		return FormatCache
	}
	return r.Dashboards[0].Format
}

// Validate checks the report before any browser work starts.
// Only the first dashboard is rendered, so only it is checked.
func (r *Report) Validate(allowedDomains []string) error {
	if len(r.Dashboards) == 0 {
		return NewError(KindValidation, "", "", ErrNoDashboards)
	}
	dashboard := r.Dashboards[0]
	if len(dashboard.Tabs) == 0 {
		return NewError(KindValidation, dashboard.Dashboard, "", ErrNoTabs)
	}

	// Checked on the declared format, before a missing recipient list turns
	// the request into a cache render.
	if dashboard.Format == FormatPDF && dashboard.Disposition == DispositionInline {
		return NewError(KindValidation, dashboard.Dashboard, "", ErrIncompatibleDisposition)
	}
	if r.EffectiveFormat() == FormatCache {
		return nil
	}
	if err := ValidateRecipientDomains(r.EmailDetails.Recipients, allowedDomains); err != nil {
		return NewError(KindValidation, dashboard.Dashboard, "", err)
	}
	return nil
}

// ValidateRecipientDomains validates that all recipient email addresses match the allowed domain whitelist.
// If allowedDomains is empty, all domains are allowed.
func ValidateRecipientDomains(recipients []string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}

	for _, email := range recipients {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}

		domain := extractDomain(email)
		if domain == "" {
			return fmt.Errorf("invalid email address format: %s", email)
		}

		if !isDomainAllowed(domain, allowedDomains) {
			return fmt.Errorf("%w: '%s' (email: %s). Allowed domains: %v", ErrDomainNotAllowed, domain, email, allowedDomains)
		}
	}

	return nil
}

// extractDomain extracts the domain part from an email address
func extractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// isDomainAllowed checks if a domain matches any entry in the allowed domains list
// Supports exact matches and wildcard patterns (e.g., "*.example.com")
func isDomainAllowed(domain string, allowedDomains []string) bool {
	domain = strings.ToLower(domain)

	for _, allowed := range allowedDomains {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		if domain == allowed {
			return true
		}

		if strings.HasPrefix(allowed, "*.") {
			baseDomain := allowed[2:]
			if domain == baseDomain || strings.HasSuffix(domain, "."+baseDomain) {
				return true
			}
		}
	}

	return false
}

// ValidateCronExpression validates a cron expression format.
// Returns an error if the expression cannot be parsed.
func ValidateCronExpression(cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}

	_, err := cronexpr.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression '%s': %v", cronExpr, err)
	}

	return nil
}
