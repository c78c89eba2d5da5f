// Package report binds an inventory document to the monthly HTML report.
// The template is an opaque string with {name} placeholders; rendering is
// pure string substitution, never template parsing.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "embed"

	"github.com/saltware-cloud/opsassistant/internal/inventory"
)

//go:embed template.html
var defaultTemplate string

// ErrInvalidTemplate reports a placeholder with no bound value. This is a
// programming error, not a data error: every placeholder the template names
// must be produced for every document.
var ErrInvalidTemplate = errors.New("report: template placeholder not bound")

// placeholderRe matches an unbound {name} placeholder after substitution.
// CSS rule bodies never look like a bare lowercase identifier in braces, so
// the template's style block does not false-positive.
var placeholderRe = regexp.MustCompile(`\{[a-z][a-z0-9_]*\}`)

// Renderer renders inventory documents into self-contained HTML.
type Renderer struct {
	template string
}

// NewRenderer uses the embedded default template.
func NewRenderer() *Renderer {
	return &Renderer{template: defaultTemplate}
}

// NewRendererWithTemplate substitutes into a caller-supplied template. The
// template stays opaque: only {name} placeholders are touched.
func NewRendererWithTemplate(tmpl string) *Renderer {
	return &Renderer{template: tmpl}
}

// Render substitutes every placeholder and fails if any remain unbound.
func (r *Renderer) Render(doc inventory.Document) (string, error) {
	vars := templateVars(doc)
	html := r.template
	for name, value := range vars {
		html = strings.ReplaceAll(html, "{"+name+"}", value)
	}
	if leftover := placeholderRe.FindString(html); leftover != "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidTemplate, leftover)
	}
	return html, nil
}

func templateVars(doc inventory.Document) map[string]string {
	meta := docMap(doc, "metadata")
	ec2 := docMap(doc, "resources", "ec2")
	s3 := docMap(doc, "resources", "s3")
	rds := docMap(doc, "resources", "rds")
	lambda := docMap(doc, "resources", "lambda")
	iamUsers := docMap(doc, "iam_security", "users")
	sg := docMap(doc, "security_groups")
	ebs := docMap(doc, "encryption", "ebs")
	s3Enc := docMap(doc, "encryption", "s3")
	rdsEnc := docMap(doc, "encryption", "rds")
	ta := docMap(doc, "trusted_advisor")
	ct := docMap(doc, "cloudtrail_events")
	ctSummary := docMap(doc, "cloudtrail_events", "summary")
	cw := docMap(doc, "cloudwatch", "summary")

	s3Rate := docFloat(s3Enc, "encrypted_rate")
	rdsRate := docFloat(rdsEnc, "encrypted_rate")
	ebsRate := docFloat(ebs, "encrypted_rate")
	mfaRate := docFloat(iamUsers, "mfa_rate")

	issues := criticalIssues(doc)

	return map[string]string{
		"account_id":   docStr(meta, "account_id"),
		"region":       docStr(meta, "region"),
		"report_date":  docStr(meta, "generated_at"),
		"period_start": docStr(meta, "period_start"),
		"period_end":   docStr(meta, "period_end"),

		"ec2_total":   docNum(ec2, "total"),
		"ec2_running": docNum(ec2, "running"),
		"ec2_stopped": docNum(ec2, "stopped"),
		"ec2_rows":    ec2Rows(docSeq(ec2, "instances")),

		"s3_total":            docNum(s3, "total"),
		"s3_encrypted":        docNum(s3, "encrypted"),
		"s3_encrypted_rate":   formatRate(s3Rate),
		"s3_compliance_class": complianceClass(s3Rate),
		"s3_rows":             s3Rows(docSeq(s3, "buckets")),

		"rds_total":            docNum(rds, "total"),
		"rds_multi_az":         docNum(rds, "multi_az"),
		"rds_encrypted_rate":   formatRate(rdsRate),
		"rds_compliance_class": complianceClass(rdsRate),
		"rds_rows":             rdsRows(docSeq(rds, "instances")),

		"lambda_total": docNum(lambda, "total"),
		"lambda_rows":  lambdaRows(docSeq(lambda, "functions")),

		"iam_users_total":      docNum(iamUsers, "total"),
		"iam_mfa_enabled":      docNum(iamUsers, "mfa_enabled"),
		"iam_mfa_rate":         formatRate(mfaRate),
		"iam_compliance_class": complianceClass(mfaRate),
		"iam_users_rows":       iamUserRows(docSeq(iamUsers, "details")),

		"sg_total":      docNum(sg, "total"),
		"sg_risky":      docNum(sg, "risky"),
		"sg_risky_rows": sgRiskyRows(docSeq(sg, "details")),

		"ebs_total":               docNum(ebs, "total"),
		"ebs_encrypted":           docNum(ebs, "encrypted"),
		"ebs_rate":                formatRate(ebsRate),
		"ebs_compliance_class":    complianceClass(ebsRate),
		"ebs_unencrypted_section": ebsUnencryptedSection(ebs),

		"ta_rows": taRows(ta),

		"cloudtrail_days": docNum(ctSummary, "period_days"),
		"cloudtrail_rows": cloudTrailRows(docSeq(ct, "critical_events")),

		"cloudwatch_total":        docNum(cw, "total"),
		"cloudwatch_in_alarm":     docNum(cw, "in_alarm"),
		"cloudwatch_ok":           docNum(cw, "ok"),
		"cloudwatch_insufficient": docNum(cw, "insufficient_data"),
		"cloudwatch_rows":         cloudWatchRows(docSeq(doc, "cloudwatch", "alarms")),

		"critical_issues_count":   strconv.Itoa(len(issues)),
		"critical_issues_section": criticalIssuesSection(issues),

		"recommendations_section": recommendationsSection(docSeq(doc, "recommendations")),
	}
}

// complianceClass maps a rate in [0, 1] to the template's rate classes.
func complianceClass(rate float64) string {
	switch {
	case rate < 0.50:
		return "critical"
	case rate < 0.80:
		return "warning"
	default:
		return "ok"
	}
}

// formatRate renders a [0, 1] rate as a one-decimal percentage.
func formatRate(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64)
}

// Document accessor helpers. Missing keys resolve to zero values so a
// stubbed-out sub-collection still renders.

func docMap(doc inventory.Document, keys ...string) map[string]any {
	cur := map[string]any(doc)
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	return cur
}

func docSeq(m map[string]any, keys ...string) []any {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			return nil
		}
		m = next
	}
	seq, _ := m[keys[len(keys)-1]].([]any)
	return seq
}

func docStr(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func docInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func docNum(m map[string]any, key string) string {
	return strconv.Itoa(docInt(m, key))
}

func docFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func docBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
