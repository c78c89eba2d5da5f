package report

import (
	"fmt"
	"html"
	"strings"

	"github.com/saltware-cloud/opsassistant/internal/inventory"
)

// criticalIssue is one aggregated finding for the top alert box.
type criticalIssue struct {
	Text  string
	Names []string
}

// criticalIssues dedupes and groups findings before display:
// MFA-missing users collapse to one entry with the count and up to five
// names, risky SG rules group by destination port (only 22 and 3389
// surface), and unencrypted EBS volumes collapse to a single count.
func criticalIssues(doc inventory.Document) []criticalIssue {
	var issues []criticalIssue

	iamUsers := docMap(doc, "iam_security", "users")
	missing := docInt(iamUsers, "total") - docInt(iamUsers, "mfa_enabled")
	if missing > 0 {
		var names []string
		for _, item := range docSeq(iamUsers, "details") {
			user, _ := item.(map[string]any)
			if !docBool(user, "mfa_enabled") && len(names) < 5 {
				names = append(names, docStr(user, "user_name"))
			}
		}
		issues = append(issues, criticalIssue{
			Text:  fmt.Sprintf("MFA 미설정 사용자 %d명", missing),
			Names: names,
		})
	}

	portCounts := map[int]int{}
	for _, item := range docSeq(docMap(doc, "security_groups"), "details") {
		rule, _ := item.(map[string]any)
		portCounts[docInt(rule, "port")]++
	}
	for _, port := range []int{22, 3389} {
		if n := portCounts[port]; n > 0 {
			issues = append(issues, criticalIssue{
				Text: fmt.Sprintf("포트 %d 전체 공개 규칙 %d건", port, n),
			})
		}
	}

	ebs := docMap(doc, "encryption", "ebs")
	if n := docInt(ebs, "unencrypted"); n > 0 {
		issues = append(issues, criticalIssue{
			Text: fmt.Sprintf("암호화 미설정 EBS 볼륨 %d개", n),
		})
	}

	return issues
}

func criticalIssuesSection(issues []criticalIssue) string {
	if len(issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="alert-box critical"><h4>⚠️ 즉시 조치 필요 항목</h4><ul>`)
	for _, issue := range issues {
		text := html.EscapeString(issue.Text)
		if len(issue.Names) > 0 {
			escaped := make([]string, len(issue.Names))
			for i, name := range issue.Names {
				escaped[i] = html.EscapeString(name)
			}
			text += " (" + strings.Join(escaped, ", ") + ")"
		}
		fmt.Fprintf(&b, "<li>%s</li>", text)
	}
	b.WriteString("</ul></div>")
	return b.String()
}
