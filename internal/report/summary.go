package report

import (
	"fmt"
	"strings"

	"github.com/saltware-cloud/opsassistant/internal/inventory"
)

// RenderSummaryText produces the short plain-text digest sent back over the
// chat channel alongside the report URL.
func RenderSummaryText(doc inventory.Document) string {
	meta := docMap(doc, "metadata")
	ec2 := docMap(doc, "resources", "ec2")
	s3 := docMap(doc, "resources", "s3")
	iamUsers := docMap(doc, "iam_security", "users")
	sg := docMap(doc, "security_groups")
	ebs := docMap(doc, "encryption", "ebs")

	var b strings.Builder
	fmt.Fprintf(&b, "📋 AWS 계정 %s 월간 보안 점검 요약 (%s ~ %s)\n",
		docStr(meta, "account_id"), docStr(meta, "period_start"), docStr(meta, "period_end"))
	fmt.Fprintf(&b, "- EC2 인스턴스 %d개 (실행 중 %d개)\n", docInt(ec2, "total"), docInt(ec2, "running"))
	fmt.Fprintf(&b, "- S3 버킷 %d개 (암호화율 %s%%)\n", docInt(s3, "total"), formatRate(docFloat(docMap(doc, "encryption", "s3"), "encrypted_rate")))
	fmt.Fprintf(&b, "- IAM 사용자 %d명 중 MFA 설정 %d명\n", docInt(iamUsers, "total"), docInt(iamUsers, "mfa_enabled"))
	fmt.Fprintf(&b, "- 위험한 보안 그룹 규칙 %d건\n", docInt(sg, "risky"))
	fmt.Fprintf(&b, "- 암호화 미설정 EBS 볼륨 %d개\n", docInt(ebs, "unencrypted"))

	if issues := criticalIssues(doc); len(issues) > 0 {
		b.WriteString("⚠️ 즉시 조치 필요:\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "  • %s\n", issue.Text)
		}
	} else {
		b.WriteString("✅ 즉시 조치가 필요한 항목이 없습니다.\n")
	}
	return b.String()
}
