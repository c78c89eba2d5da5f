package report

import (
	"fmt"
	"html"
	"strings"
)

// Row helpers are pure: sequence in, HTML fragment out, fixed column order.
// An empty sequence renders a single no-data row so every table stays valid.

const maxTableRows = 10

func noDataRow(cols int, text string) string {
	return fmt.Sprintf(`<tr><td colspan="%d" class="text-center text-muted">%s</td></tr>`, cols, html.EscapeString(text))
}

func ec2Rows(instances []any) string {
	if len(instances) == 0 {
		return noDataRow(5, "EC2 인스턴스가 없습니다.")
	}
	var b strings.Builder
	for i, item := range instances {
		if i == maxTableRows {
			break
		}
		inst, _ := item.(map[string]any)
		stateClass := "secondary"
		if docStr(inst, "state") == "running" {
			stateClass = "success"
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%s</td><td><span class="badge badge-%s">%s</span></td><td>%s</td></tr>`,
			html.EscapeString(docStr(inst, "instance_id")),
			html.EscapeString(docStr(inst, "name")),
			html.EscapeString(docStr(inst, "instance_type")),
			stateClass,
			html.EscapeString(docStr(inst, "state")),
			html.EscapeString(docStr(inst, "launch_time")))
	}
	return b.String()
}

func s3Rows(buckets []any) string {
	if len(buckets) == 0 {
		return noDataRow(4, "S3 버킷이 없습니다.")
	}
	var b strings.Builder
	for i, item := range buckets {
		if i == maxTableRows {
			break
		}
		bucket, _ := item.(map[string]any)
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td class="text-center">%s</td><td class="text-center">%s</td></tr>`,
			html.EscapeString(docStr(bucket, "name")),
			html.EscapeString(docStr(bucket, "creation_date")),
			checkMark(docBool(bucket, "encrypted")),
			checkMark(docStr(bucket, "versioning") == "Enabled"))
	}
	return b.String()
}

func rdsRows(instances []any) string {
	if len(instances) == 0 {
		return noDataRow(5, "RDS 인스턴스가 없습니다.")
	}
	var b strings.Builder
	for i, item := range instances {
		if i == maxTableRows {
			break
		}
		db, _ := item.(map[string]any)
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s %s</td><td>%s</td><td class="text-center">%s</td><td class="text-center">%s</td></tr>`,
			html.EscapeString(docStr(db, "identifier")),
			html.EscapeString(docStr(db, "engine")),
			html.EscapeString(docStr(db, "engine_version")),
			html.EscapeString(docStr(db, "instance_class")),
			checkMark(docBool(db, "multi_az")),
			checkMark(docBool(db, "encrypted")))
	}
	return b.String()
}

func lambdaRows(functions []any) string {
	if len(functions) == 0 {
		return noDataRow(4, "Lambda 함수가 없습니다.")
	}
	var b strings.Builder
	for i, item := range functions {
		if i == maxTableRows {
			break
		}
		fn, _ := item.(map[string]any)
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%d</td><td>%d</td></tr>`,
			html.EscapeString(docStr(fn, "function_name")),
			html.EscapeString(docStr(fn, "runtime")),
			docInt(fn, "memory_mb"),
			docInt(fn, "timeout"))
	}
	return b.String()
}

func iamUserRows(users []any) string {
	if len(users) == 0 {
		return noDataRow(4, "IAM 사용자가 없습니다.")
	}
	var b strings.Builder
	for i, item := range users {
		if i == maxTableRows {
			break
		}
		user, _ := item.(map[string]any)
		lastUsed := docStr(user, "password_last_used")
		if lastUsed == "" {
			lastUsed = "N/A"
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td class="text-center">%s</td><td>%s</td></tr>`,
			html.EscapeString(docStr(user, "user_name")),
			html.EscapeString(docStr(user, "create_date")),
			checkMark(docBool(user, "mfa_enabled")),
			html.EscapeString(lastUsed))
	}
	return b.String()
}

func sgRiskyRows(details []any) string {
	if len(details) == 0 {
		return `<tr><td colspan="5" class="text-center text-success">위험한 보안 그룹 규칙이 없습니다.</td></tr>`
	}
	var b strings.Builder
	for i, item := range details {
		if i == maxTableRows {
			break
		}
		rule, _ := item.(map[string]any)
		badge := "warning"
		if docStr(rule, "severity") == "high" {
			badge = "critical"
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%d</td><td class="text-danger">%s</td><td><span class="badge badge-%s">%s</span></td></tr>`,
			html.EscapeString(docStr(rule, "group_id")),
			html.EscapeString(docStr(rule, "group_name")),
			docInt(rule, "port"),
			html.EscapeString(docStr(rule, "cidr")),
			badge,
			html.EscapeString(docStr(rule, "severity")))
	}
	return b.String()
}

func taRows(ta map[string]any) string {
	if !docBool(ta, "available") {
		return noDataRow(4, "Trusted Advisor 데이터를 사용할 수 없습니다. (Business/Enterprise 플랜 필요)")
	}
	checks := docSeq(ta, "checks")
	if len(checks) == 0 {
		return `<tr><td colspan="4" class="text-center text-success">주의가 필요한 항목이 없습니다.</td></tr>`
	}
	var b strings.Builder
	for i, item := range checks {
		if i == maxTableRows {
			break
		}
		check, _ := item.(map[string]any)
		badge := "warning"
		if docStr(check, "status") == "error" {
			badge = "critical"
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td><span class="badge badge-%s">%s</span></td><td>%d</td></tr>`,
			html.EscapeString(docStr(check, "category")),
			html.EscapeString(docStr(check, "name")),
			badge,
			html.EscapeString(strings.ToUpper(docStr(check, "status"))),
			docInt(check, "flagged_resources"))
	}
	return b.String()
}

// eventDescriptions are the fixed Korean summaries per monitored event type.
var eventDescriptions = map[string]string{
	"DeleteBucket":                  "S3 버킷 삭제",
	"DeleteDBInstance":              "RDS 인스턴스 삭제",
	"TerminateInstances":            "EC2 인스턴스 종료",
	"DeleteUser":                    "IAM 사용자 삭제",
	"DeleteAccessKey":               "IAM 액세스 키 삭제",
	"PutBucketPolicy":               "S3 버킷 정책 변경",
	"AuthorizeSecurityGroupIngress": "보안 그룹 인바운드 규칙 추가",
	"CreateAccessKey":               "IAM 액세스 키 생성",
	"PutUserPolicy":                 "IAM 인라인 정책 설정",
	"AttachUserPolicy":              "IAM 정책 연결",
}

func cloudTrailRows(events []any) string {
	var b strings.Builder
	wrote := false
	for _, item := range events {
		ev, _ := item.(map[string]any)
		count := docInt(ev, "count")
		if count == 0 {
			continue
		}
		wrote = true
		name := docStr(ev, "event_name")
		badge := "warning"
		if docStr(ev, "severity") == "critical" {
			badge = "critical"
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td><span class="badge badge-%s">%s</span></td><td>%d</td><td>%s</td></tr>`,
			html.EscapeString(name),
			badge,
			html.EscapeString(strings.ToUpper(docStr(ev, "severity"))),
			count,
			html.EscapeString(eventDescriptions[name]))
	}
	if !wrote {
		return noDataRow(4, "분석 기간 중 중요 이벤트가 없습니다.")
	}
	return b.String()
}

func cloudWatchRows(alarms []any) string {
	if len(alarms) == 0 {
		return noDataRow(4, "CloudWatch 알람이 없습니다.")
	}
	var b strings.Builder
	for i, item := range alarms {
		if i == maxTableRows {
			break
		}
		alarm, _ := item.(map[string]any)
		badge := map[string]string{
			"OK":                "success",
			"ALARM":             "critical",
			"INSUFFICIENT_DATA": "warning",
		}[docStr(alarm, "state")]
		if badge == "" {
			badge = "secondary"
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td><span class="badge badge-%s">%s</span></td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(docStr(alarm, "name")),
			badge,
			html.EscapeString(docStr(alarm, "state")),
			html.EscapeString(docStr(alarm, "metric_name")),
			html.EscapeString(docStr(alarm, "namespace")))
	}
	return b.String()
}

func ebsUnencryptedSection(ebs map[string]any) string {
	unencrypted := docInt(ebs, "unencrypted")
	if unencrypted == 0 {
		return `<p class="text-success">모든 EBS 볼륨이 암호화되어 있습니다.</p>`
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="alert-box"><h4>암호화 미설정 볼륨 %d개</h4><ul>`, unencrypted)
	for _, id := range docSeq(ebs, "unencrypted_volumes") {
		if s, ok := id.(string); ok {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(s))
		}
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}

func recommendationsSection(recs []any) string {
	if len(recs) == 0 {
		return `<p class="text-success">추가 권장 조치가 없습니다.</p>`
	}
	var b strings.Builder
	for _, item := range recs {
		rec, _ := item.(map[string]any)
		box := "alert-box"
		if docStr(rec, "priority") == "critical" {
			box = "alert-box critical"
		}
		fmt.Fprintf(&b, `<div class="%s"><h4>[%s] %s</h4><p>%s</p>`,
			box,
			html.EscapeString(strings.ToUpper(docStr(rec, "priority"))),
			html.EscapeString(docStr(rec, "title")),
			html.EscapeString(docStr(rec, "description")))
		affected := docSeq(rec, "affected_resources")
		if len(affected) > 0 {
			b.WriteString("<ul>")
			for _, res := range affected {
				if s, ok := res.(string); ok {
					fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(s))
				}
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</div>")
	}
	return b.String()
}

func checkMark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}
