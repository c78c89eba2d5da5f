package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/saltware-cloud/opsassistant/internal/inventory"
)

func testDocument() inventory.Document {
	return inventory.Document{
		"metadata": map[string]any{
			"account_id":   "123456789012",
			"region":       "ap-northeast-2",
			"period_start": "2024-08-01",
			"period_end":   "2024-08-31",
			"generated_at": "2024-09-02T10:00:00Z",
		},
		"resources": map[string]any{
			"ec2": map[string]any{
				"total": 2, "running": 1, "stopped": 1,
				"instances": []any{
					map[string]any{"instance_id": "i-0abc", "name": "web", "instance_type": "t3.micro", "state": "running", "launch_time": "2024-01-01T00:00:00Z"},
					map[string]any{"instance_id": "i-0def", "name": "batch", "instance_type": "t3.small", "state": "stopped", "launch_time": "2024-02-01T00:00:00Z"},
				},
			},
			"s3": map[string]any{
				"total": 1, "encrypted": 1, "unencrypted": 0, "encrypted_rate": 1.0,
				"buckets": []any{
					map[string]any{"name": "logs", "creation_date": "2023-01-01T00:00:00Z", "encrypted": true, "versioning": "Enabled", "public_blocked": true},
				},
			},
			"lambda": map[string]any{"total": 0, "functions": []any{}, "runtimes": map[string]any{}},
			"rds":    map[string]any{"total": 0, "multi_az": 0, "encrypted": 0, "instances": []any{}},
		},
		"iam_security": map[string]any{
			"users": map[string]any{
				"total": 3, "mfa_enabled": 1, "mfa_rate": 1.0 / 3.0,
				"details": []any{
					map[string]any{"user_name": "alice", "mfa_enabled": true, "create_date": "2023-01-01T00:00:00Z"},
					map[string]any{"user_name": "bob", "mfa_enabled": false, "create_date": "2023-02-01T00:00:00Z"},
					map[string]any{"user_name": "carol", "mfa_enabled": false, "create_date": "2023-03-01T00:00:00Z"},
				},
			},
			"issues": []any{},
		},
		"security_groups": map[string]any{
			"total": 4, "risky": 3,
			"details": []any{
				map[string]any{"group_id": "sg-1", "group_name": "ssh", "port": 22, "cidr": "0.0.0.0/0", "severity": "high"},
				map[string]any{"group_id": "sg-2", "group_name": "rdp", "port": 3389, "cidr": "0.0.0.0/0", "severity": "high"},
				map[string]any{"group_id": "sg-3", "group_name": "web", "port": 443, "cidr": "0.0.0.0/0", "severity": "medium"},
			},
		},
		"encryption": map[string]any{
			"ebs": map[string]any{"total": 5, "encrypted": 3, "unencrypted": 2, "unencrypted_volumes": []any{"vol-1", "vol-2"}, "encrypted_rate": 0.6},
			"s3":  map[string]any{"total": 1, "encrypted": 1, "encrypted_rate": 1.0},
			"rds": map[string]any{"total": 0, "encrypted": 0, "encrypted_rate": 0.0},
		},
		"trusted_advisor": map[string]any{"available": false, "checks": []any{}},
		"cloudtrail_events": map[string]any{
			"summary": map[string]any{"period_days": 31, "total_critical_events": 2, "monitored_event_types": 10},
			"critical_events": []any{
				map[string]any{"event_name": "TerminateInstances", "severity": "critical", "count": 2, "events": []any{}},
				map[string]any{"event_name": "CreateAccessKey", "severity": "high", "count": 0, "events": []any{}},
			},
		},
		"cloudwatch": map[string]any{
			"summary": map[string]any{"total": 1, "in_alarm": 1, "ok": 0, "insufficient_data": 0},
			"alarms": []any{
				map[string]any{"name": "cpu-high", "state": "ALARM", "metric_name": "CPUUtilization", "namespace": "AWS/EC2"},
			},
		},
		"recommendations": []any{
			map[string]any{"priority": "critical", "title": "MFA 미설정 IAM 사용자 조치", "description": "MFA를 활성화하세요.", "affected_resources": []any{"bob", "carol"}},
		},
	}
}

func TestRenderBindsAllPlaceholders(t *testing.T) {
	html, err := NewRenderer().Render(testDocument())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"123456789012",
		"2024-08-01",
		"2024-08-31",
		"i-0abc",
		"cpu-high",
		"TerminateInstances",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
	if got := placeholderRe.FindString(html); got != "" {
		t.Errorf("unbound placeholder survived: %s", got)
	}
}

func TestRenderUnboundPlaceholderFails(t *testing.T) {
	r := NewRendererWithTemplate("<html>{account_id} {never_bound}</html>")
	_, err := r.Render(testDocument())
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("err = %v, want ErrInvalidTemplate", err)
	}
	if !strings.Contains(err.Error(), "never_bound") {
		t.Errorf("error should name the placeholder: %v", err)
	}
}

func TestComplianceClass(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{0.0, "critical"},
		{0.49, "critical"},
		{0.50, "warning"},
		{0.79, "warning"},
		{0.80, "ok"},
		{1.0, "ok"},
	}
	for _, tc := range cases {
		if got := complianceClass(tc.rate); got != tc.want {
			t.Errorf("complianceClass(%v) = %q, want %q", tc.rate, got, tc.want)
		}
	}
}

func TestFormatRateOneDecimal(t *testing.T) {
	if got := formatRate(1.0 / 3.0); got != "33.3" {
		t.Errorf("formatRate = %q, want 33.3", got)
	}
	if got := formatRate(0); got != "0.0" {
		t.Errorf("formatRate(0) = %q, want 0.0", got)
	}
}

func TestEmptySequencesRenderNoDataRows(t *testing.T) {
	cases := []struct {
		name string
		got  string
	}{
		{"ec2", ec2Rows(nil)},
		{"s3", s3Rows(nil)},
		{"rds", rdsRows(nil)},
		{"lambda", lambdaRows(nil)},
		{"iam", iamUserRows(nil)},
		{"cloudwatch", cloudWatchRows(nil)},
		{"cloudtrail", cloudTrailRows(nil)},
	}
	for _, tc := range cases {
		if count := strings.Count(tc.got, "<tr>"); count != 1 {
			t.Errorf("%s empty fragment has %d rows, want single no-data row", tc.name, count)
		}
	}
	if !strings.Contains(sgRiskyRows(nil), "text-success") {
		t.Errorf("empty risky SG fragment should be the all-clear row")
	}
}

func TestCloudTrailRowsSkipZeroCounts(t *testing.T) {
	events := []any{
		map[string]any{"event_name": "DeleteUser", "severity": "critical", "count": 1, "events": []any{}},
		map[string]any{"event_name": "CreateAccessKey", "severity": "high", "count": 0, "events": []any{}},
	}
	rows := cloudTrailRows(events)
	if !strings.Contains(rows, "DeleteUser") {
		t.Errorf("rows missing non-zero event")
	}
	if strings.Contains(rows, "CreateAccessKey") {
		t.Errorf("zero-count event should not surface in the table")
	}
}

func TestCriticalIssueAggregation(t *testing.T) {
	doc := testDocument()
	issues := criticalIssues(doc)

	// One MFA entry, port 22 and 3389 entries (443 dropped), one EBS entry.
	if len(issues) != 4 {
		t.Fatalf("issues = %d, want 4: %+v", len(issues), issues)
	}
	if !strings.Contains(issues[0].Text, "MFA 미설정 사용자 2명") {
		t.Errorf("mfa issue = %q", issues[0].Text)
	}
	if len(issues[0].Names) != 2 || issues[0].Names[0] != "bob" {
		t.Errorf("mfa names = %v", issues[0].Names)
	}
	if !strings.Contains(issues[1].Text, "포트 22") || !strings.Contains(issues[2].Text, "포트 3389") {
		t.Errorf("port issues = %q, %q", issues[1].Text, issues[2].Text)
	}
	if !strings.Contains(issues[3].Text, "EBS 볼륨 2개") {
		t.Errorf("ebs issue = %q", issues[3].Text)
	}
}

func TestCriticalIssueMFANameCap(t *testing.T) {
	details := []any{}
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"} {
		details = append(details, map[string]any{"user_name": name, "mfa_enabled": false})
	}
	doc := inventory.Document{
		"iam_security": map[string]any{
			"users": map[string]any{"total": 7, "mfa_enabled": 0, "details": details},
		},
	}
	issues := criticalIssues(doc)
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}
	if !strings.Contains(issues[0].Text, "7명") {
		t.Errorf("issue should carry full count: %q", issues[0].Text)
	}
	if len(issues[0].Names) != 5 {
		t.Errorf("names = %d, want cap of 5", len(issues[0].Names))
	}
}

func TestRenderSummaryText(t *testing.T) {
	text := RenderSummaryText(testDocument())
	for _, want := range []string{"123456789012", "2024-08-01", "EC2 인스턴스 2개", "즉시 조치 필요"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}
