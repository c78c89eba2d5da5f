package inventory

import awsx "github.com/saltware-cloud/opsassistant/internal/aws"

// maxAffected caps how many resource names a recommendation lists.
const maxAffected = 5

// buildRecommendations derives the fixed rule set from the collected
// inventory. Rules are ordered by priority; each lists at most
// maxAffected resources.
func buildRecommendations(users []awsx.IAMUserAudit, groups []awsx.SecurityGroupSummary, volumes []awsx.EBSVolumeSummary, buckets []awsx.S3BucketAudit) []any {
	recs := []any{}

	var noMFA []any
	for _, u := range users {
		if !u.MFAEnabled && len(noMFA) < maxAffected {
			noMFA = append(noMFA, u.UserName)
		}
	}
	if len(noMFA) > 0 {
		recs = append(recs, map[string]any{
			"priority":           "critical",
			"category":           "iam",
			"title":              "MFA 미설정 IAM 사용자 조치",
			"description":        "콘솔 접근이 가능한 사용자에게 MFA를 활성화하세요.",
			"affected_resources": noMFA,
		})
	}

	var openGroups []any
	seen := map[string]bool{}
	for _, g := range groups {
		for _, ingress := range g.Ingress {
			for _, cidr := range ingress.CIDRs {
				if cidr == "0.0.0.0/0" && !seen[g.GroupID] {
					seen[g.GroupID] = true
					if len(openGroups) < maxAffected {
						openGroups = append(openGroups, g.GroupID)
					}
				}
			}
		}
	}
	if len(openGroups) > 0 {
		recs = append(recs, map[string]any{
			"priority":           "critical",
			"category":           "network",
			"title":              "전체 공개된 보안 그룹 규칙 제한",
			"description":        "0.0.0.0/0 인바운드 규칙을 필요한 IP 대역으로 좁히세요.",
			"affected_resources": openGroups,
		})
	}

	var plainVolumes []any
	for _, v := range volumes {
		if !v.Encrypted && len(plainVolumes) < maxAffected {
			plainVolumes = append(plainVolumes, v.VolumeID)
		}
	}
	if len(plainVolumes) > 0 {
		recs = append(recs, map[string]any{
			"priority":           "high",
			"category":           "encryption",
			"title":              "미암호화 EBS 볼륨 암호화",
			"description":        "스냅샷을 생성해 암호화된 볼륨으로 교체하세요.",
			"affected_resources": plainVolumes,
		})
	}

	var plainBuckets []any
	for _, b := range buckets {
		if !b.Encrypted && len(plainBuckets) < maxAffected {
			plainBuckets = append(plainBuckets, b.Name)
		}
	}
	if len(plainBuckets) > 0 {
		recs = append(recs, map[string]any{
			"priority":           "high",
			"category":           "encryption",
			"title":              "미암호화 S3 버킷 기본 암호화 설정",
			"description":        "버킷 기본 암호화(SSE-S3 또는 SSE-KMS)를 켜세요.",
			"affected_resources": plainBuckets,
		})
	}

	return recs
}
