// Package inventory collects a per-account AWS security inventory into a
// single report document. Sub-collections run in parallel and fail
// independently; the document is always produced.
package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
)

// Document is the report document: a nested mapping with a fixed top-level
// shape. Every leaf is a JSON scalar, a mapping, or an ordered sequence;
// timestamps are normalised to ISO-8601 text before the document leaves
// the collector.
type Document map[string]any

// Window is an inclusive range of civil days covered by the report.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of civil days in the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// API is the slice of the AWS operation surface the collector depends on.
// *aws.ClientFactory implements it.
type API interface {
	ListEC2Instances(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.EC2InstanceSummary, error)
	ListEBSVolumes(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.EBSVolumeSummary, error)
	ListSecurityGroups(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.SecurityGroupSummary, error)
	ListS3BucketsWithEncryption(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.S3BucketAudit, error)
	ListLambdaFunctions(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.LambdaFunctionSummary, error)
	ListRDSInstances(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.RDSInstanceSummary, error)
	ListIAMUsersWithMFA(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.IAMUserAudit, error)
	CountKMSKeys(ctx context.Context, creds awsx.SessionCredentials) (int, error)
	CountLogGroups(ctx context.Context, creds awsx.SessionCredentials) (int, error)
	ListAlarms(ctx context.Context, creds awsx.SessionCredentials) ([]awsx.AlarmSummary, error)
	LookupEventsByName(ctx context.Context, creds awsx.SessionCredentials, eventName string, start, end time.Time) ([]awsx.TrailEvent, error)
	ListTrustedAdvisorFindings(ctx context.Context, creds awsx.SessionCredentials, region string) ([]awsx.TrustedAdvisorCheck, error)
}

// Collector fans sub-collections out over the API and assembles the document.
type Collector struct {
	api      API
	taRegion string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCollector creates a collector. taRegion pins the Trusted Advisor
// endpoint (the Support API lives in us-east-1 only).
func NewCollector(api API, taRegion string, logger zerolog.Logger) *Collector {
	return &Collector{
		api:      api,
		taRegion: taRegion,
		logger:   logger,
		now:      time.Now,
	}
}

// Collect produces the full report document for one account. Failed
// sub-collections log and contribute their empty stub; Collect itself
// never fails.
func (c *Collector) Collect(ctx context.Context, accountID string, creds awsx.SessionCredentials, window Window) Document {
	doc := Document{
		"metadata": map[string]any{
			"account_id":   accountID,
			"region":       creds.Region,
			"period_start": window.Start.Format("2006-01-02"),
			"period_end":   window.End.Format("2006-01-02"),
			"generated_at": c.now(),
		},
	}

	var (
		instances []awsx.EC2InstanceSummary
		volumes   []awsx.EBSVolumeSummary
		groups    []awsx.SecurityGroupSummary
		buckets   []awsx.S3BucketAudit
		functions []awsx.LambdaFunctionSummary
		databases []awsx.RDSInstanceSummary
		users     []awsx.IAMUserAudit
		kmsKeys   int
		logGroups int
		alarms    []awsx.AlarmSummary
		taChecks  []awsx.TrustedAdvisorCheck
		trail     []eventCount

		taErr error
	)

	subs := []struct {
		name string
		run  func() error
	}{
		{"ec2", func() (err error) { instances, err = c.api.ListEC2Instances(ctx, creds); return }},
		{"ebs", func() (err error) { volumes, err = c.api.ListEBSVolumes(ctx, creds); return }},
		{"security_groups", func() (err error) { groups, err = c.api.ListSecurityGroups(ctx, creds); return }},
		{"s3", func() (err error) { buckets, err = c.api.ListS3BucketsWithEncryption(ctx, creds); return }},
		{"lambda", func() (err error) { functions, err = c.api.ListLambdaFunctions(ctx, creds); return }},
		{"rds", func() (err error) { databases, err = c.api.ListRDSInstances(ctx, creds); return }},
		{"iam", func() (err error) { users, err = c.api.ListIAMUsersWithMFA(ctx, creds); return }},
		{"kms", func() (err error) { kmsKeys, err = c.api.CountKMSKeys(ctx, creds); return }},
		{"logs", func() (err error) { logGroups, err = c.api.CountLogGroups(ctx, creds); return }},
		{"cloudwatch", func() (err error) { alarms, err = c.api.ListAlarms(ctx, creds); return }},
		{"trusted_advisor", func() error {
			var err error
			taChecks, err = c.api.ListTrustedAdvisorFindings(ctx, creds, c.taRegion)
			taErr = err
			return err
		}},
		{"cloudtrail", func() (err error) { trail, err = c.collectCriticalEvents(ctx, creds, window); return }},
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(name string, run func() error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().Str("sub_collection", name).Any("panic", r).Msg("sub-collection panicked")
				}
			}()
			if err := run(); err != nil {
				c.logger.Warn().Str("sub_collection", name).Err(err).Msg("sub-collection failed, recording empty stub")
			}
		}(sub.name, sub.run)
	}
	wg.Wait()

	doc["resources"] = map[string]any{
		"ec2":    buildEC2Section(instances),
		"s3":     buildS3Section(buckets),
		"lambda": buildLambdaSection(functions),
		"rds":    buildRDSSection(databases),
	}
	doc["iam_security"] = buildIAMSection(users)
	doc["security_groups"] = buildSecurityGroupSection(groups)
	doc["encryption"] = buildEncryptionSection(volumes, buckets, databases, kmsKeys, logGroups)
	doc["trusted_advisor"] = buildTrustedAdvisorSection(taChecks, taErr)
	doc["cloudtrail_events"] = buildCloudTrailSection(trail, window)
	doc["cloudwatch"] = buildCloudWatchSection(alarms)
	doc["recommendations"] = buildRecommendations(users, groups, volumes, buckets)

	return NormalizeTimestamps(doc).(Document)
}

// rate returns numerator/denominator clamped to [0, 1]; zero denominator
// yields 0.
func rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func buildEC2Section(instances []awsx.EC2InstanceSummary) map[string]any {
	running, stopped := 0, 0
	details := []any{}
	for _, i := range instances {
		switch i.State {
		case "running":
			running++
		case "stopped":
			stopped++
		}
		details = append(details, map[string]any{
			"instance_id":       i.InstanceID,
			"instance_type":     i.InstanceType,
			"state":             i.State,
			"availability_zone": i.AvailabilityZone,
			"name":              i.Name,
			"private_ip":        i.PrivateIP,
			"public_ip":         i.PublicIP,
			"launch_time":       i.LaunchTime,
		})
	}
	return map[string]any{
		"total":     len(instances),
		"running":   running,
		"stopped":   stopped,
		"instances": details,
	}
}

func buildS3Section(buckets []awsx.S3BucketAudit) map[string]any {
	// Buckets whose probes failed outright carry no reliable state and are
	// excluded from every count-based rate.
	encrypted, publicCapable, probed := 0, 0, 0
	details := []any{}
	for _, b := range buckets {
		if !b.ProbeFailed {
			probed++
			if b.Encrypted {
				encrypted++
			}
			if !b.PublicBlocked {
				publicCapable++
			}
		}
		details = append(details, map[string]any{
			"name":           b.Name,
			"creation_date":  b.CreationDate,
			"encrypted":      b.Encrypted,
			"sse_algorithm":  b.SSEAlgorithm,
			"versioning":     b.Versioning,
			"public_blocked": b.PublicBlocked,
			"probe_failed":   b.ProbeFailed,
		})
	}
	return map[string]any{
		"total":          len(buckets),
		"probe_failed":   len(buckets) - probed,
		"encrypted":      encrypted,
		"unencrypted":    probed - encrypted,
		"public_capable": publicCapable,
		"encrypted_rate": rate(encrypted, probed),
		"buckets":        details,
	}
}

func buildLambdaSection(functions []awsx.LambdaFunctionSummary) map[string]any {
	runtimes := map[string]any{}
	details := []any{}
	for _, fn := range functions {
		if fn.Runtime != "" {
			n, _ := runtimes[fn.Runtime].(int)
			runtimes[fn.Runtime] = n + 1
		}
		details = append(details, map[string]any{
			"function_name": fn.FunctionName,
			"runtime":       fn.Runtime,
			"memory_mb":     int(fn.MemoryMB),
			"timeout":       int(fn.Timeout),
			"last_modified": fn.LastModified,
		})
	}
	return map[string]any{
		"total":     len(functions),
		"runtimes":  runtimes,
		"functions": details,
	}
}

func buildRDSSection(databases []awsx.RDSInstanceSummary) map[string]any {
	encrypted, multiAZ := 0, 0
	details := []any{}
	for _, db := range databases {
		if db.Encrypted {
			encrypted++
		}
		if db.MultiAZ {
			multiAZ++
		}
		details = append(details, map[string]any{
			"identifier":     db.Identifier,
			"engine":         db.Engine,
			"engine_version": db.EngineVersion,
			"instance_class": db.InstanceClass,
			"status":         db.Status,
			"encrypted":      db.Encrypted,
			"multi_az":       db.MultiAZ,
		})
	}
	return map[string]any{
		"total":     len(databases),
		"encrypted": encrypted,
		"multi_az":  multiAZ,
		"instances": details,
	}
}

func buildIAMSection(users []awsx.IAMUserAudit) map[string]any {
	mfaEnabled := 0
	details := []any{}
	issues := []any{}
	for _, u := range users {
		if u.MFAEnabled {
			mfaEnabled++
		} else {
			issues = append(issues, map[string]any{
				"type":      "mfa_missing",
				"user_name": u.UserName,
				"severity":  "critical",
			})
		}
		detail := map[string]any{
			"user_name":        u.UserName,
			"arn":              u.ARN,
			"create_date":      u.CreateDate,
			"mfa_enabled":      u.MFAEnabled,
			"access_key_count": u.AccessKeyCount,
		}
		if u.PasswordLastUsed != nil {
			detail["password_last_used"] = *u.PasswordLastUsed
		}
		details = append(details, detail)
	}
	return map[string]any{
		"users": map[string]any{
			"total":       len(users),
			"mfa_enabled": mfaEnabled,
			"mfa_rate":    rate(mfaEnabled, len(users)),
			"details":     details,
		},
		"issues": issues,
	}
}

// highRiskPorts are the world-open ingress ports classified high severity.
var highRiskPorts = map[int32]bool{22: true, 3389: true, 3306: true, 5432: true}

func buildSecurityGroupSection(groups []awsx.SecurityGroupSummary) map[string]any {
	risky := 0
	details := []any{}
	for _, g := range groups {
		for _, ingress := range g.Ingress {
			worldOpen := false
			for _, cidr := range ingress.CIDRs {
				if cidr == "0.0.0.0/0" {
					worldOpen = true
				}
			}
			if !worldOpen {
				continue
			}
			risky++
			severity := "medium"
			if highRiskPorts[ingress.FromPort] {
				severity = "high"
			}
			if len(details) < 5 {
				details = append(details, map[string]any{
					"group_id":   g.GroupID,
					"group_name": g.GroupName,
					"port":       int(ingress.FromPort),
					"protocol":   ingress.Protocol,
					"cidr":       "0.0.0.0/0",
					"severity":   severity,
				})
			}
		}
	}
	return map[string]any{
		"total":   len(groups),
		"risky":   risky,
		"details": details,
	}
}

func buildEncryptionSection(volumes []awsx.EBSVolumeSummary, buckets []awsx.S3BucketAudit, databases []awsx.RDSInstanceSummary, kmsKeys, logGroups int) map[string]any {
	ebsEncrypted := 0
	unencryptedIDs := []any{}
	for _, v := range volumes {
		if v.Encrypted {
			ebsEncrypted++
		} else if len(unencryptedIDs) < 16 {
			unencryptedIDs = append(unencryptedIDs, v.VolumeID)
		}
	}

	s3Encrypted, s3Probed := 0, 0
	for _, b := range buckets {
		if b.ProbeFailed {
			continue
		}
		s3Probed++
		if b.Encrypted {
			s3Encrypted++
		}
	}

	rdsEncrypted := 0
	for _, db := range databases {
		if db.Encrypted {
			rdsEncrypted++
		}
	}

	return map[string]any{
		"ebs": map[string]any{
			"total":               len(volumes),
			"encrypted":           ebsEncrypted,
			"unencrypted":         len(volumes) - ebsEncrypted,
			"unencrypted_volumes": unencryptedIDs,
			"encrypted_rate":      rate(ebsEncrypted, len(volumes)),
		},
		"s3": map[string]any{
			"total":          len(buckets),
			"encrypted":      s3Encrypted,
			"encrypted_rate": rate(s3Encrypted, s3Probed),
		},
		"rds": map[string]any{
			"total":          len(databases),
			"encrypted":      rdsEncrypted,
			"encrypted_rate": rate(rdsEncrypted, len(databases)),
		},
		"kms": map[string]any{
			"customer_keys": kmsKeys,
		},
		"logs": map[string]any{
			"log_groups": logGroups,
		},
	}
}

func buildTrustedAdvisorSection(checks []awsx.TrustedAdvisorCheck, err error) map[string]any {
	details := []any{}
	for _, check := range checks {
		details = append(details, map[string]any{
			"name":              check.Name,
			"category":          check.Category,
			"status":            check.Status,
			"flagged_resources": check.FlaggedResources,
		})
	}
	return map[string]any{
		"available": err == nil,
		"checks":    details,
	}
}

func buildCloudWatchSection(alarms []awsx.AlarmSummary) map[string]any {
	inAlarm, ok, insufficient := 0, 0, 0
	details := []any{}
	for _, a := range alarms {
		switch a.State {
		case "ALARM":
			inAlarm++
		case "OK":
			ok++
		case "INSUFFICIENT_DATA":
			insufficient++
		}
		details = append(details, map[string]any{
			"name":        a.Name,
			"state":       a.State,
			"metric_name": a.MetricName,
			"namespace":   a.Namespace,
			"reason":      a.Reason,
			"updated_at":  a.UpdatedAt,
		})
	}
	return map[string]any{
		"summary": map[string]any{
			"total":             len(alarms),
			"in_alarm":          inAlarm,
			"ok":                ok,
			"insufficient_data": insufficient,
		},
		"alarms": details,
	}
}
