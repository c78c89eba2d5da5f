// Package aws — high-level read-only AWS operations used by the inventory
// collector. All list operations leverage the ResponseCache for deduplication.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudtrailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/support"
)

// ---- EC2 operations ----

type EC2InstanceSummary struct {
	InstanceID       string    `json:"instance_id"`
	InstanceType     string    `json:"instance_type"`
	State            string    `json:"state"`
	AvailabilityZone string    `json:"availability_zone"`
	Name             string    `json:"name"`
	PrivateIP        string    `json:"private_ip"`
	PublicIP         string    `json:"public_ip"`
	LaunchTime       time.Time `json:"launch_time"`
}

func (f *ClientFactory) ListEC2Instances(ctx context.Context, creds SessionCredentials) ([]EC2InstanceSummary, error) {
	cacheKey := "ec2:instances:" + creds.AccessKeyID + ":" + creds.Region
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]EC2InstanceSummary), nil
	}

	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "DescribeInstances", nil)

	client := f.EC2Client(creds)
	var instances []EC2InstanceSummary
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, i := range r.Instances {
				name := ""
				for _, t := range i.Tags {
					if aws.ToString(t.Key) == "Name" {
						name = aws.ToString(t.Value)
					}
				}
				state := ""
				if i.State != nil {
					state = string(i.State.Name)
				}
				az := ""
				if i.Placement != nil {
					az = aws.ToString(i.Placement.AvailabilityZone)
				}
				inst := EC2InstanceSummary{
					InstanceID:       aws.ToString(i.InstanceId),
					InstanceType:     string(i.InstanceType),
					State:            state,
					AvailabilityZone: az,
					Name:             name,
					PrivateIP:        aws.ToString(i.PrivateIpAddress),
					PublicIP:         aws.ToString(i.PublicIpAddress),
				}
				if i.LaunchTime != nil {
					inst.LaunchTime = *i.LaunchTime
				}
				instances = append(instances, inst)
			}
		}
		f.rateLimiter.Wait("ec2")
	}
	f.cache.Put(cacheKey, instances)
	return instances, nil
}

type EBSVolumeSummary struct {
	VolumeID         string `json:"volume_id"`
	SizeGiB          int32  `json:"size_gib"`
	State            string `json:"state"`
	AvailabilityZone string `json:"availability_zone"`
	Encrypted        bool   `json:"encrypted"`
}

func (f *ClientFactory) ListEBSVolumes(ctx context.Context, creds SessionCredentials) ([]EBSVolumeSummary, error) {
	cacheKey := "ec2:volumes:" + creds.AccessKeyID + ":" + creds.Region
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]EBSVolumeSummary), nil
	}

	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "DescribeVolumes", nil)

	client := f.EC2Client(creds)
	var volumes []EBSVolumeSummary
	paginator := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeVolumes: %w", err)
		}
		for _, v := range page.Volumes {
			volumes = append(volumes, EBSVolumeSummary{
				VolumeID:         aws.ToString(v.VolumeId),
				SizeGiB:          aws.ToInt32(v.Size),
				State:            string(v.State),
				AvailabilityZone: aws.ToString(v.AvailabilityZone),
				Encrypted:        aws.ToBool(v.Encrypted),
			})
		}
		f.rateLimiter.Wait("ec2")
	}
	f.cache.Put(cacheKey, volumes)
	return volumes, nil
}

type SGRule struct {
	Protocol string   `json:"protocol"`
	FromPort int32    `json:"from_port"`
	ToPort   int32    `json:"to_port"`
	CIDRs    []string `json:"cidrs"`
}

type SecurityGroupSummary struct {
	GroupID     string   `json:"group_id"`
	GroupName   string   `json:"group_name"`
	Description string   `json:"description"`
	VPCID       string   `json:"vpc_id"`
	Ingress     []SGRule `json:"ingress"`
}

func (f *ClientFactory) ListSecurityGroups(ctx context.Context, creds SessionCredentials) ([]SecurityGroupSummary, error) {
	cacheKey := "ec2:security-groups:" + creds.AccessKeyID + ":" + creds.Region
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]SecurityGroupSummary), nil
	}

	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "DescribeSecurityGroups", nil)

	client := f.EC2Client(creds)
	var groups []SecurityGroupSummary
	paginator := ec2.NewDescribeSecurityGroupsPaginator(client, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeSecurityGroups: %w", err)
		}
		for _, g := range page.SecurityGroups {
			sg := SecurityGroupSummary{
				GroupID:     aws.ToString(g.GroupId),
				GroupName:   aws.ToString(g.GroupName),
				Description: aws.ToString(g.Description),
				VPCID:       aws.ToString(g.VpcId),
			}
			for _, perm := range g.IpPermissions {
				sg.Ingress = append(sg.Ingress, sgRuleFromPermission(perm))
			}
			groups = append(groups, sg)
		}
		f.rateLimiter.Wait("ec2")
	}
	f.cache.Put(cacheKey, groups)
	return groups, nil
}

func sgRuleFromPermission(perm ec2types.IpPermission) SGRule {
	rule := SGRule{
		Protocol: aws.ToString(perm.IpProtocol),
		FromPort: aws.ToInt32(perm.FromPort),
		ToPort:   aws.ToInt32(perm.ToPort),
	}
	for _, r := range perm.IpRanges {
		rule.CIDRs = append(rule.CIDRs, aws.ToString(r.CidrIp))
	}
	return rule
}

// ---- S3 operations ----

type S3BucketAudit struct {
	Name          string    `json:"name"`
	CreationDate  time.Time `json:"creation_date"`
	Encrypted     bool      `json:"encrypted"`
	SSEAlgorithm  string    `json:"sse_algorithm"`
	Versioning    string    `json:"versioning"`
	PublicBlocked bool      `json:"public_blocked"`
	ProbeFailed   bool      `json:"probe_failed"`
}

// ListS3BucketsWithEncryption lists every bucket and probes each one for
// server-side encryption, versioning, and a public access block. A bucket
// whose encryption config is missing counts as unencrypted, and a missing
// public-access-block counts as public-capable. A probe that fails outright
// (cross-region denial and the like) is flagged so callers can exclude it
// from rates.
func (f *ClientFactory) ListS3BucketsWithEncryption(ctx context.Context, creds SessionCredentials) ([]S3BucketAudit, error) {
	cacheKey := "s3:bucket-audit:" + creds.AccessKeyID
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]S3BucketAudit), nil
	}

	f.rateLimiter.Wait("s3")
	f.logAPICall("s3", "ListBuckets", nil)

	client := f.S3Client(creds)
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("ListBuckets: %w", err)
	}

	var buckets []S3BucketAudit
	for _, b := range out.Buckets {
		audit := S3BucketAudit{Name: aws.ToString(b.Name)}
		if b.CreationDate != nil {
			audit.CreationDate = *b.CreationDate
		}

		f.rateLimiter.Wait("s3")
		enc, encErr := client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: b.Name})
		if encErr == nil && enc.ServerSideEncryptionConfiguration != nil {
			for _, rule := range enc.ServerSideEncryptionConfiguration.Rules {
				if rule.ApplyServerSideEncryptionByDefault != nil {
					audit.Encrypted = true
					audit.SSEAlgorithm = string(rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm)
				}
			}
		}
		// Missing encryption config surfaces as an error from the API; any
		// such bucket is simply unencrypted, not a probe failure.

		f.rateLimiter.Wait("s3")
		ver, verErr := client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: b.Name})
		if verErr == nil {
			audit.Versioning = string(ver.Status)
			if audit.Versioning == "" {
				audit.Versioning = "Disabled"
			}
		} else if encErr != nil {
			audit.ProbeFailed = true
		}

		f.rateLimiter.Wait("s3")
		pab, pabErr := client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: b.Name})
		if pabErr == nil && pab.PublicAccessBlockConfiguration != nil {
			cfg := pab.PublicAccessBlockConfiguration
			audit.PublicBlocked = aws.ToBool(cfg.BlockPublicAcls) &&
				aws.ToBool(cfg.BlockPublicPolicy) &&
				aws.ToBool(cfg.IgnorePublicAcls) &&
				aws.ToBool(cfg.RestrictPublicBuckets)
		}

		buckets = append(buckets, audit)
	}
	f.cache.Put(cacheKey, buckets)
	return buckets, nil
}

// ---- Lambda operations ----

type LambdaFunctionSummary struct {
	FunctionName string `json:"function_name"`
	Runtime      string `json:"runtime"`
	MemoryMB     int32  `json:"memory_mb"`
	Timeout      int32  `json:"timeout"`
	LastModified string `json:"last_modified"`
}

func (f *ClientFactory) ListLambdaFunctions(ctx context.Context, creds SessionCredentials) ([]LambdaFunctionSummary, error) {
	cacheKey := "lambda:functions:" + creds.AccessKeyID + ":" + creds.Region
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]LambdaFunctionSummary), nil
	}

	f.rateLimiter.Wait("lambda")
	f.logAPICall("lambda", "ListFunctions", nil)

	client := f.LambdaClient(creds)
	var functions []LambdaFunctionSummary
	paginator := lambda.NewListFunctionsPaginator(client, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListFunctions: %w", err)
		}
		for _, fn := range page.Functions {
			functions = append(functions, LambdaFunctionSummary{
				FunctionName: aws.ToString(fn.FunctionName),
				Runtime:      string(fn.Runtime),
				MemoryMB:     aws.ToInt32(fn.MemorySize),
				Timeout:      aws.ToInt32(fn.Timeout),
				LastModified: aws.ToString(fn.LastModified),
			})
		}
		f.rateLimiter.Wait("lambda")
	}
	f.cache.Put(cacheKey, functions)
	return functions, nil
}

// ---- RDS operations ----

type RDSInstanceSummary struct {
	Identifier    string `json:"identifier"`
	Engine        string `json:"engine"`
	EngineVersion string `json:"engine_version"`
	InstanceClass string `json:"instance_class"`
	Status        string `json:"status"`
	Encrypted     bool   `json:"encrypted"`
	MultiAZ       bool   `json:"multi_az"`
}

func (f *ClientFactory) ListRDSInstances(ctx context.Context, creds SessionCredentials) ([]RDSInstanceSummary, error) {
	cacheKey := "rds:instances:" + creds.AccessKeyID + ":" + creds.Region
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]RDSInstanceSummary), nil
	}

	f.rateLimiter.Wait("rds")
	f.logAPICall("rds", "DescribeDBInstances", nil)

	client := f.RDSClient(creds)
	var instances []RDSInstanceSummary
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeDBInstances: %w", err)
		}
		for _, db := range page.DBInstances {
			instances = append(instances, RDSInstanceSummary{
				Identifier:    aws.ToString(db.DBInstanceIdentifier),
				Engine:        aws.ToString(db.Engine),
				EngineVersion: aws.ToString(db.EngineVersion),
				InstanceClass: aws.ToString(db.DBInstanceClass),
				Status:        aws.ToString(db.DBInstanceStatus),
				Encrypted:     aws.ToBool(db.StorageEncrypted),
				MultiAZ:       aws.ToBool(db.MultiAZ),
			})
		}
		f.rateLimiter.Wait("rds")
	}
	f.cache.Put(cacheKey, instances)
	return instances, nil
}

// ---- IAM operations ----

type IAMUserAudit struct {
	UserName         string     `json:"user_name"`
	ARN              string     `json:"arn"`
	CreateDate       time.Time  `json:"create_date"`
	PasswordLastUsed *time.Time `json:"password_last_used,omitempty"`
	MFAEnabled       bool       `json:"mfa_enabled"`
	AccessKeyCount   int        `json:"access_key_count"`
}

// ListIAMUsersWithMFA lists every user and checks each one for registered
// MFA devices and active access keys.
func (f *ClientFactory) ListIAMUsersWithMFA(ctx context.Context, creds SessionCredentials) ([]IAMUserAudit, error) {
	cacheKey := "iam:user-audit:" + creds.AccessKeyID
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]IAMUserAudit), nil
	}

	f.rateLimiter.Wait("iam")
	f.logAPICall("iam", "ListUsers", nil)

	client := f.IAMClient(creds)
	var users []IAMUserAudit
	paginator := iam.NewListUsersPaginator(client, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListUsers: %w", err)
		}
		for _, u := range page.Users {
			audit := IAMUserAudit{
				UserName:         aws.ToString(u.UserName),
				ARN:              aws.ToString(u.Arn),
				PasswordLastUsed: u.PasswordLastUsed,
			}
			if u.CreateDate != nil {
				audit.CreateDate = *u.CreateDate
			}

			f.rateLimiter.Wait("iam")
			mfa, mfaErr := client.ListMFADevices(ctx, &iam.ListMFADevicesInput{UserName: u.UserName})
			if mfaErr == nil {
				audit.MFAEnabled = len(mfa.MFADevices) > 0
			}

			f.rateLimiter.Wait("iam")
			keys, keyErr := client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{UserName: u.UserName})
			if keyErr == nil {
				audit.AccessKeyCount = len(keys.AccessKeyMetadata)
			}

			users = append(users, audit)
		}
		f.rateLimiter.Wait("iam")
	}
	f.cache.Put(cacheKey, users)
	return users, nil
}

// ---- KMS / CloudWatch Logs census ----

// CountKMSKeys returns the number of customer-visible KMS keys.
func (f *ClientFactory) CountKMSKeys(ctx context.Context, creds SessionCredentials) (int, error) {
	f.rateLimiter.Wait("kms")
	f.logAPICall("kms", "ListKeys", nil)

	client := f.KMSClient(creds)
	count := 0
	paginator := kms.NewListKeysPaginator(client, &kms.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("ListKeys: %w", err)
		}
		count += len(page.Keys)
		f.rateLimiter.Wait("kms")
	}
	return count, nil
}

// CountLogGroups returns the number of CloudWatch Logs log groups.
func (f *ClientFactory) CountLogGroups(ctx context.Context, creds SessionCredentials) (int, error) {
	f.rateLimiter.Wait("logs")
	f.logAPICall("logs", "DescribeLogGroups", nil)

	client := f.CloudWatchLogsClient(creds)
	count := 0
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(client, &cloudwatchlogs.DescribeLogGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("DescribeLogGroups: %w", err)
		}
		count += len(page.LogGroups)
		f.rateLimiter.Wait("logs")
	}
	return count, nil
}

// ---- CloudWatch operations ----

type AlarmSummary struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	MetricName string    `json:"metric_name"`
	Namespace  string    `json:"namespace"`
	Reason     string    `json:"reason"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (f *ClientFactory) ListAlarms(ctx context.Context, creds SessionCredentials) ([]AlarmSummary, error) {
	cacheKey := "cloudwatch:alarms:" + creds.AccessKeyID + ":" + creds.Region
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]AlarmSummary), nil
	}

	f.rateLimiter.Wait("cloudwatch")
	f.logAPICall("cloudwatch", "DescribeAlarms", nil)

	client := f.CloudWatchClient(creds)
	var alarms []AlarmSummary
	paginator := cloudwatch.NewDescribeAlarmsPaginator(client, &cloudwatch.DescribeAlarmsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeAlarms: %w", err)
		}
		for _, a := range page.MetricAlarms {
			alarm := AlarmSummary{
				Name:       aws.ToString(a.AlarmName),
				State:      string(a.StateValue),
				MetricName: aws.ToString(a.MetricName),
				Namespace:  aws.ToString(a.Namespace),
				Reason:     aws.ToString(a.StateReason),
			}
			if a.StateUpdatedTimestamp != nil {
				alarm.UpdatedAt = *a.StateUpdatedTimestamp
			}
			alarms = append(alarms, alarm)
		}
		f.rateLimiter.Wait("cloudwatch")
	}
	f.cache.Put(cacheKey, alarms)
	return alarms, nil
}

// ---- CloudTrail operations ----

type TrailEvent struct {
	EventID   string    `json:"event_id"`
	EventName string    `json:"event_name"`
	EventTime time.Time `json:"event_time"`
	Username  string    `json:"username"`
	Resources []string  `json:"resources"`
}

// LookupEventsByName fetches management events matching a single event name
// within [start, end]. MaxResults is capped at 50 per the lookup API.
func (f *ClientFactory) LookupEventsByName(ctx context.Context, creds SessionCredentials, eventName string, start, end time.Time) ([]TrailEvent, error) {
	f.rateLimiter.Wait("cloudtrail")
	f.logAPICall("cloudtrail", "LookupEvents", nil)

	client := f.CloudTrailClient(creds)
	out, err := client.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
		LookupAttributes: []cloudtrailtypes.LookupAttribute{{
			AttributeKey:   cloudtrailtypes.LookupAttributeKeyEventName,
			AttributeValue: &eventName,
		}},
		StartTime:  &start,
		EndTime:    &end,
		MaxResults: aws.Int32(50),
	})
	if err != nil {
		return nil, fmt.Errorf("LookupEvents(%s): %w", eventName, err)
	}

	var events []TrailEvent
	for _, e := range out.Events {
		ev := TrailEvent{
			EventID:   aws.ToString(e.EventId),
			EventName: aws.ToString(e.EventName),
			Username:  aws.ToString(e.Username),
		}
		if e.EventTime != nil {
			ev.EventTime = *e.EventTime
		}
		for _, r := range e.Resources {
			ev.Resources = append(ev.Resources, aws.ToString(r.ResourceName))
		}
		events = append(events, ev)
	}
	return events, nil
}

// ---- Trusted Advisor operations ----

type TrustedAdvisorCheck struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	Status           string `json:"status"`
	FlaggedResources int    `json:"flagged_resources"`
}

// ListTrustedAdvisorFindings fetches every Trusted Advisor check result and
// keeps checks in warning or error status with at least one flagged resource.
// Accounts without a Support plan get a SubscriptionRequiredException; the
// caller treats that as "not available" rather than a failure.
func (f *ClientFactory) ListTrustedAdvisorFindings(ctx context.Context, creds SessionCredentials, region string) ([]TrustedAdvisorCheck, error) {
	f.rateLimiter.Wait("support")
	f.logAPICall("support", "DescribeTrustedAdvisorChecks", nil)

	client := f.SupportClient(creds, region)
	lang := "en"
	checks, err := client.DescribeTrustedAdvisorChecks(ctx, &support.DescribeTrustedAdvisorChecksInput{
		Language: &lang,
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeTrustedAdvisorChecks: %w", err)
	}

	var findings []TrustedAdvisorCheck
	for _, check := range checks.Checks {
		f.rateLimiter.Wait("support")
		result, resErr := client.DescribeTrustedAdvisorCheckResult(ctx, &support.DescribeTrustedAdvisorCheckResultInput{
			CheckId:  check.Id,
			Language: &lang,
		})
		if resErr != nil || result.Result == nil {
			continue
		}

		status := aws.ToString(result.Result.Status)
		if status != "warning" && status != "error" {
			continue
		}

		flagged := 0
		if result.Result.ResourcesSummary != nil {
			flagged = int(result.Result.ResourcesSummary.ResourcesFlagged)
		}
		if flagged == 0 {
			continue
		}

		findings = append(findings, TrustedAdvisorCheck{
			Name:             aws.ToString(check.Name),
			Category:         aws.ToString(check.Category),
			Status:           status,
			FlaggedResources: flagged,
		})
	}
	return findings, nil
}
