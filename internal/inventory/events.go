package inventory

import (
	"context"
	"fmt"
	"time"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
)

// kst is the civil-day zone for report windows. Reporting periods are
// expressed in Korean local days regardless of the caller's host zone.
var kst = time.FixedZone("KST", 9*60*60)

// criticalEvent is one monitored CloudTrail event type.
type criticalEvent struct {
	Name     string
	Severity string
}

// criticalEvents are the management events the report tracks. Kept short
// on purpose: each entry costs one LookupEvents call per report.
var criticalEvents = []criticalEvent{
	{"DeleteBucket", "critical"},
	{"DeleteDBInstance", "critical"},
	{"TerminateInstances", "critical"},
	{"DeleteUser", "critical"},
	{"DeleteAccessKey", "critical"},
	{"PutBucketPolicy", "high"},
	{"AuthorizeSecurityGroupIngress", "high"},
	{"CreateAccessKey", "high"},
	{"PutUserPolicy", "high"},
	{"AttachUserPolicy", "high"},
}

type eventCount struct {
	criticalEvent
	Events []awsx.TrailEvent
}

// lookupBounds converts the inclusive civil-day window into UTC instants:
// 00:00:00 on the first day through 23:59:59 on the last day, both in KST.
func lookupBounds(window Window) (time.Time, time.Time) {
	s, e := window.Start, window.End
	start := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, kst).UTC()
	end := time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, 0, kst).UTC()
	return start, end
}

// collectCriticalEvents looks up each monitored event type over the window.
// Zero-count event types are still recorded so the report shows what was
// checked. A failed lookup fails the whole sub-collection.
func (c *Collector) collectCriticalEvents(ctx context.Context, creds awsx.SessionCredentials, window Window) ([]eventCount, error) {
	start, end := lookupBounds(window)
	counts := make([]eventCount, 0, len(criticalEvents))
	for _, ce := range criticalEvents {
		events, err := c.api.LookupEventsByName(ctx, creds, ce.Name, start, end)
		if err != nil {
			return nil, fmt.Errorf("LookupEventsByName %s: %w", ce.Name, err)
		}
		counts = append(counts, eventCount{criticalEvent: ce, Events: events})
	}
	return counts, nil
}

func buildCloudTrailSection(counts []eventCount, window Window) map[string]any {
	total := 0
	details := []any{}
	for _, ec := range counts {
		total += len(ec.Events)
		events := []any{}
		for _, e := range ec.Events {
			events = append(events, map[string]any{
				"event_id":   e.EventID,
				"event_time": e.EventTime,
				"username":   e.Username,
			})
		}
		details = append(details, map[string]any{
			"event_name": ec.Name,
			"severity":   ec.Severity,
			"count":      len(ec.Events),
			"events":     events,
		})
	}
	return map[string]any{
		"summary": map[string]any{
			"period_days":           window.Days(),
			"total_critical_events": total,
			"monitored_event_types": len(criticalEvents),
		},
		"critical_events": details,
	}
}
