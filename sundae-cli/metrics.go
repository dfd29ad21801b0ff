package sundaecli

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
)

const metricsNamespace = "sundae-services"

// Metrics publishes service metrics to CloudWatch. The zero value is a no-op.
type Metrics struct {
	service    Service
	cloudwatch cloudwatchiface.CloudWatchAPI
}

func NewMetrics(service Service, cloudwatch cloudwatchiface.CloudWatchAPI) Metrics {
	return Metrics{
		service,
		cloudwatch,
	}
}

type MetricName string

const (
	ResponseTimeMetric       MetricName = "ResponseTime"
	ConnectionAcceptedMetric MetricName = "ConnectionAccepted"
	ConnectionClosedMetric   MetricName = "ConnectionClosed"
	ReactionRecordedMetric   MetricName = "ReactionRecorded"
	ReactionFailedMetric     MetricName = "ReactionFailed"
	MessageRelayedMetric     MetricName = "MessageRelayed"
	SlideRehydratedMetric    MetricName = "SlideRehydrated"
)

type DimensionName string

const (
	ServiceNameDimension    DimensionName = "Service"
	ServiceVersionDimension DimensionName = "Version"
	OperationNameDimension  DimensionName = "OperationName"
	SlideKeyDimension       DimensionName = "SlideKey"
	CategoryDimension       DimensionName = "Category"
	MessageKindDimension    DimensionName = "MessageKind"
)

func defaultDimensions(service Service) map[DimensionName]string {
	return map[DimensionName]string{
		ServiceNameDimension:    service.Name,
		ServiceVersionDimension: service.Version,
	}
}

func mapToDimensions(ms ...map[DimensionName]string) []*cloudwatch.Dimension {
	var dimensions []*cloudwatch.Dimension
	for _, ds := range ms {
		for k, v := range ds {
			if v == "" {
				continue
			}
			dimensions = append(dimensions, &cloudwatch.Dimension{
				Name:  aws.String(string(k)),
				Value: aws.String(v),
			})
		}
	}
	return dimensions
}

// Enabled reports whether metrics are actually published.
func (m Metrics) Enabled() bool {
	return m.cloudwatch != nil
}

func (m Metrics) put(ctx context.Context, name MetricName, unit string, value float64, dimensions []map[DimensionName]string) error {
	if m.cloudwatch == nil {
		return nil
	}
	awsDimensions := mapToDimensions(append(dimensions, defaultDimensions(m.service))...)
	_, err := m.cloudwatch.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricsNamespace),
		MetricData: []*cloudwatch.MetricDatum{
			{
				MetricName: aws.String(string(name)),
				Timestamp:  aws.Time(time.Now()),
				Unit:       aws.String(unit),
				Value:      aws.Float64(value),
				Dimensions: awsDimensions,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("couldn't publish metric %v: %w", name, err)
	}
	return nil
}

func (m Metrics) Event(ctx context.Context, name MetricName, dimensions ...map[DimensionName]string) error {
	return m.put(ctx, name, cloudwatch.StandardUnitCount, 1, dimensions)
}

func (m Metrics) Timing(ctx context.Context, name MetricName, start time.Time, dimensions ...map[DimensionName]string) error {
	return m.put(ctx, name, cloudwatch.StandardUnitMilliseconds, float64(time.Since(start).Milliseconds()), dimensions)
}

func (m Metrics) Gauge(ctx context.Context, name MetricName, value float64, dimensions ...map[DimensionName]string) error {
	return m.put(ctx, name, cloudwatch.StandardUnitNone, value, dimensions)
}
