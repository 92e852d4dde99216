// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/mbeema/framectl/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	_ "google.golang.org/grpc/encoding/gzip" // Register gzip compressor

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

const scopeName = "framectl"

// OTLPExporter pushes controller counters to an OTLP collector over gRPC.
// A channel that has failed is redialled before the next export.
type OTLPExporter struct {
	logger   *zap.Logger
	endpoint string
	dialOpts []grpc.DialOption
	res      *resourcepb.Resource

	mu     sync.RWMutex
	conn   *grpc.ClientConn
	client colmetricspb.MetricsServiceClient
}

// NewOTLPExporter dials cfg.Endpoint. The dial is lazy, so an unreachable
// collector surfaces on the first export, not here.
func NewOTLPExporter(cfg *config.OTLPConfig, serviceName, serviceVersion string, logger *zap.Logger) (*OTLPExporter, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(4 << 20)),
	}
	if cfg.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cfg.Compression != "none" {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.UseCompressor("gzip")))
	}

	e := &OTLPExporter{
		logger:   logger,
		endpoint: cfg.Endpoint,
		dialOpts: dialOpts,
		res:      newResource(serviceName, serviceVersion),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.dialLocked(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *OTLPExporter) dialLocked() error {
	conn, err := grpc.Dial(e.endpoint, e.dialOpts...)
	if err != nil {
		return fmt.Errorf("dial OTLP endpoint %s: %w", e.endpoint, err)
	}
	e.conn = conn
	e.client = colmetricspb.NewMetricsServiceClient(conn)
	return nil
}

func usable(conn *grpc.ClientConn) bool {
	if conn == nil {
		return false
	}
	s := conn.GetState()
	return s != connectivity.TransientFailure && s != connectivity.Shutdown
}

// metricsClient returns a client on a usable channel, redialling if needed.
func (e *OTLPExporter) metricsClient() (colmetricspb.MetricsServiceClient, error) {
	e.mu.RLock()
	conn, client := e.conn, e.client
	e.mu.RUnlock()
	if usable(conn) {
		return client, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if usable(e.conn) {
		return e.client, nil
	}
	if e.conn != nil {
		e.conn.Close()
	}
	e.logger.Info("redialling OTLP endpoint", zap.String("endpoint", e.endpoint))
	if err := e.dialLocked(); err != nil {
		return nil, err
	}
	return e.client, nil
}

func newResource(serviceName, serviceVersion string) *resourcepb.Resource {
	hostname, _ := os.Hostname()
	pid := os.Getpid()
	attrs := []*commonpb.KeyValue{
		strAttr("service.name", serviceName),
		strAttr("service.instance.id", fmt.Sprintf("%s-%d", hostname, pid)),
		strAttr("telemetry.sdk.name", scopeName),
		strAttr("telemetry.sdk.language", "go"),
		strAttr("host.name", hostname),
		strAttr("host.arch", runtime.GOARCH),
		intAttr("process.pid", int64(pid)),
	}
	if serviceVersion != "" {
		attrs = append(attrs, strAttr("service.version", serviceVersion))
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	}
}

// ExportMetrics sends one request carrying every metric.
func (e *OTLPExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	client, err := e.metricsClient()
	if err != nil {
		return err
	}
	resp, err := client.Export(ctx, e.buildRequest(metrics))
	if err != nil {
		return fmt.Errorf("export %d metrics: %w", len(metrics), err)
	}
	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedDataPoints() > 0 {
		e.logger.Warn("collector rejected data points",
			zap.Int64("rejected", ps.GetRejectedDataPoints()),
			zap.String("reason", ps.GetErrorMessage()),
		)
	}
	return nil
}

func (e *OTLPExporter) buildRequest(metrics []*Metric) *colmetricspb.ExportMetricsServiceRequest {
	pms := make([]*metricspb.Metric, 0, len(metrics))
	for _, m := range metrics {
		pms = append(pms, convertMetric(m))
	}
	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: e.res,
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: scopeName},
				Metrics: pms,
			}},
		}},
	}
}

func convertMetric(m *Metric) *metricspb.Metric {
	pm := &metricspb.Metric{Name: m.Name, Unit: m.Unit}

	keys := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]*commonpb.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, strAttr(k, m.Labels[k]))
	}

	dp := &metricspb.NumberDataPoint{
		TimeUnixNano: uint64(m.Timestamp.UnixNano()),
		Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: m.Value},
		Attributes:   attrs,
	}

	switch m.Type {
	case MetricCounter:
		if !m.StartTime.IsZero() {
			dp.StartTimeUnixNano = uint64(m.StartTime.UnixNano())
		}
		pm.Data = &metricspb.Metric_Sum{
			Sum: &metricspb.Sum{
				IsMonotonic:            true,
				AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
				DataPoints:             []*metricspb.NumberDataPoint{dp},
			},
		}
	default:
		pm.Data = &metricspb.Metric_Gauge{
			Gauge: &metricspb.Gauge{DataPoints: []*metricspb.NumberDataPoint{dp}},
		}
	}
	return pm
}

// Shutdown closes the channel.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn, e.client = nil, nil
	return err
}
