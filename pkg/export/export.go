package export

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

const namespace = "instrumentkit_"

var states = []string{types.StateHealthy, types.StateDegraded, types.StateCritical, types.StateUnknown}

// Latest keeps the newest report of every device, ordered by device.
func Latest(reports []*types.RunReport) []*types.RunReport {
	byDevice := map[string]*types.RunReport{}
	for _, r := range reports {
		if cur, ok := byDevice[r.Device]; !ok || r.StartedAt.After(cur.StartedAt) {
			byDevice[r.Device] = r
		}
	}
	out := make([]*types.RunReport, 0, len(byDevice))
	for _, r := range byDevice {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Families converts the latest report of every device into metric families.
// runs, when non-nil, supplies the per-device run counter.
func Families(reports []*types.RunReport, runs map[string]int) []*dto.MetricFamily {
	latest := Latest(reports)

	score := gauge("device_health_score", "Health score (0-100) derived from the latest run.")
	state := gauge("device_health_state", "1 for the device's current health state.")
	passRate := gauge("device_pass_rate", "Percentage of executed tests that passed in the latest run.")
	completion := gauge("device_completion_rate", "Percentage of recent runs that completed.")
	collection := gauge("device_collection_rate", "Percentage of recent runs without collector errors.")
	tests := gauge("run_tests", "Tests in the latest run by result.")
	complete := gauge("run_complete", "1 when the latest run completed without a run failure.")
	elapsed := gauge("run_elapsed_seconds", "Duration of the latest run.")
	collectorErrs := gauge("run_collector_errors", "Host collector errors raised during the latest run.")
	started := gauge("run_start_timestamp_seconds", "Start time of the latest run.")
	total := &dto.MetricFamily{
		Name: proto.String(namespace + "runs_total"),
		Help: proto.String("Runs reported per device."),
		Type: dto.MetricType_COUNTER.Enum(),
	}

	for _, r := range latest {
		dev := label("device", r.Device)
		add(score, r.Health.Score, dev)
		for _, s := range states {
			v := 0.0
			if r.Health.State == s {
				v = 1
			}
			add(state, v, dev, label("state", s))
		}
		add(passRate, r.Health.PassRate, dev)
		add(completion, r.Health.CompletionRate, dev)
		add(collection, r.Health.CollectionRate, dev)
		add(tests, float64(r.Passed), dev, label("result", "passed"))
		add(tests, float64(r.Failed), dev, label("result", "failed"))
		add(tests, float64(r.Ignored), dev, label("result", "ignored"))
		add(complete, boolValue(r.Complete && r.RunFailure == ""), dev)
		add(elapsed, float64(r.ElapsedMs)/1000, dev)
		add(collectorErrs, float64(len(r.CollectorErrors)), dev)
		add(started, float64(r.StartedAt.UnixMilli())/1000, dev)

		n, ok := runs[r.Device]
		if !ok {
			n = countDevice(reports, r.Device)
		}
		total.Metric = append(total.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{dev},
			Counter: &dto.Counter{Value: proto.Float64(float64(n))},
		})
	}

	return []*dto.MetricFamily{
		score, state, passRate, completion, collection,
		tests, complete, elapsed, collectorErrs, started, total,
	}
}

// Write encodes Families(reports, runs) to w in the text format.
func Write(w io.Writer, reports []*types.RunReport, runs map[string]int) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range Families(reports, runs) {
		if len(mf.Metric) == 0 {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("export: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ContentType is the value for the Content-Type header of Write's output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

func gauge(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func add(mf *dto.MetricFamily, v float64, labels ...*dto.LabelPair) {
	mf.Metric = append(mf.Metric, &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func countDevice(reports []*types.RunReport, device string) int {
	n := 0
	for _, r := range reports {
		if r.Device == device {
			n++
		}
	}
	return n
}
