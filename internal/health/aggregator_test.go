package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: "mock",
		Latency: time.Millisecond,
	}
}

type countingChecker struct {
	calls atomic.Int32
}

func (c *countingChecker) Name() string { return "links" }

func (c *countingChecker) Check(ctx context.Context) CheckResult {
	c.calls.Add(1)
	return CheckResult{Status: StatusHealthy}
}

func TestAggregator(t *testing.T) {
	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"links", StatusHealthy},
			&mockChecker{"sink_queue", StatusHealthy},
		)

		status := agg.OverallStatus(context.Background())
		if status != StatusHealthy {
			t.Errorf("期望StatusHealthy，实际: %v", status)
		}

		if !agg.Ready(context.Background()) {
			t.Error("全部健康时应该Ready")
		}
	})

	t.Run("部分降级", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"links", StatusHealthy},
			&mockChecker{"sink_queue", StatusDegraded},
		)

		status := agg.OverallStatus(context.Background())
		if status != StatusDegraded {
			t.Errorf("期望StatusDegraded，实际: %v", status)
		}

		// 降级状态仍然Ready
		if !agg.Ready(context.Background()) {
			t.Error("降级状态应该仍然Ready")
		}
	})

	t.Run("部分不健康", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"links", StatusHealthy},
			&mockChecker{"sink_queue", StatusUnhealthy},
		)

		status := agg.OverallStatus(context.Background())
		if status != StatusUnhealthy {
			t.Errorf("期望StatusUnhealthy，实际: %v", status)
		}

		// 不健康状态不Ready
		if agg.Ready(context.Background()) {
			t.Error("不健康状态不应该Ready")
		}
	})

	t.Run("CheckAll并发执行", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"check1", StatusHealthy},
			&mockChecker{"check2", StatusHealthy},
			&mockChecker{"check3", StatusHealthy},
		)

		results := agg.CheckAll(context.Background())
		if len(results) != 3 {
			t.Errorf("期望3个结果，实际: %d", len(results))
		}

		for name, result := range results {
			if result.Status != StatusHealthy {
				t.Errorf("%s: 期望StatusHealthy，实际: %v", name, result.Status)
			}
		}
	})

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"initial", StatusHealthy},
		)

		agg.AddChecker(&mockChecker{"added", StatusHealthy})

		results := agg.CheckAll(context.Background())
		if len(results) != 2 {
			t.Errorf("期望2个结果，实际: %d", len(results))
		}
	})

	t.Run("Report只执行一轮检查", func(t *testing.T) {
		c := &countingChecker{}
		agg := NewAggregator(c, &mockChecker{"redis", StatusDegraded})

		report := agg.Report(context.Background())
		if report.Status != StatusDegraded {
			t.Errorf("期望StatusDegraded，实际: %v", report.Status)
		}
		if len(report.Checks) != 2 {
			t.Errorf("期望2个结果，实际: %d", len(report.Checks))
		}
		if c.calls.Load() != 1 {
			t.Errorf("期望检查1次，实际: %d", c.calls.Load())
		}
	})

	t.Run("忽略nil检查器", func(t *testing.T) {
		agg := NewAggregator()
		agg.AddChecker(nil)
		if len(agg.CheckAll(context.Background())) != 0 {
			t.Error("nil检查器不应被添加")
		}
	})

	t.Run("Alive始终返回true", func(t *testing.T) {
		agg := NewAggregator()

		if !agg.Alive() {
			t.Error("Alive应该始终返回true")
		}
	})
}

func TestStatus_Worse(t *testing.T) {
	cases := []struct {
		a, b, want Status
	}{
		{StatusHealthy, StatusHealthy, StatusHealthy},
		{StatusHealthy, StatusDegraded, StatusDegraded},
		{StatusDegraded, StatusHealthy, StatusDegraded},
		{StatusDegraded, StatusUnhealthy, StatusUnhealthy},
		{StatusUnhealthy, StatusHealthy, StatusUnhealthy},
		{StatusHealthy, Status("bogus"), StatusUnhealthy},
	}
	for _, c := range cases {
		if got := c.a.Worse(c.b); got != c.want {
			t.Errorf("%s.Worse(%s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}

	// 未知状态按 unhealthy 计入总体状态
	agg := NewAggregator(&mockChecker{name: "links", status: StatusHealthy}, &mockChecker{name: "x", status: Status("bogus")})
	if agg.Ready(context.Background()) {
		t.Error("未知状态不应视为就绪")
	}
}
