package server

import (
	"context"
	"testing"

	"CryptoCast/internal/usecase"
	xhttp "CryptoCast/pkg/http"
	applogger "CryptoCast/pkg/logger"
	"CryptoCast/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type staticRegistry struct{}

func (staticRegistry) Reload(context.Context) (int, error) { return 1, nil }

type closeLog struct {
	order *[]string
	name  string
}

func (c closeLog) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func newTestApp(schedule string, order *[]string) *App {
	m := metrics.New(prometheus.NewRegistry())
	reloader := usecase.NewModelReloader(staticRegistry{}, nil, m, schedule, applogger.Nop())
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	return New(applogger.Nop(), srv, reloader,
		Resource{Name: "recorder", Closer: closeLog{order, "recorder"}},
		Resource{Name: "kafka", Closer: closeLog{order, "kafka"}},
		Resource{Name: "none"},
	)
}

func TestRunClosesResourcesWhenStartupFails(t *testing.T) {
	var order []string
	app := newTestApp("not a schedule", &order)

	if err := app.Run(context.Background()); err == nil {
		t.Fatalf("expected an invalid reload schedule to fail startup")
	}
	if len(order) != 2 || order[0] != "kafka" || order[1] != "recorder" {
		t.Fatalf("resources must be closed in reverse order, got %v", order)
	}
}

func TestRunClosesResourcesOnShutdown(t *testing.T) {
	var order []string
	app := newTestApp("", &order)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != "kafka" {
		t.Fatalf("resources must be closed on shutdown, got %v", order)
	}
}
