package health

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry(0)
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry(0)
	r.Register("database", func(_ context.Context) Status {
		return Healthy("database")
	})
	r.Register("stripe_config", func(_ context.Context) Status {
		return Healthy("stripe_config")
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry(0)
	r.Register("database", func(_ context.Context) Status {
		return Healthy("database")
	})
	r.Register("stripe_config", func(_ context.Context) Status {
		return Unhealthy("stripe_config", "webhook secret not configured")
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].Detail != "webhook secret not configured" {
		t.Fatalf("unexpected detail %q", statuses[1].Detail)
	}
}

func TestRegistryCheckTimeout(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.Register("slow", func(ctx context.Context) Status {
		select {
		case <-ctx.Done():
			return Unhealthy("slow", ctx.Err().Error())
		case <-time.After(time.Second):
			return Healthy("slow")
		}
	})

	healthy, _ := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("checker exceeding the timeout should report unhealthy")
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry(0)
	var wg sync.WaitGroup

	// Register concurrently
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Healthy("checker")
			})
		}()
	}

	// Check concurrently
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
