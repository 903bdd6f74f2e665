package status

import (
	"strings"
	"testing"
	"time"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/pool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Instance{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	cfg, err := config.Parse([]byte("name: arena\ntemplate: gc-template\nfleet:\n  workers: 3\n"))
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestCollect(t *testing.T) {
	db := testDB(t)
	p := pool.New([]string{"slice-a", "slice-b"})
	p.Acquire(1)

	db.Create(&models.Instance{
		Index: 1, Name: "worker-1",
		State:      lifecycle.StateAgentReady,
		Health:     "healthy",
		IPAddress:  "192.168.122.45",
		ResourceID: "slice-a",
		CreatedAt:  time.Now().Add(-90 * time.Minute),
	})
	db.Create(&models.Instance{Index: 2, Name: "worker-2", State: lifecycle.StateStarting})
	db.Create(&models.Instance{Index: 3, Name: "worker-3", State: lifecycle.StateDestroyed})

	fs, err := Collect(db, p, testConfig())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if fs.Name != "arena" || fs.Desired != 3 {
		t.Errorf("fleet = %+v", fs)
	}
	if fs.Live != 2 {
		t.Errorf("Live = %d, want 2 (destroyed excluded)", fs.Live)
	}
	if fs.PoolSize != 2 || fs.PoolFree != 1 {
		t.Errorf("pool = %d/%d, want 1/2 free", fs.PoolFree, fs.PoolSize)
	}
	if len(fs.Instances) != 2 {
		t.Fatalf("instances = %d, want 2", len(fs.Instances))
	}
	if fs.Instances[0].Uptime == "" {
		t.Error("uptime should be set for an instance with CreatedAt")
	}
}

func TestFormat(t *testing.T) {
	fs := &FleetStatus{
		Name:     "arena",
		Desired:  2,
		Live:     2,
		PoolSize: 2,
		PoolFree: 1,
		Instances: []InstanceStatus{
			{Index: 1, Name: "worker-1", State: "agent_ready", Health: "healthy", IPAddress: "192.168.122.45", ResourceID: "slice-a", Uptime: "1h30m0s"},
			{Index: 2, Name: "worker-2", State: "starting", Health: "unknown", RetryCount: 1, ReplacePending: true},
		},
	}

	var b strings.Builder
	Format(&b, fs)
	out := b.String()

	if !strings.Contains(out, "Fleet arena: 2/2 live, 1/2 GPU slices free") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "192.168.122.45") || !strings.Contains(out, "slice-a") {
		t.Errorf("missing instance 1 fields:\n%s", out)
	}
	// Unknown health and missing IP render as dashes.
	if !strings.Contains(out, "-") {
		t.Errorf("missing placeholders:\n%s", out)
	}
	if !strings.Contains(out, "replace pending") {
		t.Errorf("missing replace-pending marker:\n%s", out)
	}
}

func TestFormat_Empty(t *testing.T) {
	var b strings.Builder
	Format(&b, &FleetStatus{Name: "arena"})
	if !strings.Contains(b.String(), "No instances.") {
		t.Errorf("output = %q", b.String())
	}
}

func TestUptime(t *testing.T) {
	if got := uptime(time.Time{}); got != "" {
		t.Errorf("uptime(zero) = %q, want empty", got)
	}
	if got := uptime(time.Now().Add(-30 * time.Second)); got == "" {
		t.Error("uptime for a recent instance should not be empty")
	}
}
