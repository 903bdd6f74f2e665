package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/lifecycle"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/pool"
	"github.com/halverson/gamefleet/internal/virt"
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
	if err := db.AutoMigrate(&models.Instance{}, &models.Event{}, &models.HealthRecord{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// testConfig returns a config with timings collapsed for tests.
func testConfig() *config.Config {
	cfg, err := config.Parse([]byte("name: arena\ntemplate: gc-template\n"))
	if err != nil {
		panic(err)
	}
	cfg.Provision.StartStagger = config.Duration(time.Millisecond)
	cfg.Provision.ReadyTimeout = config.Duration(200 * time.Millisecond)
	cfg.Provision.ShutdownTimeout = config.Duration(50 * time.Millisecond)
	cfg.Health.ProbeTimeout = config.Duration(20 * time.Millisecond)
	return cfg
}

// mockCLI records calls and fails operations named in failOn (whole
// operation) or failOnCall (call-with-arguments prefix). Clones get a
// fresh uuid each time so replacement produces a new identity.
type mockCLI struct {
	mu         sync.Mutex
	calls      []string
	failOn     map[string]error
	failOnCall map[string]error
	domStates  map[string]virt.DomainState
	cloneSeq   int
	uuids      map[string]string
}

func newMockCLI() *mockCLI {
	return &mockCLI{
		failOn:     make(map[string]error),
		failOnCall: make(map[string]error),
		domStates:  make(map[string]virt.DomainState),
		uuids:      make(map[string]string),
	}
}

func (m *mockCLI) record(op string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := strings.Join(append([]string{op}, args...), " ")
	m.calls = append(m.calls, call)
	if err := m.failOn[op]; err != nil {
		return err
	}
	for prefix, err := range m.failOnCall {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (m *mockCLI) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, op) {
			n++
		}
	}
	return n
}

func (m *mockCLI) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockCLI) Clone(template, name string) error {
	if err := m.record("Clone", template, name); err != nil {
		return err
	}
	m.mu.Lock()
	m.cloneSeq++
	m.uuids[name] = fmt.Sprintf("uuid-%s-%d", name, m.cloneSeq)
	m.domStates[name] = virt.DomainShutOff
	m.mu.Unlock()
	return nil
}
func (m *mockCLI) DomUUID(name string) (string, error) {
	if err := m.record("DomUUID", name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uuids[name], nil
}
func (m *mockCLI) SetVCPUs(name string, count int) error {
	return m.record("SetVCPUs", name, fmt.Sprint(count))
}
func (m *mockCLI) SetMemory(name string, mib int) error {
	return m.record("SetMemory", name, fmt.Sprint(mib))
}
func (m *mockCLI) SetDescription(name, desc string) error { return m.record("SetDescription", name) }
func (m *mockCLI) AttachMdev(name, uuid string) error     { return m.record("AttachMdev", name, uuid) }
func (m *mockCLI) DetachMdev(name, uuid string) error     { return m.record("DetachMdev", name, uuid) }
func (m *mockCLI) Start(name string) error {
	if err := m.record("Start", name); err != nil {
		return err
	}
	m.mu.Lock()
	m.domStates[name] = virt.DomainRunning
	m.mu.Unlock()
	return nil
}
func (m *mockCLI) Shutdown(name string) error {
	if err := m.record("Shutdown", name); err != nil {
		return err
	}
	m.mu.Lock()
	m.domStates[name] = virt.DomainShutOff
	m.mu.Unlock()
	return nil
}
func (m *mockCLI) ForceOff(name string) error {
	if err := m.record("ForceOff", name); err != nil {
		return err
	}
	m.mu.Lock()
	m.domStates[name] = virt.DomainShutOff
	m.mu.Unlock()
	return nil
}
func (m *mockCLI) Undefine(name string) error { return m.record("Undefine", name) }
func (m *mockCLI) DomState(name string) (virt.DomainState, error) {
	if err := m.record("DomState", name); err != nil {
		return virt.DomainUnknown, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.domStates[name]; ok {
		return st, nil
	}
	return virt.DomainShutOff, nil
}
func (m *mockCLI) GuestPing(ctx context.Context, name string) error {
	return m.record("GuestPing", name)
}
func (m *mockCLI) GuestExec(ctx context.Context, name string, args []string) (string, error) {
	if err := m.record("GuestExec", append([]string{name}, args...)...); err != nil {
		return "", err
	}
	return "", nil
}
func (m *mockCLI) GuestIP(name string) (string, error) {
	if err := m.record("GuestIP", name); err != nil {
		return "", err
	}
	return "192.168.122.50", nil
}
func (m *mockCLI) WriteGuestFile(ctx context.Context, name, path string, content []byte) error {
	return m.record("WriteGuestFile", name, path)
}
func (m *mockCLI) ListMdevs() ([]string, error) {
	if err := m.record("ListMdevs"); err != nil {
		return nil, err
	}
	return nil, nil
}
func (m *mockCLI) SnapshotCreate(name, snapshot string) error {
	return m.record("SnapshotCreate", name, snapshot)
}

func slices(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("slice-%c", 'a'+i)
	}
	return ids
}

func testController(t *testing.T, cli *mockCLI, p *pool.Pool) (*Controller, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	if p == nil {
		p = pool.New(nil)
	}
	ctl, err := New(db, cli, p, testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctl, db
}

func liveStates(t *testing.T, db *gorm.DB) map[int]string {
	t.Helper()
	var instances []models.Instance
	if err := db.Where("state NOT IN ?", []string{lifecycle.StateAbsent, lifecycle.StateDestroyed}).
		Find(&instances).Error; err != nil {
		t.Fatalf("load instances: %v", err)
	}
	states := make(map[int]string, len(instances))
	for _, inst := range instances {
		states[inst.Index] = inst.State
	}
	return states
}

// Five workers on a host with three GPU slices: all five provision, the
// first three get slices, the rest run GPU-less.
func TestReconcile_FiveWorkersThreeSlices(t *testing.T) {
	cli := newMockCLI()
	p := pool.New(slices(3))
	ctl, db := testController(t, cli, p)

	report, err := ctl.Reconcile(context.Background(), 5)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Provisioned != 5 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	states := liveStates(t, db)
	if len(states) != 5 {
		t.Fatalf("live = %d, want 5", len(states))
	}
	for i := 1; i <= 5; i++ {
		if states[i] != lifecycle.StateAgentReady {
			t.Errorf("instance %d state = %q, want agent_ready", i, states[i])
		}
	}

	var withGPU int64
	db.Model(&models.Instance{}).Where("resource_id != ?", "").Count(&withGPU)
	if withGPU != 3 {
		t.Errorf("instances with GPU = %d, want 3", withGPU)
	}
	if p.Free() != 0 {
		t.Errorf("pool free = %d, want 0", p.Free())
	}
}

// A second pass over a converged fleet makes no virtualization calls at all.
func TestReconcile_Idempotent(t *testing.T) {
	cli := newMockCLI()
	ctl, _ := testController(t, cli, pool.New(slices(3)))

	if _, err := ctl.Reconcile(context.Background(), 3); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	before := cli.totalCalls()

	report, err := ctl.Reconcile(context.Background(), 3)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("outcomes = %+v, want none", report.Outcomes)
	}
	if cli.totalCalls() != before {
		t.Errorf("second pass made %d CLI calls, want 0", cli.totalCalls()-before)
	}
}

// A converged pass writes no audit event, so the daemon doesn't fill the
// event log with no-op reconciles every poll interval.
func TestReconcile_NoAuditEventWhenConverged(t *testing.T) {
	cli := newMockCLI()
	ctl, db := testController(t, cli, pool.New(slices(1)))

	if _, err := ctl.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	var before int64
	db.Model(&models.Event{}).Where("kind = ?", models.EventReconcile).Count(&before)
	if before != 1 {
		t.Fatalf("reconcile events after scale-up = %d, want 1", before)
	}

	if _, err := ctl.Reconcile(context.Background(), 1); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	var after int64
	db.Model(&models.Event{}).Where("kind = ?", models.EventReconcile).Count(&after)
	if after != before {
		t.Errorf("converged pass wrote %d reconcile events", after-before)
	}
}

// Scale-up picks the lowest unused indices.
func TestReconcile_LowestUnusedIndices(t *testing.T) {
	cli := newMockCLI()
	ctl, db := testController(t, cli, pool.New(nil))

	// Index 2 is already live; growing to 3 must fill 1 and 3.
	db.Create(&models.Instance{Index: 2, Name: "worker-2", State: lifecycle.StateAgentReady})
	if _, err := ctl.Reconcile(context.Background(), 3); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	states := liveStates(t, db)
	for _, want := range []int{1, 2, 3} {
		if _, ok := states[want]; !ok {
			t.Errorf("instance %d missing, got %v", want, states)
		}
	}
}

// Starts go out strictly in increasing index order.
func TestReconcile_StartOrder(t *testing.T) {
	cli := newMockCLI()
	ctl, _ := testController(t, cli, pool.New(nil))

	if _, err := ctl.Reconcile(context.Background(), 4); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	var startOrder []string
	cli.mu.Lock()
	for _, c := range cli.calls {
		if strings.HasPrefix(c, "Start ") {
			startOrder = append(startOrder, c)
		}
	}
	cli.mu.Unlock()

	want := []string{"Start worker-1", "Start worker-2", "Start worker-3", "Start worker-4"}
	if len(startOrder) != len(want) {
		t.Fatalf("starts = %v", startOrder)
	}
	for i := range want {
		if startOrder[i] != want[i] {
			t.Errorf("start[%d] = %q, want %q", i, startOrder[i], want[i])
		}
	}
}

// Scale-down removes the highest indices first and releases their slices.
func TestReconcile_ScaleDownHighestFirst(t *testing.T) {
	cli := newMockCLI()
	p := pool.New(slices(5))
	ctl, db := testController(t, cli, p)

	if _, err := ctl.Reconcile(context.Background(), 5); err != nil {
		t.Fatalf("grow: %v", err)
	}

	report, err := ctl.Reconcile(context.Background(), 3)
	if err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if report.Decommissioned != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	states := liveStates(t, db)
	if len(states) != 3 {
		t.Fatalf("live = %v, want 3 instances", states)
	}
	for _, gone := range []int{4, 5} {
		if _, ok := states[gone]; ok {
			t.Errorf("instance %d still live after shrink", gone)
		}
	}
	if cli.callCount("Undefine") != 2 {
		t.Errorf("Undefine calls = %d, want 2", cli.callCount("Undefine"))
	}
	if p.Free() != 2 {
		t.Errorf("pool free = %d, want 2", p.Free())
	}
}

// Shrinking then regrowing reuses the freed indices and slices.
func TestReconcile_ShrinkThenRegrow(t *testing.T) {
	cli := newMockCLI()
	p := pool.New(slices(5))
	ctl, db := testController(t, cli, p)

	ctx := context.Background()
	if _, err := ctl.Reconcile(ctx, 5); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if _, err := ctl.Reconcile(ctx, 3); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	report, err := ctl.Reconcile(ctx, 5)
	if err != nil {
		t.Fatalf("regrow: %v", err)
	}
	if report.Provisioned != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	states := liveStates(t, db)
	if len(states) != 5 {
		t.Fatalf("live = %v, want 5", states)
	}
	var inst models.Instance
	db.Where("`index` = ?", 4).First(&inst)
	if inst.ResourceID == "" {
		t.Error("regrown instance 4 should reuse a freed slice")
	}
	if p.Free() != 0 {
		t.Errorf("pool free = %d, want 0", p.Free())
	}
}

// One failed clone doesn't abort the batch; the exit report carries it.
func TestReconcile_PartialFailure(t *testing.T) {
	cli := newMockCLI()
	cli.failOnCall["Clone gc-template worker-2"] = errors.New("storage pool full")
	ctl, db := testController(t, cli, pool.New(nil))

	report, err := ctl.Reconcile(context.Background(), 3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Provisioned != 2 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}

	states := liveStates(t, db)
	if len(states) != 2 {
		t.Errorf("live = %v, want instances 1 and 3", states)
	}
	if !strings.Contains(report.Summary(), "storage pool full") {
		t.Errorf("summary = %q, missing failure reason", report.Summary())
	}
}

// The failed index is retried on the next pass.
func TestReconcile_RetriesFailedIndex(t *testing.T) {
	cli := newMockCLI()
	cli.failOnCall["Clone gc-template worker-2"] = errors.New("storage pool full")
	ctl, db := testController(t, cli, pool.New(nil))

	ctx := context.Background()
	if _, err := ctl.Reconcile(ctx, 3); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	delete(cli.failOnCall, "Clone gc-template worker-2")
	report, err := ctl.Reconcile(ctx, 3)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if report.Provisioned != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if _, ok := liveStates(t, db)[2]; !ok {
		t.Error("instance 2 should be live after retry")
	}
}

// Replace keeps the index but produces a new domain identity.
func TestReplace_SameIndexNewIdentity(t *testing.T) {
	cli := newMockCLI()
	p := pool.New(slices(1))
	ctl, db := testController(t, cli, p)

	ctx := context.Background()
	if _, err := ctl.Reconcile(ctx, 1); err != nil {
		t.Fatalf("provision: %v", err)
	}
	var before models.Instance
	db.Where("`index` = ?", 1).First(&before)

	report, err := ctl.Replace(ctx, 1)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	var after models.Instance
	db.Where("`index` = ?", 1).First(&after)
	if after.State != lifecycle.StateAgentReady {
		t.Errorf("state = %q, want agent_ready", after.State)
	}
	if after.DomainUUID == before.DomainUUID {
		t.Errorf("DomainUUID unchanged (%q), want a fresh identity", after.DomainUUID)
	}
	// The slice went through release + re-acquire.
	if after.ResourceID == "" {
		t.Error("replacement should re-acquire the slice")
	}
	if after.ReplacePending {
		t.Error("ReplacePending should be cleared")
	}
}

// Graceful shutdown timing out falls back to forced power-off.
func TestDecommission_ForceOffFallback(t *testing.T) {
	cli := newMockCLI()
	ctl, db := testController(t, cli, pool.New(nil))

	ctx := context.Background()
	if _, err := ctl.Reconcile(ctx, 1); err != nil {
		t.Fatalf("provision: %v", err)
	}

	// Shutdown calls fail, so the domain never reaches shut off gracefully.
	cli.failOn["Shutdown"] = errors.New("guest agent unresponsive")
	if err := ctl.Decommission(ctx, 1); err != nil {
		t.Fatalf("Decommission: %v", err)
	}

	if cli.callCount("ForceOff") != 1 {
		t.Errorf("ForceOff calls = %d, want 1", cli.callCount("ForceOff"))
	}
	if cli.callCount("Undefine") != 1 {
		t.Errorf("Undefine calls = %d, want 1", cli.callCount("Undefine"))
	}
	var inst models.Instance
	db.Where("`index` = ?", 1).First(&inst)
	if inst.State != lifecycle.StateDestroyed {
		t.Errorf("state = %q, want destroyed", inst.State)
	}
}

func TestReconcile_NegativeDesired(t *testing.T) {
	cli := newMockCLI()
	ctl, _ := testController(t, cli, pool.New(nil))
	if _, err := ctl.Reconcile(context.Background(), -1); err == nil {
		t.Fatal("expected error for negative desired count")
	}
}

func TestCheckInvariants_DuplicateSlice(t *testing.T) {
	db := testDB(t)
	db.Create(&models.Instance{Index: 1, Name: "worker-1", State: lifecycle.StateAgentReady, ResourceID: "slice-a"})
	db.Create(&models.Instance{Index: 2, Name: "worker-2", State: lifecycle.StateAgentReady, ResourceID: "slice-a"})

	err := CheckInvariants(db)
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want *InvariantError", err)
	}
}

func TestCheckInvariants_IgnoresDestroyed(t *testing.T) {
	db := testDB(t)
	db.Create(&models.Instance{Index: 1, Name: "worker-1", State: lifecycle.StateAgentReady, ResourceID: "slice-a"})
	db.Create(&models.Instance{Index: 2, Name: "worker-2", State: lifecycle.StateDestroyed, ResourceID: "slice-a"})

	if err := CheckInvariants(db); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestBackupAll(t *testing.T) {
	cli := newMockCLI()
	ctl, _ := testController(t, cli, pool.New(nil))

	ctx := context.Background()
	if _, err := ctl.Reconcile(ctx, 2); err != nil {
		t.Fatalf("provision: %v", err)
	}

	report, err := ctl.BackupAll()
	if err != nil {
		t.Fatalf("BackupAll: %v", err)
	}
	if report.Failed != 0 || len(report.Outcomes) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if cli.callCount("SnapshotCreate") != 2 {
		t.Errorf("SnapshotCreate calls = %d, want 2", cli.callCount("SnapshotCreate"))
	}
}

func TestBackup_PartialFailure(t *testing.T) {
	cli := newMockCLI()
	ctl, _ := testController(t, cli, pool.New(nil))

	ctx := context.Background()
	if _, err := ctl.Reconcile(ctx, 2); err != nil {
		t.Fatalf("provision: %v", err)
	}

	cli.failOnCall["SnapshotCreate worker-1"] = errors.New("no space left")
	report, err := ctl.BackupAll()
	if err != nil {
		t.Fatalf("BackupAll: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if cli.callCount("SnapshotCreate") != 2 {
		t.Errorf("SnapshotCreate calls = %d, want 2 (continue past failure)", cli.callCount("SnapshotCreate"))
	}
}
