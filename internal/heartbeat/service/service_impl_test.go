package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	caduserrepo "github.com/geoinfo-winterthur/cadusage/internal/caduser/repository"
	"github.com/geoinfo-winterthur/cadusage/internal/clock"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	domain "github.com/geoinfo-winterthur/cadusage/internal/heartbeat/domain"
	"github.com/geoinfo-winterthur/cadusage/internal/logsink"
	orgrepo "github.com/geoinfo-winterthur/cadusage/internal/organization/repository"
	usagedomain "github.com/geoinfo-winterthur/cadusage/internal/usage/domain"
	usagerepo "github.com/geoinfo-winterthur/cadusage/internal/usage/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sinkRecord struct {
	Level   string
	Message string
	Details []string
}

type sinkStub struct {
	mu      sync.Mutex
	records []sinkRecord
}

func (s *sinkStub) Info(_ context.Context, message string, details ...string) {
	s.append("INFO", message, details)
}

func (s *sinkStub) Warn(_ context.Context, message string, details ...string) {
	s.append("WARN", message, details)
}

func (s *sinkStub) Error(_ context.Context, message string, details ...string) {
	s.append("ERROR", message, details)
}

func (s *sinkStub) append(level, message string, details []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, sinkRecord{Level: level, Message: message, Details: details})
}

func (s *sinkStub) byLevel(level string) []sinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkRecord
	for _, r := range s.records {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

type harness struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	sink  *sinkStub
}

func setupService(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	_ = db.Exec("PRAGMA journal_mode = WAL").Error
	prepareSchema(t, db)

	schema := config.NewStaticSchemaHolder(config.DefaultSchemaConfig())
	fake := clock.NewFakeClock(time.Date(2024, 3, 11, 10, 5, 0, 0, time.Local))
	sink := &sinkStub{}

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fake,
		Config: cfg,
		Users:  caduserrepo.Provide(schema),
		Orgs:   orgrepo.Provide(schema),
		Usage:  usagerepo.Provide(schema),
		Sink:   sink,
		Issues: logsink.NewIssueLog(config.Config{}, nil),
	})

	return &harness{svc: svc, db: db, clock: fake, sink: sink}
}

func prepareSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE cad_users (
		user_name TEXT NOT NULL,
		domain_name TEXT NOT NULL,
		last_ping DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create cad_users: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX uidx_cad_users_identity
		ON cad_users (user_name, domain_name)`).Error; err != nil {
		t.Fatalf("create cad_users index: %v", err)
	}
	if err := db.Exec(`CREATE TABLE org_members (
		login_name TEXT NOT NULL,
		org_fid BIGINT NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create org_members: %v", err)
	}
	if err := db.Exec(`CREATE TABLE cad_usage (
		org_fid BIGINT NOT NULL,
		usage_date DATETIME NOT NULL,
		app_fid INTEGER NOT NULL,
		app_version TEXT NOT NULL,
		minutes INTEGER NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create cad_usage: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX uidx_cad_usage_key
		ON cad_usage (org_fid, usage_date, app_fid, app_version)`).Error; err != nil {
		t.Fatalf("create cad_usage index: %v", err)
	}
}

func seedMember(t *testing.T, db *gorm.DB, login string, orgID int64) {
	t.Helper()
	if err := db.Exec(`INSERT INTO org_members (login_name, org_fid) VALUES (?, ?)`,
		login, orgID).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

func defaultConfig() config.Config {
	return config.Config{UnknownValue: "unknown"}
}

func heartbeatFor(user string) domain.Heartbeat {
	return domain.Heartbeat{
		UserName:   user,
		DomainName: "stadt",
		AppCode:    "1",
		Version:    "2024.1",
	}
}

func countRows(t *testing.T, db *gorm.DB, table string) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM ` + table).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func usageMinutes(t *testing.T, db *gorm.DB, orgID int64) []int {
	t.Helper()
	var minutes []int
	if err := db.Raw(`SELECT minutes FROM cad_usage WHERE org_fid = ? ORDER BY usage_date`,
		orgID).Scan(&minutes).Error; err != nil {
		t.Fatalf("select minutes: %v", err)
	}
	return minutes
}

func TestNewUserCountsTenMinutes(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)

	result, err := h.svc.Record(context.Background(), heartbeatFor("hmeier"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !result.NewUser || !result.Counted {
		t.Fatalf("result = %+v, want new and counted", result)
	}
	if result.OrgID != 42 {
		t.Fatalf("org id = %d, want 42", result.OrgID)
	}
	if got := usageMinutes(t, h.db, 42); len(got) != 1 || got[0] != 10 {
		t.Fatalf("minutes = %v, want [10]", got)
	}
	if n := countRows(t, h.db, "cad_users"); n != 1 {
		t.Fatalf("cad_users rows = %d, want 1", n)
	}
}

func TestSameBucketSuppressed(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)
	ctx := context.Background()

	if _, err := h.svc.Record(ctx, heartbeatFor("hmeier")); err != nil {
		t.Fatalf("first record: %v", err)
	}
	h.clock.Advance(2 * time.Minute) // 10:05 -> 10:07, same bucket

	result, err := h.svc.Record(ctx, heartbeatFor("hmeier"))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if result.Counted || result.NewUser {
		t.Fatalf("result = %+v, want suppressed existing user", result)
	}
	if got := usageMinutes(t, h.db, 42); len(got) != 1 || got[0] != 10 {
		t.Fatalf("minutes = %v, want [10]", got)
	}

	var lastPing time.Time
	if err := h.db.Raw(`SELECT last_ping FROM cad_users WHERE user_name = ?`, "hmeier").
		Scan(&lastPing).Error; err != nil {
		t.Fatalf("select last_ping: %v", err)
	}
	if !lastPing.Equal(h.clock.Now()) {
		t.Fatalf("last_ping = %v, want %v", lastPing, h.clock.Now())
	}
}

func TestBucketBoundaryCounts(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)
	ctx := context.Background()

	h.clock.Set(time.Date(2024, 3, 11, 10, 9, 59, 0, time.Local))
	if _, err := h.svc.Record(ctx, heartbeatFor("hmeier")); err != nil {
		t.Fatalf("first record: %v", err)
	}

	h.clock.Set(time.Date(2024, 3, 11, 10, 10, 1, 0, time.Local))
	result, err := h.svc.Record(ctx, heartbeatFor("hmeier"))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if !result.Counted {
		t.Fatal("second record not counted across bucket boundary")
	}
	if got := usageMinutes(t, h.db, 42); len(got) != 1 || got[0] != 20 {
		t.Fatalf("minutes = %v, want [20]", got)
	}
}

func TestDayBoundarySplitsRecords(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)
	ctx := context.Background()

	h.clock.Set(time.Date(2024, 3, 11, 23, 55, 0, 0, time.Local))
	if _, err := h.svc.Record(ctx, heartbeatFor("hmeier")); err != nil {
		t.Fatalf("first record: %v", err)
	}

	h.clock.Set(time.Date(2024, 3, 12, 0, 5, 0, 0, time.Local))
	if _, err := h.svc.Record(ctx, heartbeatFor("hmeier")); err != nil {
		t.Fatalf("second record: %v", err)
	}

	if got := usageMinutes(t, h.db, 42); len(got) != 2 || got[0] != 10 || got[1] != 10 {
		t.Fatalf("minutes = %v, want [10 10]", got)
	}
}

func TestMissingFieldsRejected(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*domain.Heartbeat)
		wantErr error
	}{
		{"user name", func(hb *domain.Heartbeat) { hb.UserName = "" }, domain.ErrMissingUserName},
		{"domain name", func(hb *domain.Heartbeat) { hb.DomainName = "" }, domain.ErrMissingDomainName},
		{"app code", func(hb *domain.Heartbeat) { hb.AppCode = "" }, domain.ErrMissingAppCode},
		{"app code not a number", func(hb *domain.Heartbeat) { hb.AppCode = "acad" }, domain.ErrMissingAppCode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := setupService(t, defaultConfig())
			hb := heartbeatFor("hmeier")
			tc.mutate(&hb)

			_, err := h.svc.Record(context.Background(), hb)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if n := countRows(t, h.db, "cad_users"); n != 0 {
				t.Fatalf("cad_users rows = %d, want 0", n)
			}
			if n := countRows(t, h.db, "cad_usage"); n != 0 {
				t.Fatalf("cad_usage rows = %d, want 0", n)
			}
			if warns := h.sink.byLevel("WARN"); len(warns) != 1 {
				t.Fatalf("warn records = %d, want 1", len(warns))
			}
			if infos := h.sink.byLevel("INFO"); len(infos) != 0 {
				t.Fatalf("info records = %d, want 0", len(infos))
			}
		})
	}
}

func TestUnknownOrganizationUsesSentinel(t *testing.T) {
	h := setupService(t, defaultConfig())

	result, err := h.svc.Record(context.Background(), heartbeatFor("stranger"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.OrgID != -1 {
		t.Fatalf("org id = %d, want -1", result.OrgID)
	}
	if got := usageMinutes(t, h.db, -1); len(got) != 1 || got[0] != 10 {
		t.Fatalf("minutes = %v, want [10]", got)
	}
	if warns := h.sink.byLevel("WARN"); len(warns) != 1 {
		t.Fatalf("warn records = %d, want 1", len(warns))
	}
}

func TestIdentifiersNormalizedAndVersionDefaulted(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)

	result, err := h.svc.Record(context.Background(), domain.Heartbeat{
		UserName:   "HMeier",
		DomainName: "STADT",
		AppCode:    "3",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.Version != "unknown" {
		t.Fatalf("version = %q, want unknown", result.Version)
	}

	var userName, domainName string
	row := h.db.Raw(`SELECT user_name, domain_name FROM cad_users`).Row()
	if err := row.Scan(&userName, &domainName); err != nil {
		t.Fatalf("scan user: %v", err)
	}
	if userName != "hmeier" || domainName != "stadt" {
		t.Fatalf("stored identity = %s/%s, want hmeier/stadt", userName, domainName)
	}

	var version string
	if err := h.db.Raw(`SELECT app_version FROM cad_usage`).Scan(&version).Error; err != nil {
		t.Fatalf("select version: %v", err)
	}
	if version != "unknown" {
		t.Fatalf("stored version = %q, want unknown", version)
	}
}

func TestRedactionKeepsIdentifiersOutOfSink(t *testing.T) {
	cfg := defaultConfig()
	cfg.RedactIdentifiers = true
	h := setupService(t, cfg)

	if _, err := h.svc.Record(context.Background(), heartbeatFor("hmeier")); err != nil {
		t.Fatalf("record: %v", err)
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	for _, rec := range h.sink.records {
		for _, detail := range rec.Details {
			if strings.Contains(detail, "hmeier") || strings.Contains(detail, "stadt") {
				t.Fatalf("identifier leaked into sink record: %q", detail)
			}
		}
	}
}

func TestConcurrentFirstHeartbeats(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Record(ctx, heartbeatFor("hmeier")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("record: %v", err)
	}

	if n := countRows(t, h.db, "cad_users"); n != 1 {
		t.Fatalf("cad_users rows = %d, want 1", n)
	}
	if got := usageMinutes(t, h.db, 42); len(got) != 1 || got[0] != 10 {
		t.Fatalf("minutes = %v, want [10]", got)
	}
}

func TestUsageKeyedByAppAndVersion(t *testing.T) {
	h := setupService(t, defaultConfig())
	seedMember(t, h.db, "hmeier", 42)
	seedMember(t, h.db, "pfrei", 42)
	ctx := context.Background()

	hb := heartbeatFor("hmeier")
	if _, err := h.svc.Record(ctx, hb); err != nil {
		t.Fatalf("record: %v", err)
	}

	other := heartbeatFor("pfrei")
	other.AppCode = "3"
	if _, err := h.svc.Record(ctx, other); err != nil {
		t.Fatalf("record: %v", err)
	}

	if n := countRows(t, h.db, "cad_usage"); n != 2 {
		t.Fatalf("cad_usage rows = %d, want 2", n)
	}

	var record usagedomain.UsageRecord
	if err := h.db.Raw(`SELECT minutes FROM cad_usage WHERE app_fid = 3`).
		Scan(&record.Minutes).Error; err != nil {
		t.Fatalf("select app 3: %v", err)
	}
	if record.Minutes != 10 {
		t.Fatalf("app 3 minutes = %d, want 10", record.Minutes)
	}
}
