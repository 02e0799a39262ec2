package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	caduserdomain "github.com/geoinfo-winterthur/cadusage/internal/caduser/domain"
	"github.com/geoinfo-winterthur/cadusage/internal/clock"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	domain "github.com/geoinfo-winterthur/cadusage/internal/heartbeat/domain"
	"github.com/geoinfo-winterthur/cadusage/internal/logsink"
	"github.com/geoinfo-winterthur/cadusage/internal/observability/metrics"
	orgdomain "github.com/geoinfo-winterthur/cadusage/internal/organization/domain"
	usagedomain "github.com/geoinfo-winterthur/cadusage/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// bucketMinutes is what one counted heartbeat contributes.
const bucketMinutes = 10

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Users   caduserdomain.Repository
	Orgs    orgdomain.Repository
	Usage   usagedomain.Repository
	Sink    logsink.Emitter
	Issues  *logsink.IssueLog
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	users   caduserdomain.Repository
	orgs    orgdomain.Repository
	usage   usagedomain.Repository
	sink    logsink.Emitter
	issues  *logsink.IssueLog
	metrics *metrics.Metrics

	unknownValue string
	redact       bool
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("heartbeat.service"),
		clock:        p.Clock,
		users:        p.Users,
		orgs:         p.Orgs,
		usage:        p.Usage,
		sink:         p.Sink,
		issues:       p.Issues,
		metrics:      p.Metrics,
		unknownValue: p.Config.UnknownValue,
		redact:       p.Config.RedactIdentifiers,
	}
}

// Record runs one heartbeat through validation, user registry and the
// daily usage counter. All store writes happen in a single transaction.
func (s *Service) Record(ctx context.Context, hb domain.Heartbeat) (domain.Result, error) {
	userName := strings.ToLower(strings.TrimSpace(hb.UserName))
	domainName := strings.ToLower(strings.TrimSpace(hb.DomainName))

	if userName == "" {
		s.rejected(ctx, "heartbeat without user name", hb)
		return domain.Result{}, domain.ErrMissingUserName
	}
	if domainName == "" {
		s.rejected(ctx, "heartbeat without domain name", hb)
		return domain.Result{}, domain.ErrMissingDomainName
	}
	appCode, err := strconv.Atoi(strings.TrimSpace(hb.AppCode))
	if err != nil {
		s.rejected(ctx, "heartbeat without app code", hb)
		return domain.Result{}, domain.ErrMissingAppCode
	}

	version := strings.ToLower(strings.TrimSpace(hb.Version))
	if version == "" {
		version = s.unknownValue
	}

	now := s.clock.Now()

	result := domain.Result{
		OrgID:   orgdomain.UnknownOrgID,
		AppCode: appCode,
		Version: version,
	}
	orgFound := true

	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.users.Find(ctx, tx, userName, domainName)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			created, err := s.users.CreateIfAbsent(ctx, tx, caduserdomain.CadUser{
				UserName:   userName,
				DomainName: domainName,
				LastPing:   now,
			})
			if err != nil {
				return err
			}
			// Losing the insert race means another instance holds
			// this bucket already, so the ping is not counted.
			result.NewUser = created
			result.Counted = created
		default:
			result.Counted = !sameBucket(now, existing.LastPing)
			if err := s.users.UpdateLastPing(ctx, tx, userName, domainName, now); err != nil {
				return err
			}
		}

		orgID, found, err := s.orgs.FindOrgID(ctx, tx, userName)
		if err != nil {
			return err
		}
		if found {
			result.OrgID = orgID
		}
		orgFound = found

		if result.Counted {
			key := usagedomain.Key{
				OrgID:   result.OrgID,
				Date:    dayOf(now),
				AppCode: appCode,
				Version: version,
			}
			if _, err := s.usage.EnsureRecord(ctx, tx, key); err != nil {
				return err
			}
			if err := s.usage.AddMinutes(ctx, tx, key, bucketMinutes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.failed(ctx, err, hb)
		return domain.Result{}, err
	}

	if !orgFound {
		s.noOrganization(ctx, userName, domainName)
	}
	s.processed(ctx, userName, domainName, result)
	return result, nil
}

// rejected reports a heartbeat that failed validation. Raw identifiers
// only go to the remote sink when redaction is off; the local issue
// log always gets them.
func (s *Service) rejected(ctx context.Context, message string, hb domain.Heartbeat) {
	details := []string{}
	if !s.redact {
		details = identifierDetails(hb.UserName, hb.DomainName)
	}
	s.sink.Warn(ctx, message, details...)
	s.issues.Report(ctx, message,
		zap.String("user", hb.UserName),
		zap.String("domain", hb.DomainName),
		zap.String("app_code", hb.AppCode),
	)
	if s.metrics != nil {
		s.metrics.RecordHeartbeat(ctx, "rejected")
	}
}

func (s *Service) noOrganization(ctx context.Context, userName, domainName string) {
	message := "no organization found for user"
	details := []string{}
	if !s.redact {
		details = identifierDetails(userName, domainName)
	}
	s.sink.Warn(ctx, message, details...)
	s.issues.Report(ctx, message,
		zap.String("user", userName),
		zap.String("domain", domainName),
	)
}

func (s *Service) processed(ctx context.Context, userName, domainName string, result domain.Result) {
	userKind := "existing_user"
	if result.NewUser {
		userKind = "new_user"
		s.issues.Report(ctx, "new user created",
			zap.String("user", userName),
			zap.String("domain", domainName),
		)
	}
	details := []string{
		fmt.Sprintf("orgfid=%d", result.OrgID),
		fmt.Sprintf("appCode=%d", result.AppCode),
		fmt.Sprintf("version=%s", result.Version),
		userKind,
	}
	if !s.redact {
		details = append(identifierDetails(userName, domainName), details...)
	}
	s.sink.Info(ctx, "heartbeat processed", details...)

	if s.metrics == nil {
		return
	}
	if result.Counted {
		s.metrics.RecordHeartbeat(ctx, "counted")
		s.metrics.RecordUsageMinutes(ctx, result.AppCode, bucketMinutes)
	} else {
		s.metrics.RecordHeartbeat(ctx, "suppressed")
	}
}

// failed reports an aborted heartbeat. With redaction on, only the
// error category leaves the machine.
func (s *Service) failed(ctx context.Context, err error, hb domain.Heartbeat) {
	detail := err.Error()
	if s.redact {
		detail = "store failure"
	}
	s.sink.Error(ctx, "heartbeat failed", detail)
	s.log.Error("heartbeat failed", zap.Error(err))
	s.issues.Report(ctx, "heartbeat failed",
		zap.String("user", hb.UserName),
		zap.String("domain", hb.DomainName),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.RecordHeartbeat(ctx, "failed")
	}
}

func identifierDetails(userName, domainName string) []string {
	details := []string{}
	if userName != "" {
		details = append(details, "user="+userName)
	}
	if domainName != "" {
		details = append(details, "domain="+domainName)
	}
	return details
}
