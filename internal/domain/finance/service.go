package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doseledger/doseledger/internal/domain/dosing"
	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/internal/platform/cache"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

const dashboardPrefix = "dashboard:"

// Service keeps injections and financial records consistent and computes
// the derived financial views from fresh snapshots.
type Service struct {
	injections dosing.InjectionRepository
	meds       dosing.MedicationRepository
	records    RecordRepository
	patients   patient.Repository
	tx         db.TxRunner

	cache    cache.Cache
	cacheTTL time.Duration
	savings  SavingsParams
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Service)

// WithCache caches dashboard snapshots for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
		s.cacheTTL = ttl
	}
}

func WithSavingsParams(p SavingsParams) Option {
	return func(s *Service) { s.savings = p }
}

// WithLocation sets the clinic time zone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(injections dosing.InjectionRepository, meds dosing.MedicationRepository, records RecordRepository,
	patients patient.Repository, tx db.TxRunner, opts ...Option) *Service {
	s := &Service{
		injections: injections,
		meds:       meds,
		records:    records,
		patients:   patients,
		tx:         tx,
		cache:      cache.Noop{},
		savings:    DefaultSavingsParams(),
		loc:        time.Local,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar day in the clinic time zone.
func (s *Service) Today() calendar.Date {
	return calendar.FromTime(s.now().In(s.loc))
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, dashboardPrefix); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("dashboard cache invalidation failed")
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func doseDescription(inj *dosing.Injection) string {
	desc := fmt.Sprintf("Aplicação %s", strings.TrimSpace(string(inj.Dosage)))
	if inj.Medication != nil && inj.Medication.Name != "" {
		desc += " - " + inj.Medication.Name
	}
	return desc + " em " + shortDate(inj.AppliedAt)
}

// =========== Injections ===========

func (s *Service) prepareInjection(ctx context.Context, inj *dosing.Injection) error {
	if inj.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	inj.Dosage = dosing.Dosage(strings.TrimSpace(string(inj.Dosage)))
	if inj.Dosage == "" {
		return invalid("dosage is required")
	}
	if inj.DoseValue < 0 {
		return invalid("dose_value must not be negative")
	}
	if inj.AppliedAt.IsZero() {
		inj.AppliedAt = s.Today()
	}
	inj.Medication = nil
	if inj.MedicationID != nil {
		med, err := s.meds.GetByID(ctx, *inj.MedicationID)
		if err != nil {
			return fmt.Errorf("medication: %w", err)
		}
		inj.Medication = med
	}
	return nil
}

// RegisterInjection records a dose. When paid is set and the dose has a
// value, the matching Pago record is created in the same transaction.
func (s *Service) RegisterInjection(ctx context.Context, inj *dosing.Injection, paid bool) error {
	if err := s.prepareInjection(ctx, inj); err != nil {
		return err
	}
	if _, err := s.patients.GetByID(ctx, inj.PatientID); err != nil {
		return fmt.Errorf("patient: %w", err)
	}
	if inj.DoseValue == 0 && inj.Medication != nil {
		inj.DoseValue = inj.Medication.SuggestedDoseValue(inj.DosageMg())
	}
	inj.IsPaid = paid

	var rec *Record
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.injections.Create(ctx, inj); err != nil {
			return err
		}
		if !paid || !inj.DoseValue.IsPositive() {
			return nil
		}
		rec = &Record{
			PatientID:   &inj.PatientID,
			Amount:      inj.DoseValue,
			Description: doseDescription(inj),
			DueDate:     inj.AppliedAt,
			Status:      StatusPaid,
			InjectionID: &inj.ID,
		}
		return s.records.Create(ctx, rec)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)

	ev := zerolog.Ctx(ctx).Info().
		Str("injection_id", inj.ID.String()).
		Str("patient_id", inj.PatientID.String()).
		Str("dose_value", inj.DoseValue.String()).
		Bool("paid", paid)
	if rec != nil {
		ev = ev.Str("record_id", rec.ID.String())
	}
	ev.Msg("injection registered")
	return nil
}

// UpdateInjection applies a correction. The patient and paid flag are kept;
// a paid injection's linked record follows the new dose value and is created
// when the injection was settled before it had one.
func (s *Service) UpdateInjection(ctx context.Context, inj *dosing.Injection) error {
	existing, err := s.injections.GetByID(ctx, inj.ID)
	if err != nil {
		return err
	}
	inj.PatientID = existing.PatientID
	inj.IsPaid = existing.IsPaid
	if err := s.prepareInjection(ctx, inj); err != nil {
		return err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.injections.Update(ctx, inj); err != nil {
			return err
		}
		if !existing.IsPaid {
			return nil
		}
		rec, err := s.records.FindPaidByInjection(ctx, inj.ID)
		if errors.Is(err, ErrNotFound) {
			// Paid while the dose had no value: the record follows once it does.
			if !inj.DoseValue.IsPositive() {
				return nil
			}
			return s.records.Create(ctx, &Record{
				PatientID:   &inj.PatientID,
				Amount:      inj.DoseValue,
				Description: doseDescription(inj),
				DueDate:     inj.AppliedAt,
				Status:      StatusPaid,
				InjectionID: &inj.ID,
			})
		}
		if err != nil {
			return err
		}
		if rec.Amount == inj.DoseValue {
			return nil
		}
		rec.Amount = inj.DoseValue
		return s.records.Update(ctx, rec)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("injection_id", inj.ID.String()).Msg("injection updated")
	return nil
}

// MarkInjectionPaid settles an unpaid injection. An open confirmation
// request for it is promoted to Pago; otherwise a new Pago record dated
// today is created. Doses without value are flagged paid with no record.
func (s *Service) MarkInjectionPaid(ctx context.Context, id uuid.UUID) (*Record, error) {
	inj, err := s.injections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inj.IsPaid {
		return nil, ErrAlreadyPaid
	}

	var rec *Record
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.injections.SetPaid(ctx, id, true); err != nil {
			return err
		}
		if !inj.DoseValue.IsPositive() {
			return nil
		}
		processing := StatusProcessing
		open, err := s.records.List(ctx, RecordFilter{InjectionID: &id, Status: &processing})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			rec = open[0]
			rec.Status = StatusPaid
			rec.Amount = inj.DoseValue
			return s.records.Update(ctx, rec)
		}
		rec = &Record{
			PatientID:   &inj.PatientID,
			Amount:      inj.DoseValue,
			Description: doseDescription(inj),
			DueDate:     s.Today(),
			Status:      StatusPaid,
			InjectionID: &inj.ID,
		}
		return s.records.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("injection_id", id.String()).Msg("injection marked paid")
	return rec, nil
}

// DeleteInjection unlinks the injection's records, which stay in the
// ledger as plain entries, then removes it.
func (s *Service) DeleteInjection(ctx context.Context, id uuid.UUID) error {
	var unlinked int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.records.UnlinkInjection(ctx, id)
		if err != nil {
			return err
		}
		unlinked = n
		return s.injections.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("injection_id", id.String()).Int64("records_unlinked", unlinked).Msg("injection deleted")
	return nil
}

// =========== Financial records ===========

// CreateRecord stores an ad-hoc or injection-linked record. A Pago record
// linked to an injection marks it paid.
func (s *Service) CreateRecord(ctx context.Context, rec *Record) error {
	if rec.Amount < 0 {
		return invalid("amount must not be negative")
	}
	rec.Description = strings.TrimSpace(rec.Description)
	status, err := ParseStatus(string(rec.Status))
	if err != nil {
		return err
	}
	rec.Status = status.Stored()
	if rec.DueDate.IsZero() {
		rec.DueDate = s.Today()
	}

	var inj *dosing.Injection
	if rec.InjectionID != nil {
		inj, err = s.injections.GetByID(ctx, *rec.InjectionID)
		if err != nil {
			return fmt.Errorf("injection: %w", err)
		}
		if rec.PatientID == nil {
			rec.PatientID = &inj.PatientID
		} else if *rec.PatientID != inj.PatientID {
			return ErrForbidden
		}
		if rec.Status == StatusPaid && inj.IsPaid {
			return ErrAlreadyPaid
		}
	}
	if rec.PatientID != nil {
		if _, err := s.patients.GetByID(ctx, *rec.PatientID); err != nil {
			return fmt.Errorf("patient: %w", err)
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, rec); err != nil {
			return err
		}
		if inj != nil && rec.Status == StatusPaid {
			return s.injections.SetPaid(ctx, inj.ID, true)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("record_id", rec.ID.String()).Str("status", string(rec.Status)).Msg("financial record created")
	return nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.ViewStatus = rec.Classify(s.Today())
	return rec, nil
}

// ListRecords returns records with their status as of today.
func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]*Record, error) {
	items, err := s.records.List(ctx, f)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	for _, r := range items {
		r.ViewStatus = r.Classify(today)
	}
	return items, nil
}

// UpdateRecord changes amount, description, due date and status. Moving a
// linked record into or out of Pago flips the injection's paid flag.
func (s *Service) UpdateRecord(ctx context.Context, rec *Record) error {
	existing, err := s.records.GetByID(ctx, rec.ID)
	if err != nil {
		return err
	}
	if rec.Amount < 0 {
		return invalid("amount must not be negative")
	}
	// An omitted status keeps the stored one.
	if rec.Status == "" {
		rec.Status = existing.Status
	}
	status, err := ParseStatus(string(rec.Status))
	if err != nil {
		return err
	}
	rec.Status = status.Stored()
	rec.Description = strings.TrimSpace(rec.Description)
	rec.PatientID = existing.PatientID
	rec.InjectionID = existing.InjectionID
	if rec.DueDate.IsZero() {
		rec.DueDate = existing.DueDate
	}

	wasPaid, nowPaid := existing.Status == StatusPaid, rec.Status == StatusPaid
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if rec.InjectionID != nil && !wasPaid && nowPaid {
			inj, err := s.injections.GetByID(ctx, *rec.InjectionID)
			if err != nil {
				return fmt.Errorf("injection: %w", err)
			}
			if inj.IsPaid {
				return ErrAlreadyPaid
			}
		}
		if err := s.records.Update(ctx, rec); err != nil {
			return err
		}
		if rec.InjectionID != nil && wasPaid != nowPaid {
			return s.injections.SetPaid(ctx, *rec.InjectionID, nowPaid)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("record_id", rec.ID.String()).Str("status", string(rec.Status)).Msg("financial record updated")
	return nil
}

// DeleteRecord removes a record. A linked injection is reset to unpaid
// unless another Pago record still settles it.
func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	existing, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.records.Delete(ctx, id); err != nil {
			return err
		}
		if existing.InjectionID == nil {
			return nil
		}
		_, err := s.records.FindPaidByInjection(ctx, *existing.InjectionID)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}
		err = s.injections.SetPaid(ctx, *existing.InjectionID, false)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("record_id", id.String()).Msg("financial record deleted")
	return nil
}

// =========== Payment confirmation ===========

// RequestPaymentConfirmation lets a patient declare payment for their own
// unpaid injections. Each gets one Em Processamento record awaiting staff
// approval; injections already paid, without value or already awaiting
// approval are skipped. With no ids every unpaid injection is included.
func (s *Service) RequestPaymentConfirmation(ctx context.Context, patientID uuid.UUID, injectionIDs []uuid.UUID) ([]*Record, error) {
	var candidates []*dosing.Injection
	if len(injectionIDs) == 0 {
		items, err := s.injections.List(ctx, dosing.InjectionFilter{PatientID: &patientID, Unpaid: true})
		if err != nil {
			return nil, err
		}
		candidates = items
	} else {
		seen := make(map[uuid.UUID]bool, len(injectionIDs))
		for _, id := range injectionIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			inj, err := s.injections.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("injection %s: %w", id, err)
			}
			if inj.PatientID != patientID {
				return nil, ErrForbidden
			}
			candidates = append(candidates, inj)
		}
	}

	today := s.Today()
	created := make([]*Record, 0, len(candidates))
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		processing := StatusProcessing
		for _, inj := range candidates {
			if inj.IsPaid || !inj.DoseValue.IsPositive() {
				continue
			}
			open, err := s.records.List(ctx, RecordFilter{InjectionID: &inj.ID, Status: &processing})
			if err != nil {
				return err
			}
			if len(open) > 0 {
				continue
			}
			rec := &Record{
				PatientID:   &patientID,
				Amount:      inj.DoseValue,
				Description: "Confirmação de pagamento: " + doseDescription(inj),
				DueDate:     today,
				Status:      StatusProcessing,
				InjectionID: &inj.ID,
			}
			if err := s.records.Create(ctx, rec); err != nil {
				return err
			}
			created = append(created, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		s.invalidate(ctx)
	}
	zerolog.Ctx(ctx).Info().Str("patient_id", patientID.String()).Int("requested", len(created)).Msg("payment confirmation requested")
	return created, nil
}

// ApproveRecord settles a record and its linked injection.
func (s *Service) ApproveRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusPaid {
		return nil, ErrAlreadyPaid
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if rec.InjectionID != nil {
			inj, err := s.injections.GetByID(ctx, *rec.InjectionID)
			if err != nil {
				return fmt.Errorf("injection: %w", err)
			}
			if inj.IsPaid {
				return ErrAlreadyPaid
			}
			if err := s.injections.SetPaid(ctx, inj.ID, true); err != nil {
				return err
			}
			// The dose may have been corrected since the request was made.
			if inj.DoseValue.IsPositive() {
				rec.Amount = inj.DoseValue
			}
		}
		rec.Status = StatusPaid
		return s.records.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("record_id", id.String()).Msg("payment approved")
	return rec, nil
}

// RejectRecord discards a payment confirmation request.
func (s *Service) RejectRecord(ctx context.Context, id uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	zerolog.Ctx(ctx).Info().Str("record_id", id.String()).Msg("payment rejected")
	return nil
}

// =========== Views ===========

// Dashboard computes the clinic-wide ledger for today.
func (s *Service) Dashboard(ctx context.Context) (*Ledger, error) {
	today := s.Today()
	key := dashboardPrefix + today.String()

	var cached Ledger
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
	} else if ok {
		return &cached, nil
	}

	injs, err := s.injections.List(ctx, dosing.InjectionFilter{})
	if err != nil {
		return nil, err
	}
	recs, err := s.records.List(ctx, RecordFilter{})
	if err != nil {
		return nil, err
	}
	l := ComputeLedger(injs, recs, today)

	if err := s.cache.SetJSON(ctx, key, l, s.cacheTTL); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
	}
	return l, nil
}

// Debtors ranks patients by outstanding balance.
func (s *Service) Debtors(ctx context.Context) ([]BalanceRow, error) {
	l, err := s.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	injs, err := s.injections.List(ctx, dosing.InjectionFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string)
	for _, inj := range injs {
		if inj.Patient != nil {
			names[inj.Patient.ID] = inj.Patient.Name
		}
	}
	return l.Debtors(names), nil
}

// PatientSummary is the per-patient financial and clinical overview.
type PatientSummary struct {
	Patient         *patient.Patient     `json:"patient"`
	Balance         PatientBalance       `json:"balance"`
	Outstanding     money.Money          `json:"outstanding"`
	Injections      int                  `json:"injections"`
	Savings         *SavingsEstimate     `json:"savings,omitempty"`
	SavingsSurfaced bool                 `json:"savings_surfaced"`
	Trend           *patient.WeightTrend `json:"weight_trend,omitempty"`
	BMI             float64              `json:"bmi,omitempty"`
	BMICategory     string               `json:"bmi_category,omitempty"`
}

func (s *Service) PatientSummary(ctx context.Context, patientID uuid.UUID) (*PatientSummary, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	injs, err := s.injections.List(ctx, dosing.InjectionFilter{PatientID: &patientID})
	if err != nil {
		return nil, err
	}
	recs, err := s.records.List(ctx, RecordFilter{PatientID: &patientID})
	if err != nil {
		return nil, err
	}

	today := s.Today()
	l := ComputeLedger(injs, recs, today)
	bal := l.PerPatient[patientID]
	sum := &PatientSummary{
		Patient:     p,
		Balance:     bal,
		Outstanding: bal.Outstanding(),
		Injections:  len(injs),
	}
	sum.Savings = EstimateSavings(injs, today, s.savings)
	sum.SavingsSurfaced = sum.Savings.Surfaced()

	var points []patient.WeightPoint
	if p.InitialWeightKg != nil {
		points = append(points, patient.WeightPoint{Date: calendar.FromTime(p.CreatedAt.In(s.loc)), WeightKg: *p.InitialWeightKg})
	}
	current := 0.0
	if p.InitialWeightKg != nil {
		current = *p.InitialWeightKg
	}
	for _, inj := range injs {
		if inj.PatientWeightKg != nil && *inj.PatientWeightKg > 0 {
			points = append(points, patient.WeightPoint{Date: inj.AppliedAt, WeightKg: *inj.PatientWeightKg})
			current = *inj.PatientWeightKg
		}
	}
	target := 0.0
	if p.TargetWeightKg != nil {
		target = *p.TargetWeightKg
	}
	sum.Trend = patient.ProjectWeightTrend(points, target)
	if p.HeightCm != nil {
		sum.BMI = patient.BMI(current, *p.HeightCm)
		sum.BMICategory = patient.BMICategory(sum.BMI)
	}
	return sum, nil
}

// PortalSummary is PatientSummary as shown to the patient: the savings
// estimate is hidden unless it is positive.
func (s *Service) PortalSummary(ctx context.Context, patientID uuid.UUID) (*PatientSummary, error) {
	sum, err := s.PatientSummary(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !sum.SavingsSurfaced {
		sum.Savings = nil
	}
	return sum, nil
}

// MonthlyGroups returns records grouped by month, optionally for one patient.
func (s *Service) MonthlyGroups(ctx context.Context, patientID *uuid.UUID) ([]MonthGroup, error) {
	recs, err := s.ListRecords(ctx, RecordFilter{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	return GroupByMonth(recs), nil
}
