package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type RuleRepo struct {
	db DB
}

const ruleColumns = `id, listing_id, vendor_id, rule_type, frequency, weekdays, date,
	start_time, duration_minutes, capacity, booking_deadline_hours,
	generate_days_in_advance, active, created_at, updated_at`

func scanRule(row pgx.Row) (domain.AvailabilityRule, error) {
	var (
		r        domain.AvailabilityRule
		weekdays []int32
	)
	err := row.Scan(
		&r.ID, &r.ListingID, &r.VendorID, &r.Type, &r.Frequency, &weekdays, &r.Date,
		&r.StartTime, &r.DurationMinutes, &r.Capacity, &r.BookingDeadlineHours,
		&r.GenerateDaysInAdvance, &r.Active, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.AvailabilityRule{}, err
	}
	for _, d := range weekdays {
		r.Weekdays = append(r.Weekdays, int(d))
	}
	return r, nil
}

func weekdayArg(days []int) []int32 {
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

func (r *RuleRepo) Create(ctx context.Context, rule *domain.AvailabilityRule) error {
	const op = "postgres.RuleRepo.Create"

	_, err := r.db.Exec(ctx,
		`INSERT INTO availability_rules(`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rule.ID, rule.ListingID, rule.VendorID, rule.Type, rule.Frequency,
		weekdayArg(rule.Weekdays), rule.Date, rule.StartTime, rule.DurationMinutes,
		rule.Capacity, rule.BookingDeadlineHours, rule.GenerateDaysInAdvance,
		rule.Active, rule.CreatedAt, rule.UpdatedAt,
	)
	return wrapDBErr(op, err)
}

func (r *RuleRepo) Get(ctx context.Context, id string) (*domain.AvailabilityRule, error) {
	const op = "postgres.RuleRepo.Get"

	rule, err := scanRule(r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	return &rule, nil
}

func (r *RuleRepo) Update(ctx context.Context, rule *domain.AvailabilityRule) error {
	const op = "postgres.RuleRepo.Update"

	tag, err := r.db.Exec(ctx,
		`UPDATE availability_rules
		    SET rule_type = $2, frequency = $3, weekdays = $4, date = $5,
		        start_time = $6, duration_minutes = $7, capacity = $8,
		        booking_deadline_hours = $9, generate_days_in_advance = $10,
		        active = $11, updated_at = $12
		  WHERE id = $1`,
		rule.ID, rule.Type, rule.Frequency, weekdayArg(rule.Weekdays), rule.Date,
		rule.StartTime, rule.DurationMinutes, rule.Capacity,
		rule.BookingDeadlineHours, rule.GenerateDaysInAdvance, rule.Active, rule.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *RuleRepo) Delete(ctx context.Context, id string) error {
	const op = "postgres.RuleRepo.Delete"

	tag, err := r.db.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *RuleRepo) ListByListing(ctx context.Context, listingID string) ([]domain.AvailabilityRule, error) {
	const op = "postgres.RuleRepo.ListByListing"

	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM availability_rules
		  WHERE listing_id = $1
		  ORDER BY created_at, id`, listingID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanRule)
	return out, wrapDBErr(op, err)
}

func (r *RuleRepo) ListActive(ctx context.Context) ([]domain.AvailabilityRule, error) {
	const op = "postgres.RuleRepo.ListActive"

	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM availability_rules
		  WHERE active
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanRule)
	return out, wrapDBErr(op, err)
}

func (r *RuleRepo) HasBookings(ctx context.Context, ruleID string) (bool, error) {
	const op = "postgres.RuleRepo.HasBookings"

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM bookings b JOIN slots s ON s.id = b.slot_id
		    WHERE s.rule_id = $1)`, ruleID).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}
	return exists, nil
}
