package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/shared/postgresql"
)

// PostgresVendorDirectory reads the vendor directory tables maintained by the
// vendor onboarding collaborator. Backlog is derived from the jobs table.
type PostgresVendorDirectory struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresVendorDirectory(pg *postgresql.Client, logger *slog.Logger) *PostgresVendorDirectory {
	return &PostgresVendorDirectory{
		db:     pg.GetDB(),
		logger: logger,
	}
}

func (d *PostgresVendorDirectory) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	query := `
		SELECT v.vendor_id, v.name, v.phone, v.city, v.lat, v.lng, v.active,
		       COUNT(j.job_id) FILTER (WHERE j.status <> $1) AS backlog
		FROM vendors v
		LEFT JOIN jobs j ON j.assigned_vendor_id = v.vendor_id
		GROUP BY v.vendor_id, v.name, v.phone, v.city, v.lat, v.lng, v.active
		ORDER BY v.name
	`

	var vendors []domain.Vendor
	err := d.db.SelectContext(ctx, &vendors, query, domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}

	return vendors, nil
}

// PostgresComplianceSource surfaces document tasks recorded by the documents
// collaborator. Content validation happens upstream; this is a pass-through.
type PostgresComplianceSource struct {
	db *sqlx.DB
}

func NewPostgresComplianceSource(pg *postgresql.Client) *PostgresComplianceSource {
	return &PostgresComplianceSource{db: pg.GetDB()}
}

func (c *PostgresComplianceSource) ListTasks(ctx context.Context) ([]domain.ComplianceTask, error) {
	query := `
		SELECT d.vendor_id, v.name AS vendor_name, d.document, d.description,
		       GREATEST(0, (d.due_date - CURRENT_DATE))::int AS due_in_days
		FROM vendor_documents d
		JOIN vendors v ON v.vendor_id = d.vendor_id
		WHERE d.resolved = FALSE
		ORDER BY d.due_date ASC
	`

	var tasks []struct {
		VendorID    string `db:"vendor_id"`
		VendorName  string `db:"vendor_name"`
		Document    string `db:"document"`
		Description string `db:"description"`
		DueInDays   int    `db:"due_in_days"`
	}
	err := c.db.SelectContext(ctx, &tasks, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance tasks: %w", err)
	}

	out := make([]domain.ComplianceTask, len(tasks))
	for i, t := range tasks {
		out[i] = domain.ComplianceTask{
			VendorID:    t.VendorID,
			VendorName:  t.VendorName,
			Document:    t.Document,
			Description: t.Description,
			DueInDays:   t.DueInDays,
		}
	}
	return out, nil
}

// StaticVendorDirectory serves a fixed vendor list; used in tests and when
// running without the directory tables.
type StaticVendorDirectory struct {
	Vendors []domain.Vendor
}

func (d *StaticVendorDirectory) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	out := make([]domain.Vendor, len(d.Vendors))
	copy(out, d.Vendors)
	return out, nil
}

// StaticComplianceSource serves a fixed task list.
type StaticComplianceSource struct {
	Tasks []domain.ComplianceTask
}

func (c *StaticComplianceSource) ListTasks(ctx context.Context) ([]domain.ComplianceTask, error) {
	out := make([]domain.ComplianceTask, len(c.Tasks))
	copy(out, c.Tasks)
	return out, nil
}
