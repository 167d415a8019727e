package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/aiarmour/armour/internal/factcheck"
)

// Lookup reads one fact from the business tables. The field names an aspect
// of a record ("invoice.status", "inventory.quantity", "price", ...) and the
// key identifies the record. Returns factcheck.ErrNotFound when no record
// exists, so the checker can distinguish a missing record from a store
// failure.
func (s *SQLiteStore) Lookup(ctx context.Context, field, key string) (string, error) {
	var query string
	numeric := false

	switch field {
	case "invoice.status":
		query = `SELECT status FROM invoices WHERE id = ?`
	case "invoice.amount":
		query = `SELECT amount FROM invoices WHERE id = ?`
		numeric = true
	case "inventory.quantity":
		query = `SELECT quantity FROM inventory WHERE item = ?`
		numeric = true
	case "price":
		query = `SELECT unit_price FROM pricing WHERE item = ?`
		numeric = true
	case "lead.status":
		query = `SELECT status FROM leads WHERE id = ?`
	case "lead.value":
		query = `SELECT estimated_value FROM leads WHERE id = ?`
		numeric = true
	case "installation.status":
		query = `SELECT status FROM installations WHERE id = ?`
	default:
		return "", fmt.Errorf("unknown fact field %q: %w", field, factcheck.ErrNotFound)
	}

	row := s.db.QueryRowContext(ctx, query, key)
	if numeric {
		var v float64
		if err := row.Scan(&v); err != nil {
			return "", lookupErr(field, key, err)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}

	var v string
	if err := row.Scan(&v); err != nil {
		return "", lookupErr(field, key, err)
	}
	return v, nil
}

func lookupErr(field, key string, err error) error {
	if err == sql.ErrNoRows {
		return fmt.Errorf("no record for %s[%s]: %w", field, key, factcheck.ErrNotFound)
	}
	return fmt.Errorf("failed to look up %s[%s]: %w", field, key, err)
}

// UpsertInvoice writes an invoice record.
func (s *SQLiteStore) UpsertInvoice(ctx context.Context, id, client string, amount float64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, client, amount, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client = excluded.client,
			amount = excluded.amount,
			status = excluded.status
	`, id, client, amount, status)
	return err
}

// SetInventory writes an inventory level.
func (s *SQLiteStore) SetInventory(ctx context.Context, item string, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (item, quantity)
		VALUES (?, ?)
		ON CONFLICT(item) DO UPDATE SET quantity = excluded.quantity
	`, item, quantity)
	return err
}

// SetPrice writes a unit price.
func (s *SQLiteStore) SetPrice(ctx context.Context, item string, unitPrice float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pricing (item, unit_price)
		VALUES (?, ?)
		ON CONFLICT(item) DO UPDATE SET unit_price = excluded.unit_price
	`, item, unitPrice)
	return err
}

// UpsertLead writes a lead record.
func (s *SQLiteStore) UpsertLead(ctx context.Context, id, name, email, company, status string, estimatedValue float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, name, email, company, status, estimated_value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			company = excluded.company,
			status = excluded.status,
			estimated_value = excluded.estimated_value
	`, id, name, email, company, status, estimatedValue)
	return err
}

// UpsertInstallation writes an installation record.
func (s *SQLiteStore) UpsertInstallation(ctx context.Context, id, client, address, contractorID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installations (id, client, address, contractor_id, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client = excluded.client,
			address = excluded.address,
			contractor_id = excluded.contractor_id,
			status = excluded.status
	`, id, client, address, contractorID, status)
	return err
}
