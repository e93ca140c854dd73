package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

const mysqlDuplicateEntry = 1062

const (
	listingColumns = `id, farmer_id, farmer_name, name, variety, area, unit, price_per_unit,
		sowing_date, harvest_date, status, created_at, updated_at`
	shipmentColumns = `id, listing_id, crop_name, quantity, unit, origin, destination, buyer_id, buyer_name,
		farmer_id, farmer_name, carrier_id, status, total_price, platform_fee, created_at, updated_at`
	notificationColumns = `id, user_id, message, severity, is_read, created_at`
	accountColumns      = `id, name, email, farm, role, price_per_km, max_capacity, password_hash, created_at`
)

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var (
	_ port.MarketplaceRepository = (*MySQLAdapter)(nil)
	_ port.AccountRepository     = (*MySQLAdapter)(nil)
)

func (m *MySQLAdapter) CreateListing(ctx context.Context, l domain.Listing) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (:id, :farmer_id, :farmer_name, :name, :variety, :area, :unit, :price_per_unit,
			:sowing_date, :harvest_date, :status, :created_at, :updated_at)`, l)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	var l domain.Listing
	err := m.db.GetContext(ctx, &l, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("query listing: %w", err)
	}
	return l, nil
}

func (m *MySQLAdapter) UpdateListing(ctx context.Context, l domain.Listing, expected domain.ListingStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE listings
		SET name = ?, variety = ?, area = ?, unit = ?, price_per_unit = ?,
			sowing_date = ?, harvest_date = ?, status = ?, updated_at = ?
		WHERE id = ? AND farmer_id = ? AND status = ?`,
		l.Name, l.Variety, l.Area, l.Unit, l.PricePerUnit,
		l.SowingDate, l.HarvestDate, l.Status, l.UpdatedAt,
		l.ID, l.FarmerID, expected,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	return requireRow(result)
}

func (m *MySQLAdapter) DeleteListing(ctx context.Context, id, farmerID string) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM listings WHERE id = ? AND farmer_id = ? AND status <> ?`,
		id, farmerID, domain.ListingStatusSold,
	)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return requireRow(result)
}

func (m *MySQLAdapter) ListListings(ctx context.Context, filter port.ListingFilter) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1 = 1`
	var args []any
	if filter.FarmerID != "" {
		query += ` AND farmer_id = ?`
		args = append(args, filter.FarmerID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	var list []domain.Listing
	if err := m.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	return list, nil
}

// Reserve marks the listing sold and records the order in one transaction.
// The listing update only matches an active row with enough quantity, so two
// buyers racing for the same lot cannot both commit.
func (m *MySQLAdapter) Reserve(ctx context.Context, shipment domain.Shipment, notices []domain.Notification) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND area >= ?`,
		domain.ListingStatusSold, shipment.CreatedAt,
		shipment.ListingID, domain.ListingStatusActive, shipment.Quantity,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES (:id, :listing_id, :crop_name, :quantity, :unit, :origin, :destination, :buyer_id, :buyer_name,
			:farmer_id, :farmer_name, :carrier_id, :status, :total_price, :platform_fee, :created_at, :updated_at)`,
		shipment,
	)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}

	if err := insertNotifications(ctx, tx, notices); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) AcceptShipment(ctx context.Context, shipmentID, carrierID string, notices []domain.Notification) error {
	return m.transition(ctx, notices, `
		UPDATE shipments SET status = ?, carrier_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.ShipmentStatusAccepted, carrierID, time.Now().UTC(),
		shipmentID, domain.ShipmentStatusPending,
	)
}

func (m *MySQLAdapter) RejectShipment(ctx context.Context, shipmentID, carrierID string) error {
	return m.transition(ctx, nil, `
		UPDATE shipments SET status = ?, carrier_id = '', updated_at = ?
		WHERE id = ? AND (status = ? OR (status = ? AND carrier_id = ?))`,
		domain.ShipmentStatusRejected, time.Now().UTC(),
		shipmentID, domain.ShipmentStatusPending, domain.ShipmentStatusAccepted, carrierID,
	)
}

func (m *MySQLAdapter) DeliverShipment(ctx context.Context, shipmentID, carrierID string, notices []domain.Notification) error {
	return m.transition(ctx, notices, `
		UPDATE shipments SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND carrier_id = ?`,
		domain.ShipmentStatusDelivered, time.Now().UTC(),
		shipmentID, domain.ShipmentStatusAccepted, carrierID,
	)
}

// CancelShipment withdraws the order and puts its listing back on the market.
func (m *MySQLAdapter) CancelShipment(ctx context.Context, shipmentID, buyerID string, notices []domain.Notification) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE shipments SET status = ?, updated_at = ?
		WHERE id = ? AND buyer_id = ? AND status IN (?, ?)`,
		domain.ShipmentStatusCancelled, now,
		shipmentID, buyerID, domain.ShipmentStatusPending, domain.ShipmentStatusRejected,
	)
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	var listingID string
	if err := tx.GetContext(ctx, &listingID, `SELECT listing_id FROM shipments WHERE id = ?`, shipmentID); err != nil {
		return fmt.Errorf("query shipment listing: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.ListingStatusActive, now, listingID, domain.ListingStatusSold,
	); err != nil {
		return fmt.Errorf("reopen listing: %w", err)
	}

	if err := insertNotifications(ctx, tx, notices); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) transition(ctx context.Context, notices []domain.Notification, query string, args ...any) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	if err := insertNotifications(ctx, tx, notices); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetShipment(ctx context.Context, id string) (domain.Shipment, error) {
	var s domain.Shipment
	err := m.db.GetContext(ctx, &s, `SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Shipment{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Shipment{}, fmt.Errorf("query shipment: %w", err)
	}
	return s, nil
}

func (m *MySQLAdapter) ListShipments(ctx context.Context, filter port.ShipmentFilter) ([]domain.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE 1 = 1`
	var args []any
	if len(filter.ShipmentIDs) > 0 {
		query += ` AND id IN (?)`
		args = append(args, filter.ShipmentIDs)
	}
	if filter.BuyerID != "" {
		query += ` AND buyer_id = ?`
		args = append(args, filter.BuyerID)
	}
	if filter.FarmerID != "" {
		query += ` AND farmer_id = ?`
		args = append(args, filter.FarmerID)
	}
	if filter.CarrierID != "" {
		query += ` AND carrier_id = ?`
		args = append(args, filter.CarrierID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?)`
		args = append(args, filter.Statuses)
	}
	query += ` ORDER BY created_at DESC`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand shipment filter: %w", err)
	}

	var list []domain.Shipment
	if err := m.db.SelectContext(ctx, &list, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}
	return list, nil
}

func (m *MySQLAdapter) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	var list []domain.Notification
	err := m.db.SelectContext(ctx, &list, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return list, nil
}

func (m *MySQLAdapter) MarkNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (:id, :name, :email, :farm, :role, :price_per_km, :max_capacity, :password_hash, :created_at)`, a)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return port.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return m.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (m *MySQLAdapter) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return m.getAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
}

func (m *MySQLAdapter) getAccount(ctx context.Context, query string, arg string) (domain.Account, error) {
	var a domain.Account
	err := m.db.GetContext(ctx, &a, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func insertNotifications(ctx context.Context, tx *sqlx.Tx, notices []domain.Notification) error {
	if len(notices) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :user_id, :message, :severity, :is_read, :created_at)`, notices)
	if err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return port.ErrConflict
	}
	return nil
}
