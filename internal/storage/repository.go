package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertWatchQuerySQL = `INSERT INTO watch_queries (
        id,
        query,
        category,
        max_buy_price,
        min_profit,
        min_deal_score,
        enabled
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, query, category, max_buy_price, min_profit, min_deal_score,
              enabled, last_scanned, scan_count, opportunities_found, created_at;`

	watchQueryColumns = `id, query, category, max_buy_price, min_profit, min_deal_score,
        enabled, last_scanned, scan_count, opportunities_found, created_at`

	getWatchQuerySQL = `SELECT ` + watchQueryColumns + `
    FROM watch_queries
    WHERE id = $1;`

	listWatchQueriesSQL = `SELECT ` + watchQueryColumns + `
    FROM watch_queries
    ORDER BY created_at;`

	listEnabledWatchQueriesSQL = `SELECT ` + watchQueryColumns + `
    FROM watch_queries
    WHERE enabled
    ORDER BY created_at;`

	updateWatchQuerySQL = `UPDATE watch_queries
    SET query          = COALESCE($2, query),
        category       = COALESCE($3, category),
        max_buy_price  = COALESCE($4, max_buy_price),
        min_profit     = COALESCE($5, min_profit),
        min_deal_score = COALESCE($6, min_deal_score),
        enabled        = COALESCE($7, enabled)
    WHERE id = $1
    RETURNING ` + watchQueryColumns + `;`

	deleteWatchQuerySQL = `DELETE FROM watch_queries WHERE id = $1;`

	markWatchScannedSQL = `UPDATE watch_queries
    SET last_scanned        = now(),
        scan_count          = scan_count + 1,
        opportunities_found = opportunities_found + $2
    WHERE id = $1;`

	insertOpportunitySQL = `INSERT INTO opportunities (
        id,
        watch_query_id,
        source_item_id,
        title,
        current_price,
        estimated_sell_price,
        estimated_profit,
        deal_score,
        deal_verdict,
        item_url,
        image_url,
        condition,
        seller,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (source_item_id) DO NOTHING;`

	opportunityColumns = `id, watch_query_id, source_item_id, title, current_price,
        estimated_sell_price, estimated_profit, deal_score, deal_verdict,
        item_url, image_url, condition, seller, found_at, status, inventory_item_id`

	getOpportunitySQL = `SELECT ` + opportunityColumns + `
    FROM opportunities
    WHERE id = $1;`

	listOpportunitiesSQL = `SELECT ` + opportunityColumns + `
    FROM opportunities
    WHERE ($1 = '' OR status = $1)
      AND ($2 = '' OR watch_query_id = $2)
      AND deal_score >= $3
    ORDER BY found_at DESC
    LIMIT $4;`

	updateOpportunityStatusSQL = `UPDATE opportunities
    SET status            = $2,
        inventory_item_id = COALESCE($3, inventory_item_id)
    WHERE id = $1
    RETURNING ` + opportunityColumns + `;`

	scannerStatsSQL = `SELECT
        (SELECT COUNT(*) FROM watch_queries WHERE enabled),
        (SELECT COUNT(*) FROM opportunities WHERE status = 'new'),
        (SELECT COUNT(*) FROM opportunities WHERE status = 'purchased'),
        (SELECT COUNT(*) FROM opportunities),
        (SELECT MAX(last_scanned) FROM watch_queries WHERE enabled);`
)

// WatchQueryStore defines persistence for saved searches.
type WatchQueryStore interface {
	CreateWatchQuery(ctx context.Context, wq WatchQuery) (WatchQuery, error)
	GetWatchQuery(ctx context.Context, id string) (WatchQuery, error)
	ListWatchQueries(ctx context.Context, enabledOnly bool) ([]WatchQuery, error)
	UpdateWatchQuery(ctx context.Context, id string, update WatchQueryUpdate) (WatchQuery, error)
	DeleteWatchQuery(ctx context.Context, id string) error
	MarkWatchScanned(ctx context.Context, id string, foundCount int) error
}

// OpportunityStore defines persistence for surfaced deals.
type OpportunityStore interface {
	InsertOpportunityIfAbsent(ctx context.Context, opp Opportunity) (bool, error)
	GetOpportunity(ctx context.Context, id string) (Opportunity, error)
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error)
	UpdateOpportunityStatus(ctx context.Context, id, status string, inventoryItemID *string) (Opportunity, error)
	ScannerStats(ctx context.Context) (ScannerStats, error)
}

// Store aggregates access to watch queries and opportunities.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// newID returns a short random identifier.
func newID() string {
	return uuid.NewString()[:8]
}

// CreateWatchQuery persists a new saved search and returns it with
// generated fields filled in.
func (s *Store) CreateWatchQuery(ctx context.Context, wq WatchQuery) (WatchQuery, error) {
	pool, err := s.getPool()
	if err != nil {
		return WatchQuery{}, err
	}

	if wq.ID == "" {
		wq.ID = newID()
	}

	var maxBuy interface{}
	if wq.MaxBuyPrice != nil {
		maxBuy = wq.MaxBuyPrice.String()
	}

	row := pool.QueryRow(ctx, insertWatchQuerySQL,
		wq.ID,
		wq.Query,
		wq.Category,
		maxBuy,
		wq.MinProfit.String(),
		wq.MinDealScore,
		wq.Enabled,
	)
	created, scanErr := scanWatchQuery(row)
	if scanErr != nil {
		return WatchQuery{}, fmt.Errorf("create watch query: %w", scanErr)
	}
	return created, nil
}

// GetWatchQuery loads one saved search by id.
func (s *Store) GetWatchQuery(ctx context.Context, id string) (WatchQuery, error) {
	pool, err := s.getPool()
	if err != nil {
		return WatchQuery{}, err
	}
	wq, scanErr := scanWatchQuery(pool.QueryRow(ctx, getWatchQuerySQL, id))
	if scanErr != nil {
		return WatchQuery{}, fmt.Errorf("get watch query: %w", scanErr)
	}
	return wq, nil
}

// ListWatchQueries lists saved searches, optionally only enabled ones.
func (s *Store) ListWatchQueries(ctx context.Context, enabledOnly bool) ([]WatchQuery, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := listWatchQueriesSQL
	if enabledOnly {
		query = listEnabledWatchQueriesSQL
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list watch queries: %w", queryErr)
	}
	defer rows.Close()

	queries := make([]WatchQuery, 0)
	for rows.Next() {
		wq, scanErr := scanWatchQuery(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		queries = append(queries, wq)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return queries, nil
}

// UpdateWatchQuery applies the non-nil fields of update.
func (s *Store) UpdateWatchQuery(ctx context.Context, id string, update WatchQueryUpdate) (WatchQuery, error) {
	pool, err := s.getPool()
	if err != nil {
		return WatchQuery{}, err
	}

	var maxBuy, minProfit interface{}
	if update.MaxBuyPrice != nil {
		maxBuy = update.MaxBuyPrice.String()
	}
	if update.MinProfit != nil {
		minProfit = update.MinProfit.String()
	}

	row := pool.QueryRow(ctx, updateWatchQuerySQL,
		id,
		update.Query,
		update.Category,
		maxBuy,
		minProfit,
		update.MinDealScore,
		update.Enabled,
	)
	wq, scanErr := scanWatchQuery(row)
	if scanErr != nil {
		return WatchQuery{}, fmt.Errorf("update watch query: %w", scanErr)
	}
	return wq, nil
}

// DeleteWatchQuery removes a saved search; its opportunities cascade.
func (s *Store) DeleteWatchQuery(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteWatchQuerySQL, id)
	if execErr != nil {
		return fmt.Errorf("delete watch query: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkWatchScanned records a completed scan against the query,
// incrementing its scan count and running opportunities-found total.
func (s *Store) MarkWatchScanned(ctx context.Context, id string, foundCount int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markWatchScannedSQL, id, foundCount); execErr != nil {
		return fmt.Errorf("mark watch scanned: %w", execErr)
	}
	return nil
}

// InsertOpportunityIfAbsent persists an opportunity unless one with the
// same source item id already exists. Duplicate insertion is an
// idempotent no-op reported as inserted=false, never an error.
func (s *Store) InsertOpportunityIfAbsent(ctx context.Context, opp Opportunity) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	if opp.ID == "" {
		opp.ID = newID()
	}
	if opp.Status == "" {
		opp.Status = StatusNew
	}

	cmdTag, execErr := pool.Exec(ctx, insertOpportunitySQL,
		opp.ID,
		opp.WatchQueryID,
		opp.SourceItemID,
		opp.Title,
		opp.CurrentPrice.String(),
		opp.EstimatedSellPrice.String(),
		opp.EstimatedProfit.String(),
		opp.DealScore,
		opp.DealVerdict,
		opp.ItemURL,
		opp.ImageURL,
		opp.Condition,
		opp.Seller,
		opp.Status,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert opportunity: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// GetOpportunity loads one opportunity by id.
func (s *Store) GetOpportunity(ctx context.Context, id string) (Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return Opportunity{}, err
	}
	opp, scanErr := scanOpportunity(pool.QueryRow(ctx, getOpportunitySQL, id))
	if scanErr != nil {
		return Opportunity{}, fmt.Errorf("get opportunity: %w", scanErr)
	}
	return opp, nil
}

// ListOpportunities lists opportunities matching the filter, newest
// first.
func (s *Store) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, queryErr := pool.Query(ctx, listOpportunitiesSQL,
		filter.Status,
		filter.WatchQueryID,
		filter.MinScore,
		limit,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("list opportunities: %w", queryErr)
	}
	defer rows.Close()

	opps := make([]Opportunity, 0, limit)
	for rows.Next() {
		opp, scanErr := scanOpportunity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		opps = append(opps, opp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return opps, nil
}

// UpdateOpportunityStatus moves an opportunity through its lifecycle,
// optionally linking the inventory item created on purchase.
func (s *Store) UpdateOpportunityStatus(ctx context.Context, id, status string, inventoryItemID *string) (Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return Opportunity{}, err
	}
	row := pool.QueryRow(ctx, updateOpportunityStatusSQL, id, status, inventoryItemID)
	opp, scanErr := scanOpportunity(row)
	if scanErr != nil {
		return Opportunity{}, fmt.Errorf("update opportunity status: %w", scanErr)
	}
	return opp, nil
}

// ScannerStats summarises the persisted scanner footprint.
func (s *Store) ScannerStats(ctx context.Context) (ScannerStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return ScannerStats{}, err
	}

	var (
		stats    ScannerStats
		lastScan sql.NullTime
	)
	if scanErr := pool.QueryRow(ctx, scannerStatsSQL).Scan(
		&stats.ActiveWatches,
		&stats.NewOpportunities,
		&stats.Purchased,
		&stats.TotalOpportunities,
		&lastScan,
	); scanErr != nil {
		return ScannerStats{}, fmt.Errorf("scanner stats: %w", scanErr)
	}
	if lastScan.Valid {
		ts := lastScan.Time
		stats.LastScan = &ts
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatchQuery(row rowScanner) (WatchQuery, error) {
	var (
		wq          WatchQuery
		category    sql.NullString
		maxBuyStr   sql.NullString
		minProfit   string
		lastScanned sql.NullTime
	)

	if err := row.Scan(
		&wq.ID,
		&wq.Query,
		&category,
		&maxBuyStr,
		&minProfit,
		&wq.MinDealScore,
		&wq.Enabled,
		&lastScanned,
		&wq.ScanCount,
		&wq.OpportunitiesFound,
		&wq.CreatedAt,
	); err != nil {
		return WatchQuery{}, err
	}

	profit, err := decimal.NewFromString(minProfit)
	if err != nil {
		return WatchQuery{}, fmt.Errorf("parse min profit: %w", err)
	}
	wq.MinProfit = profit

	if category.Valid {
		value := category.String
		wq.Category = &value
	}
	if maxBuyStr.Valid {
		maxBuy, convErr := decimal.NewFromString(maxBuyStr.String)
		if convErr != nil {
			return WatchQuery{}, fmt.Errorf("parse max buy price: %w", convErr)
		}
		wq.MaxBuyPrice = &maxBuy
	}
	if lastScanned.Valid {
		ts := lastScanned.Time
		wq.LastScanned = &ts
	}
	return wq, nil
}

func scanOpportunity(row rowScanner) (Opportunity, error) {
	var (
		opp          Opportunity
		currentStr   string
		estSellStr   string
		profitStr    string
		inventoryRef sql.NullString
	)

	if err := row.Scan(
		&opp.ID,
		&opp.WatchQueryID,
		&opp.SourceItemID,
		&opp.Title,
		&currentStr,
		&estSellStr,
		&profitStr,
		&opp.DealScore,
		&opp.DealVerdict,
		&opp.ItemURL,
		&opp.ImageURL,
		&opp.Condition,
		&opp.Seller,
		&opp.FoundAt,
		&opp.Status,
		&inventoryRef,
	); err != nil {
		return Opportunity{}, err
	}

	var convErr error
	if opp.CurrentPrice, convErr = decimal.NewFromString(currentStr); convErr != nil {
		return Opportunity{}, fmt.Errorf("parse current price: %w", convErr)
	}
	if opp.EstimatedSellPrice, convErr = decimal.NewFromString(estSellStr); convErr != nil {
		return Opportunity{}, fmt.Errorf("parse estimated sell price: %w", convErr)
	}
	if opp.EstimatedProfit, convErr = decimal.NewFromString(profitStr); convErr != nil {
		return Opportunity{}, fmt.Errorf("parse estimated profit: %w", convErr)
	}

	if inventoryRef.Valid {
		value := inventoryRef.String
		opp.InventoryItemID = &value
	}
	return opp, nil
}
