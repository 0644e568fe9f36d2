package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/storefront/internal/app/domain/admin"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/supabase/client"
)

const (
	adminProductColumns = `id, name, slug, status, price_cents, currency, inventory_count, category_id,
		categories:category_id (id, name, slug, description)`
	orderDetailColumns = "*, order_items(*, products:product_id(id, name, slug))"

	// UploadFunction is the edge function issuing signed upload URLs.
	UploadFunction = "admin-upload-media"
)

// --- AdminCatalogStore ------------------------------------------------------

func (s *Store) ListAdminProducts(ctx context.Context) ([]admin.Product, error) {
	var rows []adminProductRow
	if err := s.client.From("products").Select(adminProductColumns).Order("created_at", false).ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]admin.Product, len(rows))
	for i, r := range rows {
		p := r.Product
		p.Category = r.Categories
		out[i] = p
	}
	return out, nil
}

func (s *Store) GetAdminProduct(ctx context.Context, id string) (admin.Product, error) {
	var row adminProductRow
	err := s.client.From("products").Select(adminProductColumns).Eq("id", id).MaybeSingle().ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNotFound) {
		return admin.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return admin.Product{}, err
	}
	p := row.Product
	p.Category = row.Categories
	return p, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]admin.Category, error) {
	var rows []admin.Category
	if err := s.client.From("categories").Select("id, name, slug, description").Order("position", true).ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AdjustInventory calls admin_adjust_inventory. A response without a product
// record is reported as storage.ErrNotFound.
func (s *Store) AdjustInventory(ctx context.Context, productID string, delta int, reason string, meta map[string]any) (admin.Product, error) {
	resp, err := s.client.RPC(ctx, "admin_adjust_inventory", map[string]any{
		"p_product_id":     productID,
		"p_quantity_delta": delta,
		"p_reason":         reason,
		"p_context":        meta,
	})
	if err != nil {
		return admin.Product{}, err
	}
	if err := resp.Err(); err != nil {
		return admin.Product{}, err
	}
	var p admin.Product
	found, err := decodeRecord(resp.Body, &p)
	if err != nil {
		return admin.Product{}, fmt.Errorf("decode product: %w", err)
	}
	if !found {
		return admin.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) SetProductStatus(ctx context.Context, productID, status string) (admin.Product, error) {
	resp, err := s.client.From("products").Select(adminProductColumns).Eq("id", productID).ExecuteUpdate(ctx, map[string]any{"status": status})
	if err != nil {
		return admin.Product{}, err
	}
	if err := resp.Err(); err != nil {
		return admin.Product{}, err
	}
	var row adminProductRow
	found, err := decodeRecord(resp.Body, &row)
	if err != nil {
		return admin.Product{}, fmt.Errorf("decode product: %w", err)
	}
	if !found {
		return admin.Product{}, storage.ErrNotFound
	}
	p := row.Product
	p.Category = row.Categories
	return p, nil
}

func (s *Store) CreateCategory(ctx context.Context, c admin.Category) (admin.Category, error) {
	resp, err := s.client.From("categories").Select("id, name, slug, description").Single().ExecuteInsert(ctx, map[string]any{
		"name":        c.Name,
		"slug":        c.Slug,
		"description": c.Description,
	})
	if err != nil {
		return admin.Category{}, err
	}
	if err := resp.Err(); err != nil {
		return admin.Category{}, err
	}
	var created admin.Category
	if err := resp.JSON(&created); err != nil {
		return admin.Category{}, fmt.Errorf("decode category: %w", err)
	}
	return created, nil
}

// --- AdminOrderStore --------------------------------------------------------

func (s *Store) ListOrderSummaries(ctx context.Context) ([]admin.OrderSummary, error) {
	var rows []admin.OrderSummary
	if err := s.client.From("admin_order_summary").Select("*").Order("placed_at", false).ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) GetOrderDetail(ctx context.Context, id string) (admin.OrderDetail, error) {
	var row orderDetailRow
	err := s.client.From("orders").Select(orderDetailColumns).Eq("id", id).MaybeSingle().ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNotFound) {
		return admin.OrderDetail{}, storage.ErrNotFound
	}
	if err != nil {
		return admin.OrderDetail{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id, status, notes string) error {
	var note *string
	if notes != "" {
		note = &notes
	}
	resp, err := s.client.RPC(ctx, "admin_update_order_status", map[string]any{
		"p_order_id": id,
		"p_status":   status,
		"p_notes":    note,
	})
	if err != nil {
		return err
	}
	return resp.Err()
}

// --- ContentStore -----------------------------------------------------------

func (s *Store) ListSettings(ctx context.Context) ([]admin.Setting, error) {
	var rows []admin.Setting
	if err := s.client.From("settings").Select("key, value, description").Order("key", true).ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) SaveSetting(ctx context.Context, key string, value json.RawMessage) error {
	resp, err := s.client.From("settings").OnConflict("key").ExecuteUpsert(ctx, map[string]any{
		"key":        key,
		"value":      value,
		"updated_at": s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return resp.Err()
}

func (s *Store) ListMedia(ctx context.Context, limit int) ([]admin.Media, error) {
	q := s.client.From("media").Select("id, product_id, path, media_type, alt_text, created_at").Order("created_at", false)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []admin.Media
	if err := q.ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// --- MediaUploader ----------------------------------------------------------

// RequestUpload invokes the upload function, which registers the media row and
// returns a signed upload URL.
func (s *Store) RequestUpload(ctx context.Context, u admin.Upload) (admin.UploadTicket, error) {
	var alt *string
	if u.AltText != "" {
		alt = &u.AltText
	}
	res, err := s.client.Functions().Invoke(ctx, UploadFunction, map[string]any{
		"productId":   u.ProductID,
		"fileName":    u.FileName,
		"contentType": u.ContentType,
		"altText":     alt,
	})
	if err != nil {
		return admin.UploadTicket{}, err
	}
	ticket := admin.UploadTicket{
		UploadURL: res.Get("uploadUrl").String(),
		Token:     res.Get("token").String(),
		Path:      res.Get("path").String(),
	}
	if media := res.Get("media"); media.Exists() {
		ticket.Media = json.RawMessage(media.Raw)
	}
	return ticket, nil
}

func (s *Store) PutObject(ctx context.Context, ticket admin.UploadTicket, data []byte, contentType string) error {
	return s.client.Storage().UploadToSignedURL(ctx, ticket.UploadURL, data, contentType)
}

// --- AnalyticsStore ---------------------------------------------------------

func (s *Store) ListRevenueSince(ctx context.Context, since time.Time) ([]admin.RevenueRow, error) {
	var rows []admin.RevenueRow
	err := s.client.From("orders").Select("status, total_cents, placed_at").Gte("placed_at", since.UTC()).ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ListInventoryEvents(ctx context.Context, limit int) ([]admin.InventoryEvent, error) {
	var rows []admin.InventoryEvent
	err := s.client.From("inventory_events").
		Select("id, product_id, quantity_delta, reason, resulting_quantity, created_at").
		Order("created_at", false).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]admin.AuditLog, error) {
	var rows []admin.AuditLog
	err := s.client.From("admin_audit_logs").
		Select("id, action, target_table, target_id, created_at, metadata").
		Order("created_at", false).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeRecord decodes a single object or the first element of an array.
// found is false for null and empty results.
func decodeRecord(body []byte, v any) (found bool, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return false, nil
	}
	if body[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(body, &rows); err != nil {
			return false, err
		}
		if len(rows) == 0 || bytes.Equal(bytes.TrimSpace(rows[0]), []byte("null")) {
			return false, nil
		}
		body = rows[0]
	}
	return true, json.Unmarshal(body, v)
}
