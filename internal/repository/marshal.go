package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

// itemRow is the flat scan target shared by the SQLite and MySQL vault
// repositories. JSON columns hold the ordered collections.
type itemRow struct {
	localID           int64
	remoteID          sql.NullInt64
	status            string
	discrepancyReason sql.NullString
	title             string
	description       string
	price             string
	currency          string
	categoryID        sql.NullInt64
	brandID           sql.NullInt64
	colorIDs          string
	sizeID            sql.NullInt64
	conditionID       sql.NullInt64
	packageSizeID     sql.NullInt64
	attributes        string
	images            string
	relistCount       int
	detailHydratedAt  sql.NullTime
	createdAt         time.Time
	updatedAt         time.Time
}

func (r *itemRow) toItem() (*model.InventoryItem, error) {
	price, err := decimal.NewFromString(r.price)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", r.price, err)
	}

	item := &model.InventoryItem{
		LocalID:     r.localID,
		Status:      model.ItemStatus(r.status),
		Title:       r.title,
		Description: r.description,
		Price:       price,
		Currency:    r.currency,
		RelistCount: r.relistCount,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}

	item.RemoteID = nullInt(r.remoteID)
	item.CategoryID = nullInt(r.categoryID)
	item.BrandID = nullInt(r.brandID)
	item.SizeID = nullInt(r.sizeID)
	item.ConditionID = nullInt(r.conditionID)
	item.PackageSizeID = nullInt(r.packageSizeID)

	if r.discrepancyReason.Valid {
		reason := model.DiscrepancyReason(r.discrepancyReason.String)
		item.DiscrepancyReason = &reason
	}
	if r.detailHydratedAt.Valid {
		t := r.detailHydratedAt.Time
		item.DetailHydratedAt = &t
	}

	if err := json.Unmarshal([]byte(r.colorIDs), &item.ColorIDs); err != nil {
		return nil, fmt.Errorf("invalid stored color ids: %w", err)
	}
	if err := json.Unmarshal([]byte(r.attributes), &item.Attributes); err != nil {
		return nil, fmt.Errorf("invalid stored attributes: %w", err)
	}
	if err := json.Unmarshal([]byte(r.images), &item.Images); err != nil {
		return nil, fmt.Errorf("invalid stored images: %w", err)
	}

	return item, nil
}

// itemArgs flattens an item into the column order shared by INSERT/UPDATE
// statements (everything except local_id, created_at, updated_at).
func itemArgs(item *model.InventoryItem) ([]interface{}, error) {
	colorIDs, err := jsonArray(item.ColorIDs)
	if err != nil {
		return nil, err
	}
	attrs, err := jsonArray(item.Attributes)
	if err != nil {
		return nil, err
	}
	images, err := jsonArray(item.Images)
	if err != nil {
		return nil, err
	}

	var reason interface{}
	if item.DiscrepancyReason != nil {
		reason = string(*item.DiscrepancyReason)
	}

	return []interface{}{
		intPtr(item.RemoteID),
		string(item.Status),
		reason,
		item.Title,
		item.Description,
		item.Price.String(),
		item.Currency,
		intPtr(item.CategoryID),
		intPtr(item.BrandID),
		colorIDs,
		intPtr(item.SizeID),
		intPtr(item.ConditionID),
		intPtr(item.PackageSizeID),
		attrs,
		images,
		item.RelistCount,
		timePtr(item.DetailHydratedAt),
	}, nil
}

func jsonArray(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal column: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
