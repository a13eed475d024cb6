package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/veltashop/shieldsync_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is the host platform's options table. The sync service only reads
// a handful of keys and writes none of the storefront-owned ones.
type Setting struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	KeyName  string `gorm:"size:128;uniqueIndex;column:key_name" json:"keyName"`
	Value    string `gorm:"type:text" json:"value"`
	Autoload bool   `json:"autoload"`
}

const (
	SettingKeyInstallDate             = "_shieldapp_last_install_date"
	SettingKeyIncludedOrderStatuses   = "shieldapp_included_order_statuses"
	SettingKeyCancelOrderStatuses     = "shieldapp_cancel_order_statuses"
	SettingKeyActiveIntegrations      = "shieldapp_active_integrations"
	SettingKeyExcludedShippingMethods = "shieldapp_excluded_shipping_methods"
	SettingKeyWebhookBaseURL          = "shieldapp_webhook_base_url"
)

const settingCacheTTL = 5 * time.Minute

func settingCacheKey(key string) string {
	return "shieldsync:setting:" + key
}

// GetOption reads a setting with a short redis cache in front of the DB.
// Returns ok=false when the key does not exist.
func GetOption(ctx context.Context, key string) (string, bool, error) {
	if cached, ok, err := config.GetRedisValue(settingCacheKey(key)); err == nil && ok {
		return cached, true, nil
	}

	db := config.GetDB().WithContext(ctx)
	var setting Setting
	err := db.Where("key_name = ?", key).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	_ = config.SetRedisValue(settingCacheKey(key), setting.Value, settingCacheTTL)
	return setting.Value, true, nil
}

func SetOption(ctx context.Context, key string, value string) error {
	db := config.GetDB().WithContext(ctx)
	row := Setting{KeyName: key, Value: value}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error; err != nil {
		return err
	}
	return config.DeleteRedisKey(settingCacheKey(key))
}

// GetOptionList reads a comma separated setting into a slice.
func GetOptionList(ctx context.Context, key string) ([]string, error) {
	raw, ok, err := GetOption(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetInstallDate returns the recorded integration install timestamp, or the
// zero time when it was never set.
func GetInstallDate(ctx context.Context) (time.Time, error) {
	raw, ok, err := GetOption(ctx, SettingKeyInstallDate)
	if err != nil || !ok {
		return time.Time{}, err
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, perr := time.Parse(layout, strings.TrimSpace(raw)); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, nil
}
