// internal/services/storage_service.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/database"
	"github.com/ipnexus/ipnexus-backend/internal/models"
)

// StorageService is the per-account namespaced key/value store. Writes are
// restricted to registered modules (the registries qualify by being
// registered as modules); any caller may read any namespace.
type StorageService struct {
	db       *gorm.DB
	registry *RegistryService
}

func NewStorageService(db *gorm.DB, registry *RegistryService) *StorageService {
	return &StorageService{
		db:       db,
		registry: registry,
	}
}

// SetBytes writes one value into the caller's namespace on an account.
func (s *StorageService) SetBytes(caller, ipAccount models.Address, key string, value []byte) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return s.setBytes(tx, caller, ipAccount, key, value)
	})
}

// SetBatchBytes writes several values atomically; mismatched key/value
// lengths abort the whole batch.
func (s *StorageService) SetBatchBytes(caller, ipAccount models.Address, keys []string, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("%w: %d keys, %d values", ErrLengthMismatch, len(keys), len(values))
	}
	if len(keys) == 0 {
		return errors.New("empty storage batch")
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		for i := range keys {
			if err := s.setBytes(tx, caller, ipAccount, keys[i], values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *StorageService) setBytes(tx *gorm.DB, caller, ipAccount models.Address, key string, value []byte) error {
	if key == "" {
		return errors.New("storage key must not be empty")
	}

	if !isRegistered(tx, ipAccount) {
		return fmt.Errorf("%w: IP account %s", ErrNotRegistered, ipAccount)
	}

	if !isModule(tx, caller) {
		return fmt.Errorf("%w: %s may not write account storage", ErrNotAuthorized, caller)
	}

	var entry models.StorageEntry
	err := tx.Where("ip_account = ? AND namespace = ? AND key = ?", ipAccount, caller, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.StorageEntry{
			IPAccount: ipAccount,
			Namespace: caller,
			Key:       key,
		}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	entry.Value = value
	if err := tx.Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to write storage entry: %w", err)
	}
	return nil
}

// GetBytes reads one value from an explicit namespace. Reads are
// unrestricted to allow cross-module introspection.
func (s *StorageService) GetBytes(ipAccount, namespace models.Address, key string) ([]byte, error) {
	var entry models.StorageEntry
	err := s.db.Where("ip_account = ? AND namespace = ? AND key = ?", ipAccount, namespace, key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: storage key %s", ErrNotRegistered, key)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return entry.Value, nil
}

// GetBatchBytes reads several keys from one namespace; missing keys come
// back as nil values rather than aborting the read.
func (s *StorageService) GetBatchBytes(ipAccount, namespace models.Address, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, errors.New("empty storage batch")
	}

	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, err := s.GetBytes(ipAccount, namespace, key)
		if err != nil && !errors.Is(err, ErrNotRegistered) {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// ListNamespace returns all entries a module has written on one account.
func (s *StorageService) ListNamespace(ipAccount, namespace models.Address) ([]models.StorageEntry, error) {
	var entries []models.StorageEntry
	if err := s.db.Where("ip_account = ? AND namespace = ?", ipAccount, namespace).
		Order("key").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch storage entries: %w", err)
	}
	return entries, nil
}
