package store

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"golang.org/x/text/unicode/norm"

	"justapengu.in/livetiming/internal/timing"
)

func loadDriver(tx *bbolt.Tx, driverID string) (*timing.Driver, error) {
	data := tx.Bucket(driversBucket).Get([]byte(driverID))

	if data == nil {
		return nil, errors.Wrapf(ErrDriverNotFound, "id %s", driverID)
	}

	var driver timing.Driver

	if err := decode(data, &driver); err != nil {
		return nil, errors.Wrapf(err, "store: could not decode driver %s", driverID)
	}

	return &driver, nil
}

// UpsertDriver creates or replaces a driver. An empty ID is assigned.
func (bs *BoltStore) UpsertDriver(ctx context.Context, driver timing.Driver) (*timing.Driver, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	driver.Name = norm.NFC.String(strings.TrimSpace(driver.Name))

	if driver.Name == "" || driver.Number < 0 {
		return nil, errors.Wrapf(ErrInvalidDriver, "number %d, name %q", driver.Number, driver.Name)
	}

	if driver.ID == "" {
		driver.ID = uuid.New().String()
	}

	var old *timing.Driver

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		existing, err := loadDriver(tx, driver.ID)

		if err == nil {
			old = existing
		} else if !errors.Is(err, ErrDriverNotFound) {
			return err
		}

		return encode(tx.Bucket(driversBucket), []byte(driver.ID), driver)
	})

	if err != nil {
		return nil, errors.Wrapf(err, "store: could not save driver %s", driver.ID)
	}

	if old == nil {
		bs.publish(timing.TableDrivers, timing.ChangeInsert, "", driver, nil)
	} else {
		bs.publish(timing.TableDrivers, timing.ChangeUpdate, "", driver, *old)
	}

	return &driver, nil
}

// DeactivateDriver removes a driver from the grid without deleting their laps.
func (bs *BoltStore) DeactivateDriver(ctx context.Context, driverID string) (*timing.Driver, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var old, driver timing.Driver

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		existing, err := loadDriver(tx, driverID)

		if err != nil {
			return err
		}

		old = *existing
		driver = *existing
		driver.Active = false

		return encode(tx.Bucket(driversBucket), []byte(driverID), driver)
	})

	if err != nil {
		return nil, errors.Wrapf(err, "store: could not deactivate driver %s", driverID)
	}

	bs.publish(timing.TableDrivers, timing.ChangeUpdate, "", driver, old)

	return &driver, nil
}

// Drivers returns every driver, active or not, by car number.
func (bs *BoltStore) Drivers(ctx context.Context) ([]timing.Driver, error) {
	return bs.drivers(ctx, false)
}

// ActiveDrivers returns the drivers on the grid by car number.
func (bs *BoltStore) ActiveDrivers(ctx context.Context) ([]timing.Driver, error) {
	return bs.drivers(ctx, true)
}

func (bs *BoltStore) drivers(ctx context.Context, activeOnly bool) ([]timing.Driver, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var drivers []timing.Driver

	err := bs.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(driversBucket).ForEach(func(k, v []byte) error {
			var driver timing.Driver

			if err := decode(v, &driver); err != nil {
				return errors.Wrapf(err, "store: could not decode driver %s", k)
			}

			if activeOnly && !driver.Active {
				return nil
			}

			drivers = append(drivers, driver)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].Number == drivers[j].Number {
			return drivers[i].ID < drivers[j].ID
		}

		return drivers[i].Number < drivers[j].Number
	})

	return drivers, nil
}
