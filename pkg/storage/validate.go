package storage

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// ErrInvalidWrite is returned for writes that can never succeed, such as a
// new version that does not advance past the expected one.
var ErrInvalidWrite = errors.New("invalid progress write")

// ValidateWrite checks the arguments of a compare-and-swap before a driver
// touches its backend.
func ValidateWrite(userID string, expectedVersion uint64, p progress.ItemProgress) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidWrite)
	}
	if p.ItemID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidWrite)
	}
	if p.Version <= expectedVersion {
		return fmt.Errorf("%w: item %s: new version %d must be greater than expected version %d",
			ErrInvalidWrite, p.ItemID, p.Version, expectedVersion)
	}
	return nil
}
