package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

// Column layout of the medicine catalog export.
const (
	colBrandID = iota
	colBrandName
	colType
	colSlug
	colDosageForm
	colGeneric
	colStrength
	colManufacturer
	colPackageContainer
	colPackageSize
)

var (
	numberPattern = regexp.MustCompile(`\d+(\.\d+)?`)
	// namespace for stable item ids, so reseeding updates instead of duplicating
	seedNamespace = uuid.MustParse("6f1c5a8e-3b1d-4c0e-9a57-0d7f0b6e2c11")
)

// Upserter stores catalog items.
type Upserter interface {
	Upsert(ctx context.Context, m domain.Medicine) (domain.Medicine, error)
}

// LoadMedicinesFile seeds the catalog of pharmacyID from a CSV file. A
// missing file is not an error.
func LoadMedicinesFile(ctx context.Context, cat Upserter, pharmacyID, csvPath string, logger *zap.Logger) (int, error) {
	file, err := os.Open(csvPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("medicine catalog not found, skipping seed", zap.String("path", csvPath))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unable to load medicine catalog %s: %w", csvPath, err)
	}
	defer file.Close()
	return LoadMedicines(ctx, cat, pharmacyID, file, logger)
}

// LoadMedicines reads catalog rows and upserts them for pharmacyID. Item
// ids derive from the brand id, so running it twice keeps stock intact.
// Bad rows are logged and skipped.
func LoadMedicines(ctx context.Context, cat Upserter, pharmacyID string, r io.Reader, logger *zap.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("unable to read medicine header: %w", err)
	}

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("unable to read medicine row", zap.Error(err))
			continue
		}
		if len(record) <= colManufacturer {
			continue
		}
		m, ok := medicineFromRecord(pharmacyID, record)
		if !ok {
			continue
		}
		if _, err := cat.Upsert(ctx, m); err != nil {
			logger.Warn("unable to insert medicine", zap.String("brand_name", m.BrandName), zap.Error(err))
			continue
		}
		rows++
	}

	logger.Info("seeded medicine catalog", zap.Int("rows", rows), zap.String("pharmacy_id", pharmacyID))
	return rows, nil
}

func medicineFromRecord(pharmacyID string, record []string) (domain.Medicine, bool) {
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	brandName := field(colBrandName)
	if brandName == "" {
		return domain.Medicine{}, false
	}
	brandID := field(colBrandID)
	if brandID == "" {
		brandID = brandName
	}

	generic := field(colGeneric)
	composition := generic
	if strength := field(colStrength); strength != "" {
		composition = strings.TrimSpace(generic + " " + strength)
	}

	return domain.Medicine{
		ID:           uuid.NewSHA1(seedNamespace, []byte(pharmacyID+"/"+brandID)).String(),
		PharmacyID:   pharmacyID,
		BrandName:    brandName,
		GenericName:  generic,
		Composition:  composition,
		Category:     field(colType),
		Form:         formOf(field(colDosageForm)),
		Manufacturer: field(colManufacturer),
		PackPrice:    priceOf(field(colPackageContainer)),
		PackSize:     packSizeOf(field(colPackageSize)),
		Stock:        decimal.Zero,
	}, true
}

func formOf(dosage string) domain.Form {
	d := strings.ToLower(dosage)
	switch {
	case strings.Contains(d, "tablet"):
		return domain.FormTablet
	case strings.Contains(d, "capsule"):
		return domain.FormCapsule
	case strings.Contains(d, "syrup"), strings.Contains(d, "suspension"), strings.Contains(d, "solution"):
		return domain.FormSyrup
	}
	return domain.FormOther
}

// priceOf reads the amount after the taka sign in a container description
// such as "100 ml bottle: ৳ 85.00", or the first number if there is none.
func priceOf(container string) decimal.Decimal {
	if i := strings.LastIndex(container, "৳"); i >= 0 {
		container = container[i:]
	}
	n := numberPattern.FindString(container)
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// packSizeOf takes the first integer in a size description such as
// "10 x 10's". Anything unreadable is one unit.
func packSizeOf(size string) int {
	n := numberPattern.FindString(size)
	if n == "" {
		return 1
	}
	i, err := strconv.Atoi(strings.SplitN(n, ".", 2)[0])
	if err != nil || i < 1 {
		return 1
	}
	return i
}
