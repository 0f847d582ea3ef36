package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/catalog"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
	"github.com/dasarishourya007-oss/vArogra-sub000/internal/store"
)

const sampleCSV = `brand id,brand name,type,slug,dosage form,generic,strength,manufacturer,package container,Package Size
1,Napa,allopathic,napa,Tablet,Paracetamol,500 mg,Beximco Pharmaceuticals Ltd.,Unit Price: ৳ 1.20,(10 x 10's)
2,Tusca,allopathic,tusca,Syrup,Dextromethorphan,10 mg/5 ml,Square Pharmaceuticals PLC,100 ml bottle: ৳ 85.00,
3,,allopathic,blank,Tablet,Nothing,,Nobody,,
short,row
4,Seclo,allopathic,seclo,Capsule,Omeprazole,20 mg,Square Pharmaceuticals PLC,Unit Price: ৳ 6.00,
`

func TestLoadMedicines(t *testing.T) {
	st := store.NewMemory()
	cat := catalog.New(st, events.NewHub(), zap.NewNop())
	ctx := context.Background()

	n, err := LoadMedicines(ctx, cat, "ph-1", strings.NewReader(sampleCSV), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := cat.List(ctx, "ph-1")
	require.NoError(t, err)
	require.Len(t, items, 3)

	napa := items[0]
	assert.Equal(t, "Napa", napa.BrandName)
	assert.Equal(t, domain.FormTablet, napa.Form)
	assert.Equal(t, "Paracetamol 500 mg", napa.Composition)
	assert.Equal(t, "1.20", napa.PackPrice.StringFixed(2))
	assert.Equal(t, 10, napa.PackSize)
	assert.Equal(t, domain.FormSyrup, items[1].Form)
	assert.Equal(t, 1, items[1].PackSize)
	assert.Equal(t, "85.00", items[1].PackPrice.StringFixed(2))
	assert.Equal(t, domain.FormCapsule, items[2].Form)

	// reseeding keeps ids and does not duplicate
	n, err = LoadMedicines(ctx, cat, "ph-1", strings.NewReader(sampleCSV), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	items, err = cat.List(ctx, "ph-1")
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, napa.ID, items[0].ID)
}

func TestLoadMedicinesFileMissing(t *testing.T) {
	cat := catalog.New(store.NewMemory(), nil, zap.NewNop())
	n, err := LoadMedicinesFile(context.Background(), cat, "ph-1", "does/not/exist.csv", zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, n)
}
