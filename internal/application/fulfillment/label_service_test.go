package fulfillment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orderhub/backend/internal/domain/fulfillment"
	"github.com/orderhub/backend/internal/domain/shared"
)

func newTestLabelService(repo *MockOrderRepository) *LabelService {
	svc := NewLabelService(repo, NewOrderLocks(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestLabelService_MarkPrinted(t *testing.T) {
	repo := new(MockOrderRepository)
	batches := new(MockBatchRecomputer)

	packing := createTestOrder(t, fulfillment.StatusPacking)
	batchID := uuid.New()
	packing.BatchID = &batchID
	printed := createTestOrder(t, fulfillment.StatusReadyToShip)
	at := time.Now()
	printed.PrintedAt = &at
	paid := createTestOrder(t, fulfillment.StatusPaid)
	missing := uuid.New()

	for _, o := range []*fulfillment.Order{packing, printed, paid} {
		repo.On("FindByID", mock.Anything, o.ID).Return(o, nil)
	}
	repo.On("FindByID", mock.Anything, missing).Return(nil, fulfillment.NewOrderNotFoundError(missing))
	repo.On("SavePrinted", mock.Anything, packing).Return(nil).Once()
	batches.On("RecomputeProgress", mock.Anything, batchID).Return(&BatchResponse{}, nil).Once()

	svc := newTestLabelService(repo)
	svc.SetBatchRecomputer(batches)

	res, err := svc.MarkPrinted(context.Background(), MarkPrintedRequest{
		OrderIDs: []uuid.UUID{packing.ID, printed.ID, paid.ID, missing, packing.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, []uuid.UUID{printed.ID}, res.SkippedIDs)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, paid.ID, res.Failed[0].OrderID)
	assert.Equal(t, shared.CodeInvalidState, res.Failed[0].Error.Kind)
	assert.Equal(t, shared.CodeNotFound, res.Failed[1].Error.Kind)
	repo.AssertExpectations(t)
	batches.AssertExpectations(t)
}

func TestLabelService_MarkPrinted_Twice(t *testing.T) {
	repo := new(MockOrderRepository)
	orders := []*fulfillment.Order{
		createTestOrder(t, fulfillment.StatusPacking),
		createTestOrder(t, fulfillment.StatusShipped),
	}
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		repo.On("FindByID", mock.Anything, o.ID).Return(o, nil)
		repo.On("SavePrinted", mock.Anything, o).Return(nil).Once()
	}

	svc := newTestLabelService(repo)
	first, err := svc.MarkPrinted(context.Background(), MarkPrintedRequest{OrderIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 2, first.UpdatedCount)

	second, err := svc.MarkPrinted(context.Background(), MarkPrintedRequest{OrderIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 0, second.UpdatedCount)
	assert.ElementsMatch(t, ids, second.SkippedIDs)
	assert.Empty(t, second.Failed)
}

func TestLabelService_PendingLabels(t *testing.T) {
	repo := new(MockOrderRepository)
	platform := fulfillment.ChannelMarketplaceB
	repo.On("FindPendingLabels", mock.Anything, &platform,
		[]fulfillment.OrderStatus{fulfillment.StatusPaid, fulfillment.StatusPacking, fulfillment.StatusReadyToShip, fulfillment.StatusShipped},
	).Return([]*fulfillment.Order{createTestOrder(t, fulfillment.StatusShipped)}, nil)

	svc := newTestLabelService(repo)
	out, err := svc.PendingLabels(context.Background(), "marketplace-B", true)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = svc.PendingLabels(context.Background(), "ebay", false)
	assert.Equal(t, shared.CodeInvalidInput, shared.CodeOf(err))
}

func TestLabelService_GenerateArtifact(t *testing.T) {
	repo := new(MockOrderRepository)
	renderer := new(MockLabelRenderer)
	store := new(MockArtifactStore)

	o1 := createTestOrder(t, fulfillment.StatusPacking)
	o2 := createTestOrder(t, fulfillment.StatusPaid)
	ids := []uuid.UUID{o1.ID, o2.ID}
	repo.On("FindByIDs", mock.Anything, ids).Return([]*fulfillment.Order{o2, o1}, nil)
	renderer.On("Render", mock.Anything, mock.MatchedBy(func(s fulfillment.LabelSheet) bool {
		return len(s.Labels) == 2 && s.Labels[0].OrderID == o1.ID
	})).Return([]byte("%PDF-1.4"), nil)
	store.On("Save", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "labels/2026/04/01/")
	}), []byte("%PDF-1.4"), "application/pdf").Return("https://files.example/labels.pdf", nil)

	svc := newTestLabelService(repo)
	svc.SetRenderer(renderer)
	svc.SetArtifactStore(store)

	artifact, err := svc.GenerateArtifact(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, "labels-marketplace-a-20260401-120000.pdf", artifact.Filename)
	assert.Equal(t, 8, artifact.Size)
	assert.Equal(t, 2, artifact.LabelCount)
	assert.Equal(t, "https://files.example/labels.pdf", artifact.URL)
	assert.Nil(t, o1.PrintedAt)
	repo.AssertNotCalled(t, "SavePrinted", mock.Anything, mock.Anything)
}

func TestLabelService_GenerateArtifact_Errors(t *testing.T) {
	repo := new(MockOrderRepository)
	renderer := new(MockLabelRenderer)
	svc := newTestLabelService(repo)

	_, err := svc.GenerateArtifact(context.Background(), []uuid.UUID{uuid.New()})
	assert.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))

	svc.SetRenderer(renderer)
	missing := uuid.New()
	repo.On("FindByIDs", mock.Anything, []uuid.UUID{missing}).Return([]*fulfillment.Order{}, nil)
	_, err = svc.GenerateArtifact(context.Background(), []uuid.UUID{missing})
	assert.Equal(t, shared.CodeNotFound, shared.CodeOf(err))

	o := createTestOrder(t, fulfillment.StatusPacking)
	repo.On("FindByIDs", mock.Anything, []uuid.UUID{o.ID}).Return([]*fulfillment.Order{o}, nil)
	renderer.On("Render", mock.Anything, mock.Anything).Return(nil, errors.New("chrome crashed"))
	_, err = svc.GenerateArtifact(context.Background(), []uuid.UUID{o.ID})
	assert.ErrorContains(t, err, "chrome crashed")
}
